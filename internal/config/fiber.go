package config

import (
	"ProductVision/pkg/utils"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// multipartSlackBytes leaves room for form boundaries and the predictions field
// on top of the upload limit itself.
const multipartSlackBytes = 1024 * 1024

func NewFiber(logger *logrus.Logger) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:           "Product Vision",
			BodyLimit:         int(utils.New().MaxFileSize()) + multipartSlackBytes,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: true,
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
			ErrorHandler:      newErrorHandler(logger),
		})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,HEAD,OPTIONS",
		AllowHeaders:     "*",
		AllowCredentials: false,
	}))

	return app
}

func newErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "An unexpected error occurred"

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			message = fiberErr.Message
		}

		logger.WithFields(logrus.Fields{
			"path":   c.Path(),
			"status": code,
			"error":  err.Error(),
		}).Warn("Request failed before reaching a handler")

		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}

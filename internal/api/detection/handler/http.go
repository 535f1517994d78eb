package detectionHandler

import (
	detectionService "ProductVision/internal/api/detection/service"
	"ProductVision/internal/middleware"
	"ProductVision/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type DetectionHandler struct {
	log              *logrus.Logger
	validator        *validator.Validate
	middleware       middleware.Middleware
	detectionService detectionService.IDetectionService
	utils            utils.IUtils
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ds detectionService.IDetectionService,
	utils utils.IUtils,
) *DetectionHandler {
	return &DetectionHandler{
		detectionService: ds,
		log:              log,
		validator:        validator,
		middleware:       middleware,
		utils:            utils,
	}
}

func (h *DetectionHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	srv.Post("/predict", h.middleware.NewRateLimiter, h.Predict)
	srv.Post("/add_to_database", h.middleware.NewRateLimiter, h.AddToDatabase)

	ws := srv.Group("/ws")
	ws.Use(wsMiddleware)
	ws.Get("/predict", h.middleware.NewRateLimiter, websocket.New(h.handlePredictStream))
}

package detectionHandler

import (
	"ProductVision/internal/api/detection"
	"ProductVision/internal/entity"
	contextPkg "ProductVision/pkg/context"
	"ProductVision/pkg/handlerUtil"
	"ProductVision/pkg/log"
	"ProductVision/pkg/response"
	"ProductVision/pkg/utils"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/context"
)

const requestTimeout = 30 * time.Second

func (h *DetectionHandler) Predict(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing predict request")

	upload, err := h.readUpload(ctx)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_upload")
	}

	result, err := h.detectionService.PredictFrame(c, upload.Data)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "predict")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id":  requestID,
			"path":        ctx.Path(),
			"file_name":   upload.Filename,
			"predictions": len(result.Predictions),
		}).Info("Prediction successful")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}

func (h *DetectionHandler) AddToDatabase(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing add to database request")

	upload, err := h.readUpload(ctx)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_upload")
	}

	raw := ctx.FormValue("predictions")
	if raw == "" {
		return errHandler.Handle(ctx, requestID,
			response.Wrap(detection.ErrInvalidPredictions, errors.New("predictions field is required")),
			ctx.Path(), "parse_predictions")
	}

	var inputs []detection.PredictionInput
	if err := jsoniter.UnmarshalFromString(raw, &inputs); err != nil {
		return errHandler.Handle(ctx, requestID, response.Wrap(detection.ErrInvalidPredictions, err), ctx.Path(), "parse_predictions")
	}

	detections := make([]entity.Detection, 0, len(inputs))
	for _, input := range inputs {
		if err := h.validator.Struct(input); err != nil {
			return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
		}
		detections = append(detections, input.ToEntity())
	}

	result, err := h.detectionService.AddToDatabase(c, upload, detections)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "add_to_database")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"file_name":  upload.Filename,
			"saved":      len(result.SavedProducts),
		}).Info("Products saved")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}

func (h *DetectionHandler) readUpload(ctx *fiber.Ctx) (detection.ImageUpload, error) {
	file, err := ctx.FormFile("file")
	if err != nil {
		return detection.ImageUpload{}, response.Wrap(detection.ErrMissingFile, err)
	}

	if err := h.utils.ValidateImageFile(file); err != nil {
		if errors.Is(err, utils.ErrFileTooLarge) {
			return detection.ImageUpload{}, response.Wrap(detection.ErrFileTooLarge, err)
		}
		return detection.ImageUpload{}, response.Wrap(detection.ErrMissingFile, err)
	}

	data, err := h.utils.ReadFile(file)
	if err != nil {
		return detection.ImageUpload{}, response.Wrap(detection.ErrBadRequest, err)
	}

	return detection.ImageUpload{Filename: file.Filename, Data: data}, nil
}

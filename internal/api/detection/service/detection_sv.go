package detectionService

import (
	"ProductVision/internal/api/detection"
	contextPkg "ProductVision/pkg/context"
	"ProductVision/pkg/frame"
	"ProductVision/pkg/response"
	"image"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

func (s *detectionService) Predict(ctx context.Context, img image.Image) (*detection.PredictResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	detections, err := s.detector.Detect(ctx, img)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Detector failed")
		return nil, response.Wrap(detection.ErrInference, err)
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"width":      img.Bounds().Dx(),
		"height":     img.Bounds().Dy(),
		"detections": len(detections),
	}).Debug("Image analysed")

	return &detection.PredictResponse{Predictions: detections}, nil
}

func (s *detectionService) PredictFrame(ctx context.Context, data []byte) (*detection.PredictResponse, error) {
	img, err := frame.Decode(data)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"bytes":      len(data),
			"error":      err.Error(),
		}).Warn("Failed to decode frame")
		return nil, response.Wrap(detection.ErrDecodeImage, err)
	}

	return s.Predict(ctx, img)
}

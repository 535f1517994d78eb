package detectionService

import (
	"ProductVision/internal/api/detection"
	"ProductVision/internal/entity"
	contextPkg "ProductVision/pkg/context"
	"ProductVision/pkg/frame"
	"ProductVision/pkg/response"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const (
	timestampLayout      = "2006-01-02T15:04:05.000000"
	wholeSecondTimestamp = "2006-01-02T15:04:05"
)

// formatTimestamp renders UTC time like an ISO-8601 isoformat(): microseconds
// when present, none when the time falls on a whole second.
func formatTimestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format(wholeSecondTimestamp)
	}
	return t.Format(timestampLayout)
}

func (s *detectionService) AddToDatabase(ctx context.Context, upload detection.ImageUpload, detections []entity.Detection) (*detection.AddToDatabaseResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if len(detections) == 0 {
		return nil, detection.ErrNoPredictions
	}

	img, err := frame.Decode(upload.Data)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"filename":   upload.Filename,
			"error":      err.Error(),
		}).Warn("Failed to decode upload")
		return nil, response.Wrap(detection.ErrDecodeImage, err)
	}

	var sourceURL string
	if s.archive != nil {
		sourceURL, err = s.archive.UploadImage(upload.Filename, upload.Data)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"filename":   upload.Filename,
				"error":      err.Error(),
			}).Error("Failed to archive original image")
			return nil, response.Wrap(detection.ErrArchive, err)
		}
	}

	products, err := s.persist(ctx, img, upload.Filename, sourceURL, detections)
	if err != nil {
		return nil, err
	}

	return &detection.AddToDatabaseResponse{SavedProducts: products}, nil
}

func (s *detectionService) Persist(ctx context.Context, img image.Image, filename string, detections []entity.Detection) ([]entity.Product, error) {
	return s.persist(ctx, img, filename, "", detections)
}

// persist crops every detection but, unless persistAll is set, writes and
// returns only the record built last.
func (s *detectionService) persist(ctx context.Context, img image.Image, filename, sourceURL string, detections []entity.Detection) ([]entity.Product, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if len(detections) == 0 {
		return nil, detection.ErrNoPredictions
	}

	products := make([]entity.Product, 0, len(detections))
	for i, det := range detections {
		product, err := s.buildProduct(img, filename, sourceURL, det)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"index":      i,
				"bbox":       det.BBox,
				"error":      err.Error(),
			}).Warn("Failed to crop detection")
			return nil, response.Wrap(detection.ErrInvalidBBox, err)
		}
		products = append(products, product)
	}

	if !s.persistAll {
		products = products[len(products)-1:]
	}

	saved := make([]entity.Product, 0, len(products))
	for _, product := range products {
		id, err := s.repository.InsertProduct(ctx, product)
		if err != nil {
			return nil, response.Wrap(detection.ErrStorage, err)
		}
		product.ID = id
		saved = append(saved, product)
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"filename":   filename,
		"detections": len(detections),
		"saved":      len(saved),
	}).Info("Products saved")

	return saved, nil
}

func (s *detectionService) buildProduct(img image.Image, filename, sourceURL string, det entity.Detection) (entity.Product, error) {
	crop, err := frame.Crop(img, det.BBox)
	if err != nil {
		return entity.Product{}, err
	}

	encoded, err := frame.EncodeJPEG(crop)
	if err != nil {
		return entity.Product{}, fmt.Errorf("failed to encode crop: %w", err)
	}

	return entity.Product{
		Class:              det.Class,
		Confidence:         det.Confidence,
		Timestamp:          formatTimestamp(s.now()),
		OriginalFilename:   filename,
		CroppedImageBase64: base64.StdEncoding.EncodeToString(encoded),
		SourceImageURL:     sourceURL,
	}, nil
}

package detectionService

import (
	"ProductVision/internal/api/detection"
	detectionRepository "ProductVision/internal/api/detection/repository"
	"ProductVision/internal/entity"
	"ProductVision/pkg/detector"
	"ProductVision/pkg/s3"
	"image"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type IDetectionService interface {
	Predict(ctx context.Context, img image.Image) (*detection.PredictResponse, error)
	PredictFrame(ctx context.Context, frame []byte) (*detection.PredictResponse, error)
	Persist(ctx context.Context, img image.Image, filename string, detections []entity.Detection) ([]entity.Product, error)
	AddToDatabase(ctx context.Context, upload detection.ImageUpload, detections []entity.Detection) (*detection.AddToDatabaseResponse, error)
}

type detectionService struct {
	log        *logrus.Logger
	detector   detector.Detector
	repository detectionRepository.Repository
	archive    s3.ItfS3
	persistAll bool
	now        func() time.Time
}

// NewDetectionService wires the model and the storage gateway. archive may be
// nil, in which case originals are not uploaded.
func NewDetectionService(
	log *logrus.Logger,
	detector detector.Detector,
	repository detectionRepository.Repository,
	archive s3.ItfS3,
	persistAll bool,
) IDetectionService {
	return &detectionService{
		log:        log,
		detector:   detector,
		repository: repository,
		archive:    archive,
		persistAll: persistAll,
		now:        time.Now,
	}
}

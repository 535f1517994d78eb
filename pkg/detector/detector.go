// Package detector adapts an opaque object-detection model into labelled,
// rounded detections.
package detector

import (
	"ProductVision/internal/entity"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

var ErrUnknownClass = errors.New("unknown class index")

// Box is a raw model output before label resolution and rounding.
type Box struct {
	ClassID    int        `json:"cls"`
	Confidence float64    `json:"conf"`
	XYXY       [4]float64 `json:"xyxy"`
}

// Model is the pre-trained network, local or remote. Implementations must be safe
// for concurrent use.
type Model interface {
	Predict(ctx context.Context, img image.Image) ([]Box, error)
	Names() []string
	Close() error
}

type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]entity.Detection, error)
	Close() error
}

type adapter struct {
	model Model
}

func New(model Model) Detector {
	return &adapter{model: model}
}

func (a *adapter) Detect(ctx context.Context, img image.Image) ([]entity.Detection, error) {
	boxes, err := a.model.Predict(ctx, img)
	if err != nil {
		return nil, err
	}

	names := a.model.Names()
	detections := make([]entity.Detection, 0, len(boxes))
	for _, box := range boxes {
		if box.ClassID < 0 || box.ClassID >= len(names) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownClass, box.ClassID)
		}

		det := entity.Detection{
			Class:      names[box.ClassID],
			Confidence: round(clamp(box.Confidence, 0, 1), 3),
			BBox: entity.BBox{
				round(box.XYXY[0], 2),
				round(box.XYXY[1], 2),
				round(box.XYXY[2], 2),
				round(box.XYXY[3], 2),
			},
		}

		if !det.BBox.Valid() {
			continue
		}
		detections = append(detections, det)
	}

	return detections, nil
}

func (a *adapter) Close() error {
	return a.model.Close()
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

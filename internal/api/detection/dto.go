package detection

import "ProductVision/internal/entity"

type PredictResponse struct {
	Predictions []entity.Detection `json:"predictions"`
}

type AddToDatabaseResponse struct {
	SavedProducts []entity.Product `json:"saved_products"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}

// PredictionInput is one element of the "predictions" form field. Confidence is
// stored as sent.
type PredictionInput struct {
	Class      string    `json:"class" validate:"required"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox" validate:"required,len=4"`
}

func (p PredictionInput) ToEntity() entity.Detection {
	return entity.Detection{
		Class:      p.Class,
		Confidence: p.Confidence,
		BBox:       entity.BBox{p.BBox[0], p.BBox[1], p.BBox[2], p.BBox[3]},
	}
}

type ImageUpload struct {
	Filename string
	Data     []byte
}

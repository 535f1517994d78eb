package entity

// Product is one persisted crop. The storage driver assigns ID on insert.
type Product struct {
	ID                 string  `json:"_id" bson:"_id,omitempty" db:"id"`
	Class              string  `json:"class" bson:"class"`
	Confidence         float64 `json:"confidence" bson:"confidence"`
	Timestamp          string  `json:"timestamp" bson:"timestamp"`
	OriginalFilename   string  `json:"original_filename" bson:"original_filename"`
	CroppedImageBase64 string  `json:"cropped_image_base64" bson:"cropped_image_base64"`
	SourceImageURL     string  `json:"source_image_url,omitempty" bson:"source_image_url,omitempty"`
}

package detection

import (
	"ProductVision/pkg/response"
	"net/http"
)

var (
	ErrBadRequest = response.NewError(http.StatusBadRequest, "bad request")

	ErrDecodeImage        = response.NewError(http.StatusBadRequest, "cannot identify image file")
	ErrMissingFile        = response.NewError(http.StatusBadRequest, "file is required")
	ErrFileTooLarge       = response.NewError(http.StatusRequestEntityTooLarge, "file too large")
	ErrInvalidPredictions = response.NewError(http.StatusBadRequest, "invalid predictions")
	ErrNoPredictions      = response.NewError(http.StatusBadRequest, "no predictions to save")
	ErrInvalidBBox        = response.NewError(http.StatusBadRequest, "invalid bounding box")
	ErrUnsupportedFrame   = response.NewError(http.StatusBadRequest, "expected a binary image frame")

	ErrInference = response.NewError(http.StatusInternalServerError, "inference failed")
	ErrStorage   = response.NewError(http.StatusInternalServerError, "failed to save product")
	ErrArchive   = response.NewError(http.StatusInternalServerError, "failed to archive original image")
)

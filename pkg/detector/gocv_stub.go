//go:build !gocv

package detector

import "errors"

var ErrGocvUnavailable = errors.New("gocv backend not compiled in, rebuild with -tags gocv")

func NewGocvModel(modelPath string, names []string, confThreshold, iouThreshold float32) (Model, error) {
	return nil, ErrGocvUnavailable
}

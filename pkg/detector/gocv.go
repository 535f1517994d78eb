//go:build gocv

package detector

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

const yoloInputSize = 640

// GocvModel runs a YOLOv8 ONNX export through the OpenCV DNN module. gocv.Net is
// not safe for concurrent use, so every forward pass holds mu.
type GocvModel struct {
	mu            sync.Mutex
	net           gocv.Net
	names         []string
	confThreshold float32
	iouThreshold  float32
}

func NewGocvModel(modelPath string, names []string, confThreshold, iouThreshold float32) (Model, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable target: %w", err)
	}

	return &GocvModel{
		net:           net,
		names:         names,
		confThreshold: confThreshold,
		iouThreshold:  iouThreshold,
	}, nil
}

func (m *GocvModel) Names() []string {
	return m.names
}

func (m *GocvModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}

func (m *GocvModel) Predict(ctx context.Context, img image.Image) ([]Box, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image to mat: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("converted image is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(yoloInputSize, yoloInputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	m.mu.Unlock()
	defer output.Close()

	// YOLOv8 output is [1, 4+classes, candidates]: cx, cy, w, h, then class scores.
	dims := output.Size()
	if len(dims) != 3 || dims[1] < 5 {
		return nil, fmt.Errorf("unexpected DNN output dims: %v", dims)
	}
	attrs, candidates := dims[1], dims[2]

	scaleX := float32(mat.Cols()) / yoloInputSize
	scaleY := float32(mat.Rows()) / yoloInputSize

	var (
		rects   []image.Rectangle
		scores  []float32
		classes []int
		xyxy    [][4]float64
	)
	for i := 0; i < candidates; i++ {
		bestClass, bestScore := -1, float32(0)
		for c := 4; c < attrs; c++ {
			if score := output.GetFloatAt3(0, c, i); score > bestScore {
				bestClass, bestScore = c-4, score
			}
		}
		if bestClass < 0 || bestScore < m.confThreshold {
			continue
		}

		cx := output.GetFloatAt3(0, 0, i) * scaleX
		cy := output.GetFloatAt3(0, 1, i) * scaleY
		w := output.GetFloatAt3(0, 2, i) * scaleX
		h := output.GetFloatAt3(0, 3, i) * scaleY

		x1, y1, x2, y2 := cx-w/2, cy-h/2, cx+w/2, cy+h/2
		rects = append(rects, image.Rect(int(x1), int(y1), int(x2), int(y2)))
		scores = append(scores, bestScore)
		classes = append(classes, bestClass)
		xyxy = append(xyxy, [4]float64{float64(x1), float64(y1), float64(x2), float64(y2)})
	}

	if len(rects) == 0 {
		return []Box{}, nil
	}

	indices := gocv.NMSBoxes(rects, scores, m.confThreshold, m.iouThreshold)
	boxes := make([]Box, 0, len(indices))
	for _, idx := range indices {
		boxes = append(boxes, Box{
			ClassID:    classes[idx],
			Confidence: float64(scores[idx]),
			XYXY:       clipXYXY(xyxy[idx], mat.Cols(), mat.Rows()),
		})
	}

	return boxes, nil
}

func clipXYXY(b [4]float64, width, height int) [4]float64 {
	return [4]float64{
		clamp(b[0], 0, float64(width)),
		clamp(b[1], 0, float64(height)),
		clamp(b[2], 0, float64(width)),
		clamp(b[3], 0, float64(height)),
	}
}

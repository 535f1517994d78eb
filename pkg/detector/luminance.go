package detector

import (
	"context"
	"image"
	"image/color"
)

// LuminanceModel reports every 4-connected region darker than Threshold as a
// "dark_object" with full confidence. It needs no weights, which makes it the
// backend for local development and tests.
type LuminanceModel struct {
	Threshold float64
	MinArea   int
}

func NewLuminanceModel(threshold float64, minArea int) *LuminanceModel {
	if minArea < 1 {
		minArea = 1
	}
	return &LuminanceModel{Threshold: threshold, MinArea: minArea}
}

func (m *LuminanceModel) Names() []string {
	return []string{"dark_object"}
}

func (m *LuminanceModel) Close() error {
	return nil
}

func (m *LuminanceModel) Predict(ctx context.Context, img image.Image) ([]Box, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	seen := make([]bool, width*height)
	boxes := []Box{}

	for y := 0; y < height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < width; x++ {
			idx := y*width + x
			if seen[idx] {
				continue
			}
			seen[idx] = true
			if !m.dark(img.At(bounds.Min.X+x, bounds.Min.Y+y)) {
				continue
			}

			x0, y0, x1, y1, area := x, y, x, y, 0
			queue := []image.Point{{X: x, Y: y}}
			for len(queue) > 0 {
				pt := queue[0]
				queue = queue[1:]
				area++

				x0, x1 = min(x0, pt.X), max(x1, pt.X)
				y0, y1 = min(y0, pt.Y), max(y1, pt.Y)

				for _, n := range [4]image.Point{{X: pt.X, Y: pt.Y - 1}, {X: pt.X, Y: pt.Y + 1}, {X: pt.X - 1, Y: pt.Y}, {X: pt.X + 1, Y: pt.Y}} {
					if n.X < 0 || n.Y < 0 || n.X >= width || n.Y >= height {
						continue
					}
					nIdx := n.Y*width + n.X
					if seen[nIdx] {
						continue
					}
					seen[nIdx] = true
					if m.dark(img.At(bounds.Min.X+n.X, bounds.Min.Y+n.Y)) {
						queue = append(queue, n)
					}
				}
			}

			if area < m.MinArea {
				continue
			}
			boxes = append(boxes, Box{
				ClassID:    0,
				Confidence: 1.0,
				XYXY:       [4]float64{float64(x0), float64(y0), float64(x1 + 1), float64(y1 + 1)},
			})
		}
	}

	return boxes, nil
}

func (m *LuminanceModel) dark(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
	return lum < m.Threshold
}

package entity

// BBox is [x1, y1, x2, y2] in pixel coordinates of the source image.
type BBox [4]float64

func (b BBox) X1() float64 { return b[0] }
func (b BBox) Y1() float64 { return b[1] }
func (b BBox) X2() float64 { return b[2] }
func (b BBox) Y2() float64 { return b[3] }

func (b BBox) Valid() bool {
	return b[0] < b[2] && b[1] < b[3]
}

type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

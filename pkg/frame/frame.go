// Package frame turns raw upload and socket bytes into canonical RGB images and
// back into JPEG crops.
package frame

import (
	"ProductVision/internal/entity"
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	JPEGQuality = 75

	// DefaultMaxPixels is the largest width*height accepted before decoding.
	DefaultMaxPixels int64 = 178956970
)

var (
	ErrDecode    = errors.New("cannot identify image data")
	ErrEmptyCrop = errors.New("bounding box does not overlap the image")
)

// Decode converts any supported encoding into an opaque NRGBA image. Alpha is
// discarded rather than composited, matching a plain RGB conversion.
func Decode(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if pixels, limit := int64(cfg.Width)*int64(cfg.Height), MaxPixels(); pixels > limit {
		return nil, fmt.Errorf("%w: %dx%d image exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, limit)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return toRGB(img), nil
}

// MaxPixels reads MAX_IMAGE_PIXELS, falling back to DefaultMaxPixels.
func MaxPixels() int64 {
	limit, err := strconv.ParseInt(os.Getenv("MAX_IMAGE_PIXELS"), 10, 64)
	if err != nil || limit <= 0 {
		return DefaultMaxPixels
	}
	return limit
}

func toRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// CropRect truncates the box to integer pixels and clips it to bounds.
func CropRect(bounds image.Rectangle, box entity.BBox) (image.Rectangle, error) {
	x1, y1, x2, y2 := int(box.X1()), int(box.Y1()), int(box.X2()), int(box.Y2())
	if x1 >= x2 || y1 >= y2 {
		return image.Rectangle{}, fmt.Errorf("%w: %v", ErrEmptyCrop, box)
	}

	// image.Rect would silently swap reversed corners, so build it by hand.
	rect := image.Rectangle{Min: image.Pt(x1, y1), Max: image.Pt(x2, y2)}
	clipped := rect.Intersect(bounds)
	if clipped.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: %v outside %v", ErrEmptyCrop, box, bounds)
	}

	return clipped, nil
}

func Crop(img image.Image, box entity.BBox) (*image.NRGBA, error) {
	rect, err := CropRect(img.Bounds(), box)
	if err != nil {
		return nil, err
	}
	return imaging.Crop(img, rect), nil
}

func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

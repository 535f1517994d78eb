package detector

import (
	"ProductVision/internal/entity"
	contextPkg "ProductVision/pkg/context"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"image"
	"time"

	"github.com/disintegration/imaging"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const cacheKeyPrefix = "prediction:"

type Cache interface {
	GetPrediction(ctx context.Context, key string) ([]byte, bool, error)
	SetPrediction(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type cachedDetector struct {
	next  Detector
	cache Cache
	ttl   time.Duration
	log   *logrus.Logger
}

// NewCached memoizes detections per decoded image. It relies on the model being
// deterministic; cache errors degrade to a plain inference call.
func NewCached(next Detector, cache Cache, ttl time.Duration, log *logrus.Logger) Detector {
	return &cachedDetector{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   log,
	}
}

func (d *cachedDetector) Detect(ctx context.Context, img image.Image) ([]entity.Detection, error) {
	key := CacheKey(img)
	fields := logrus.Fields{
		"request_id": contextPkg.GetRequestID(ctx),
		"cache_key":  key,
	}

	raw, ok, err := d.cache.GetPrediction(ctx, key)
	if err != nil {
		d.log.WithFields(fields).WithError(err).Warn("Prediction cache lookup failed")
	}
	if ok {
		var cached []entity.Detection
		if err := jsoniter.Unmarshal(raw, &cached); err == nil {
			d.log.WithFields(fields).Debug("Prediction cache hit")
			return cached, nil
		}
		d.log.WithFields(fields).Warn("Discarding unreadable cached prediction")
	}

	detections, err := d.next.Detect(ctx, img)
	if err != nil {
		return nil, err
	}

	encoded, err := jsoniter.Marshal(detections)
	if err == nil {
		err = d.cache.SetPrediction(ctx, key, encoded, d.ttl)
	}
	if err != nil {
		d.log.WithFields(fields).WithError(err).Warn("Failed to store prediction in cache")
	}

	return detections, nil
}

func (d *cachedDetector) Close() error {
	return d.next.Close()
}

func CacheKey(img image.Image) string {
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = imaging.Clone(img)
	}

	h := sha256.New()
	var dims [16]byte
	binary.BigEndian.PutUint64(dims[:8], uint64(nrgba.Rect.Dx()))
	binary.BigEndian.PutUint64(dims[8:], uint64(nrgba.Rect.Dy()))
	h.Write(dims[:])

	width := nrgba.Rect.Dx() * 4
	for y := nrgba.Rect.Min.Y; y < nrgba.Rect.Max.Y; y++ {
		start := nrgba.PixOffset(nrgba.Rect.Min.X, y)
		h.Write(nrgba.Pix[start : start+width])
	}

	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

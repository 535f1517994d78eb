package detectionHandler

import (
	"ProductVision/internal/api/detection"
	"ProductVision/internal/entity"
	"ProductVision/internal/middleware"
	"ProductVision/pkg/response"
	"ProductVision/pkg/utils"
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")
	os.Exit(m.Run())
}

type fakeService struct {
	predictErr  error
	persistErr  error
	predictions []entity.Detection
	frames      [][]byte
	persisted   []entity.Detection
	upload      detection.ImageUpload
}

func (s *fakeService) Predict(context.Context, image.Image) (*detection.PredictResponse, error) {
	return &detection.PredictResponse{Predictions: s.predictions}, s.predictErr
}

func (s *fakeService) PredictFrame(_ context.Context, frame []byte) (*detection.PredictResponse, error) {
	s.frames = append(s.frames, frame)
	if s.predictErr != nil {
		return nil, s.predictErr
	}
	return &detection.PredictResponse{Predictions: s.predictions}, nil
}

func (s *fakeService) Persist(context.Context, image.Image, string, []entity.Detection) ([]entity.Product, error) {
	return nil, errors.New("not used")
}

func (s *fakeService) AddToDatabase(_ context.Context, upload detection.ImageUpload, detections []entity.Detection) (*detection.AddToDatabaseResponse, error) {
	s.upload = upload
	s.persisted = detections
	if s.persistErr != nil {
		return nil, s.persistErr
	}
	last := detections[len(detections)-1]
	return &detection.AddToDatabaseResponse{SavedProducts: []entity.Product{{
		ID:               "665f1c2e9b1d8a0012345678",
		Class:            last.Class,
		Confidence:       last.Confidence,
		OriginalFilename: upload.Filename,
	}}}, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestApp(svc *fakeService) *fiber.App {
	logger := quietLogger()
	app := fiber.New()
	mw := middleware.New(logger)
	app.Use(mw.NewRequestIDMiddleware())
	New(logger, validator.New(), mw, svc, utils.New()).Start(app)
	return app
}

func multipartRequest(t *testing.T, path string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if file != nil {
		part, err := w.CreateFormFile("file", "shelf.jpg")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(v))
}

func TestPredict_OK(t *testing.T) {
	svc := &fakeService{predictions: []entity.Detection{
		{Class: "cup", Confidence: 0.88, BBox: entity.BBox{1, 2, 3, 4}},
	}}
	app := newTestApp(svc)

	resp, err := app.Test(multipartRequest(t, "/predict", []byte("jpeg-bytes"), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string][]map[string]interface{}
	decodeBody(t, resp, &body)
	require.Len(t, body["predictions"], 1)
	assert.Equal(t, "cup", body["predictions"][0]["class"])
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0, 4.0}, body["predictions"][0]["bbox"])
	assert.Equal(t, [][]byte{[]byte("jpeg-bytes")}, svc.frames)
}

func TestPredict_EmptyListNotNull(t *testing.T) {
	app := newTestApp(&fakeService{predictions: []entity.Detection{}})

	resp, err := app.Test(multipartRequest(t, "/predict", []byte("x"), nil))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"predictions":[]}`, string(raw))
}

func TestPredict_MissingFile(t *testing.T) {
	app := newTestApp(&fakeService{})

	resp, err := app.Test(multipartRequest(t, "/predict", nil, map[string]string{"other": "1"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Contains(t, body["error"], "file is required")
}

func TestPredict_ServiceErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"decode", response.Wrap(detection.ErrDecodeImage, errors.New("cannot identify image data")), http.StatusBadRequest},
		{"inference", response.Wrap(detection.ErrInference, errors.New("sidecar down")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeService{predictErr: tt.err})
			resp, err := app.Test(multipartRequest(t, "/predict", []byte("x"), nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body map[string]string
			decodeBody(t, resp, &body)
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestPredict_FileTooLarge(t *testing.T) {
	t.Setenv("MAX_UPLOAD_MB", "1")
	app := newTestApp(&fakeService{})

	resp, err := app.Test(multipartRequest(t, "/predict", bytes.Repeat([]byte{1}, 1024*1024+1), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestAddToDatabase_OK(t *testing.T) {
	svc := &fakeService{}
	app := newTestApp(svc)

	req := multipartRequest(t, "/add_to_database", []byte("jpeg-bytes"), map[string]string{
		"predictions": `[{"class":"person","confidence":0.9,"bbox":[1,2,3,4]},{"class":"bottle","confidence":0.7,"bbox":[5,6,7,8]}]`,
	})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body detection.AddToDatabaseResponse
	decodeBody(t, resp, &body)
	require.Len(t, body.SavedProducts, 1)
	assert.Equal(t, "bottle", body.SavedProducts[0].Class)
	assert.Equal(t, "665f1c2e9b1d8a0012345678", body.SavedProducts[0].ID)

	require.Len(t, svc.persisted, 2)
	assert.Equal(t, entity.BBox{5, 6, 7, 8}, svc.persisted[1].BBox)
	assert.Equal(t, "shelf.jpg", svc.upload.Filename)
}

func TestAddToDatabase_BadPredictions(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"missing field", nil},
		{"not json", map[string]string{"predictions": "not json"}},
		{"short bbox", map[string]string{"predictions": `[{"class":"cup","confidence":0.5,"bbox":[1,2,3]}]`}},
		{"missing class", map[string]string{"predictions": `[{"confidence":0.5,"bbox":[1,2,3,4]}]`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			app := newTestApp(svc)

			resp, err := app.Test(multipartRequest(t, "/add_to_database", []byte("x"), tt.fields))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Nil(t, svc.persisted)
		})
	}
}

func TestAddToDatabase_StorageError(t *testing.T) {
	app := newTestApp(&fakeService{persistErr: response.Wrap(detection.ErrStorage, errors.New("no reachable servers"))})

	resp, err := app.Test(multipartRequest(t, "/add_to_database", []byte("x"), map[string]string{
		"predictions": `[{"class":"cup","confidence":0.5,"bbox":[1,2,3,4]}]`,
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestPredictStream_RequiresUpgrade(t *testing.T) {
	app := newTestApp(&fakeService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws/predict", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

package inference

import (
	"ProductVision/pkg/detector"
	"ProductVision/pkg/frame"
	"ProductVision/pkg/log"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
)

const defaultInferenceURL = "http://localhost:8001/infer"

var ErrSidecar = errors.New("inference sidecar returned an error")

type IInference interface {
	detector.Model
}

type inferResponse struct {
	Boxes []detector.Box `json:"boxes"`
	Error string         `json:"error,omitempty"`
}

type httpClient struct {
	url    string
	names  []string
	client *resty.Client
}

func New(names []string) IInference {
	url := os.Getenv("AI_INFERENCE_URL")
	if url == "" {
		url = defaultInferenceURL
	}
	return newClient(url, names)
}

func newClient(url string, names []string) *httpClient {
	client := resty.New().
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json")

	return &httpClient{
		url:    url,
		names:  names,
		client: client,
	}
}

func (c *httpClient) Names() []string {
	return c.names
}

func (c *httpClient) Close() error {
	return nil
}

func (c *httpClient) Predict(ctx context.Context, img image.Image) ([]detector.Box, error) {
	payload, err := frame.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", "frame.jpg", bytes.NewReader(payload)).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to call inference sidecar: %w", err)
	}

	var result inferResponse
	if len(resp.Body()) > 0 {
		if err := jsoniter.Unmarshal(resp.Body(), &result); err != nil && !resp.IsError() {
			return nil, fmt.Errorf("error unmarshaling sidecar response: %w", err)
		}
	}

	if resp.IsError() {
		msg := result.Error
		if msg == "" {
			msg = resp.Status()
		}
		return nil, fmt.Errorf("%w: %d %s", ErrSidecar, resp.StatusCode(), msg)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrSidecar, result.Error)
	}

	log.Debug(log.Fields{
		"frame_bytes": len(payload),
		"boxes":       len(result.Boxes),
		"latency":     resp.Time().String(),
	}, "[inference.Predict] received sidecar response")

	return result.Boxes, nil
}

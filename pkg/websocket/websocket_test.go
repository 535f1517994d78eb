package websocketPkg

import (
	"ProductVision/pkg/detector"
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")
	os.Exit(m.Run())
}

// fakeSidecar answers every binary frame with reply(frame). It counts accepted
// connections so reconnects can be observed.
func fakeSidecar(t *testing.T, reply func(img image.Image) sidecarResponse, closeAfterFirst bool) (*httptest.Server, *int32) {
	t.Helper()
	var connections int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(&connections, 1)

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				conn.WriteJSON(sidecarResponse{Error: "expected binary frame"})
				continue
			}

			img, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				conn.WriteJSON(sidecarResponse{Error: err.Error()})
				continue
			}

			payload, _ := jsoniter.Marshal(reply(img))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			if closeAfterFirst {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv, &connections
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPredict_RoundTrip(t *testing.T) {
	srv, _ := fakeSidecar(t, func(img image.Image) sidecarResponse {
		b := img.Bounds()
		return sidecarResponse{Boxes: []detector.Box{
			{ClassID: 1, Confidence: 0.8, XYXY: [4]float64{0, 0, float64(b.Dx()), float64(b.Dy())}},
		}}
	}, false)

	client := newClient(wsURL(srv), []string{"person", "bottle"})
	defer client.Close()

	boxes, err := client.Predict(context.Background(), image.NewNRGBA(image.Rect(0, 0, 32, 24)))
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, 1, boxes[0].ClassID)
	assert.Equal(t, [4]float64{0, 0, 32, 24}, boxes[0].XYXY)
	assert.True(t, client.IsConnected())
	assert.Equal(t, []string{"person", "bottle"}, client.Names())
}

func TestPredict_WorksThroughDetectorAdapter(t *testing.T) {
	srv, _ := fakeSidecar(t, func(image.Image) sidecarResponse {
		return sidecarResponse{Boxes: []detector.Box{
			{ClassID: 0, Confidence: 0.91234, XYXY: [4]float64{1.111, 2.222, 3.333, 4.444}},
		}}
	}, false)

	det := detector.New(newClient(wsURL(srv), []string{"cup"}))
	defer det.Close()

	dets, err := det.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 8, 8)))
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "cup", dets[0].Class)
	assert.Equal(t, 0.912, dets[0].Confidence)
}

func TestPredict_SidecarError(t *testing.T) {
	srv, _ := fakeSidecar(t, func(image.Image) sidecarResponse {
		return sidecarResponse{Error: "model not loaded"}
	}, false)

	client := newClient(wsURL(srv), detector.COCOLabels)
	defer client.Close()

	_, err := client.Predict(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	assert.ErrorIs(t, err, ErrSidecar)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestPredict_ReconnectsAfterDroppedConnection(t *testing.T) {
	srv, connections := fakeSidecar(t, func(image.Image) sidecarResponse {
		return sidecarResponse{Boxes: []detector.Box{}}
	}, true)

	client := newClient(wsURL(srv), detector.COCOLabels)
	defer client.Close()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))

	_, err := client.Predict(context.Background(), img)
	require.NoError(t, err)

	// The sidecar hung up after answering; the next read fails and drops the connection.
	_, err = client.Predict(context.Background(), img)
	require.Error(t, err)
	assert.False(t, client.IsConnected())

	_, err = client.Predict(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(connections))
}

func TestPredict_UnreachableSidecar(t *testing.T) {
	client := newClient("ws://127.0.0.1:1/ws/infer", detector.COCOLabels)

	_, err := client.Predict(context.Background(), image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	assert.Error(t, err)
	assert.False(t, client.IsConnected())
	assert.NoError(t, client.Close())
}

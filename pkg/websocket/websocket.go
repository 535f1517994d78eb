package websocketPkg

import (
	"ProductVision/pkg/detector"
	"ProductVision/pkg/frame"
	"ProductVision/pkg/log"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

const defaultDetectionURL = "ws://localhost:8001/ws/infer"

var ErrSidecar = errors.New("inference sidecar returned an error")

type IWebsocket interface {
	detector.Model
	IsConnected() bool
	Reconnect() error
}

// sidecarResponse is the JSON document the inference sidecar answers each frame with.
type sidecarResponse struct {
	Boxes []detector.Box `json:"boxes"`
	Error string         `json:"error,omitempty"`
}

type webSocketClient struct {
	url          string
	names        []string
	conn         *websocket.Conn
	mu           sync.Mutex
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewAIWebSocketClient(names []string) IWebsocket {
	client := newClient(getWebSocketURL(), names)
	go client.connectInBackground()
	return client
}

func newClient(url string, names []string) *webSocketClient {
	return &webSocketClient{
		url:          url,
		names:        names,
		pingInterval: 30 * time.Second,
		readTimeout:  10 * time.Second,
		writeTimeout: 5 * time.Second,
	}
}

func getWebSocketURL() string {
	if url := os.Getenv("AI_DETECTION_URL"); url != "" {
		return url
	}
	return defaultDetectionURL
}

func (c *webSocketClient) connectInBackground() {
	if err := c.Reconnect(); err != nil {
		log.Warn(log.Fields{
			"url":   c.url,
			"error": err.Error(),
		}, "[websocket.connectInBackground] initial connection failed, will retry on demand")
		return
	}
	log.Info(log.Fields{"url": c.url}, "[websocket.connectInBackground] connected to inference sidecar")
}

func (c *webSocketClient) Names() []string {
	return c.names
}

func (c *webSocketClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *webSocketClient) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectLocked()
}

func (c *webSocketClient) reconnectLocked() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if err != nil {
			log.Warn(log.Fields{"error": err.Error()}, "[websocket.pingHandler] failed to send pong")
		}
		return nil
	})

	c.conn = conn
	go c.keepAlive(conn)

	return nil
}

func (c *webSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *webSocketClient) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			log.Warn(log.Fields{
				"url":   c.url,
				"error": err.Error(),
			}, "[websocket.keepAlive] ping failed, marking connection as dead")
			c.conn = nil
			conn.Close()
			c.mu.Unlock()
			return
		}

		c.mu.Unlock()
	}
}

// Predict sends one JPEG frame and waits for its answer. The connection is held
// for the whole round trip so responses cannot interleave between callers.
func (c *webSocketClient) Predict(ctx context.Context, img image.Image) ([]detector.Box, error) {
	payload, err := frame.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.reconnectLocked(); err != nil {
			return nil, fmt.Errorf("cannot connect to inference sidecar: %w", err)
		}
	}
	conn := c.conn

	writeDeadline := time.Now().Add(c.writeTimeout)
	readDeadline := time.Now().Add(c.readTimeout)
	if deadline, ok := ctx.Deadline(); ok {
		if deadline.Before(writeDeadline) {
			writeDeadline = deadline
		}
		if deadline.Before(readDeadline) {
			readDeadline = deadline
		}
	}

	conn.SetWriteDeadline(writeDeadline)
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		c.dropLocked(conn)
		return nil, fmt.Errorf("error sending frame: %w", err)
	}

	conn.SetReadDeadline(readDeadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		c.dropLocked(conn)
		return nil, fmt.Errorf("error reading sidecar response: %w", err)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	var result sidecarResponse
	if err := jsoniter.Unmarshal(message, &result); err != nil {
		return nil, fmt.Errorf("error unmarshaling sidecar response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrSidecar, result.Error)
	}

	log.Debug(log.Fields{
		"frame_bytes": len(payload),
		"boxes":       len(result.Boxes),
	}, "[websocket.Predict] received sidecar response")

	return result.Boxes, nil
}

func (c *webSocketClient) dropLocked(conn *websocket.Conn) {
	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

package detectionHandler

import (
	"ProductVision/internal/api/detection"
	detectionService "ProductVision/internal/api/detection/service"
	contextPkg "ProductVision/pkg/context"
	"ProductVision/pkg/log"
	"ProductVision/pkg/response"
	"errors"
	"fmt"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type sessionState int

const (
	sessionOpen sessionState = iota
	sessionClosed
)

func (s sessionState) String() string {
	if s == sessionOpen {
		return "open"
	}
	return "closed"
}

// frameConn is the part of a WebSocket connection a streaming session needs.
type frameConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// streamSession serves one /ws/predict connection: a binary frame in, one
// predictions document out, strictly in turn. The first failure of any kind is
// reported once as {"error": ...} and ends the session.
type streamSession struct {
	id      string
	ctx     context.Context
	conn    frameConn
	service detectionService.IDetectionService
	log     *logrus.Logger
	state   sessionState
	frames  int
}

func newStreamSession(conn frameConn, service detectionService.IDetectionService, logger *logrus.Logger) *streamSession {
	id := uuid.NewString()
	return &streamSession{
		id:      id,
		ctx:     contextPkg.WithSessionID(context.Background(), id),
		conn:    conn,
		service: service,
		log:     logger,
		state:   sessionOpen,
	}
}

func (h *DetectionHandler) handlePredictStream(c *websocket.Conn) {
	newStreamSession(c, h.detectionService, h.log).run()
}

func (s *streamSession) fields() log.Fields {
	return log.Fields{
		"session_id": contextPkg.GetSessionID(s.ctx),
		"frames":     s.frames,
	}
}

func (s *streamSession) run() {
	s.log.WithFields(s.fields()).Info("Prediction stream opened")

	for s.state == sessionOpen {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithFields(s.fields()).Info("Client closed prediction stream")
				s.terminate()
				return
			}
			s.fail(fmt.Errorf("failed to receive frame: %w", err))
			return
		}

		if messageType != websocket.BinaryMessage {
			s.fail(detection.ErrUnsupportedFrame)
			return
		}

		result, err := s.service.PredictFrame(s.ctx, message)
		if err != nil {
			s.fail(err)
			return
		}

		if err := s.conn.WriteJSON(result); err != nil {
			s.fail(fmt.Errorf("failed to send predictions: %w", err))
			return
		}
		s.frames++
	}
}

// fail sends the error to the client once, best effort, then terminates.
func (s *streamSession) fail(err error) {
	if s.state == sessionClosed {
		return
	}

	entry := s.log.WithFields(s.fields()).WithError(err)
	var respErr *response.Error
	if errors.As(err, &respErr) && respErr.Code < 500 {
		entry.Warn("Prediction stream failed")
	} else {
		entry.Error("Prediction stream failed")
	}

	if writeErr := s.conn.WriteJSON(detection.ErrorMessage{Error: err.Error()}); writeErr != nil {
		s.log.WithFields(s.fields()).WithError(writeErr).Debug("Could not deliver error to client")
	}

	s.terminate()
}

func (s *streamSession) terminate() {
	if s.state == sessionClosed {
		return
	}
	s.state = sessionClosed

	if err := s.conn.Close(); err != nil {
		s.log.WithFields(s.fields()).WithError(err).Debug("Error closing prediction stream")
	}
	s.log.WithFields(s.fields()).Info("Prediction stream closed")
}

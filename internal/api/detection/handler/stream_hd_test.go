package detectionHandler

import (
	"ProductVision/internal/api/detection"
	"ProductVision/internal/entity"
	"ProductVision/pkg/response"
	"errors"
	"io"
	"testing"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbound struct {
	messageType int
	data        []byte
	err         error
}

type fakeConn struct {
	inbox    []inbound
	sent     []interface{}
	writeErr error
	closed   int
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	if len(c.inbox) == 0 {
		return 0, nil, io.EOF
	}
	next := c.inbox[0]
	c.inbox = c.inbox[1:]
	return next.messageType, next.data, next.err
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

func binary(data string) inbound {
	return inbound{messageType: websocket.BinaryMessage, data: []byte(data)}
}

func TestStreamSession_AnswersEachFrameInOrder(t *testing.T) {
	svc := &fakeService{predictions: []entity.Detection{{Class: "cup", Confidence: 0.5, BBox: entity.BBox{0, 0, 1, 1}}}}
	conn := &fakeConn{inbox: []inbound{binary("frame-1"), binary("frame-2"), binary("frame-3")}}

	session := newStreamSession(conn, svc, quietLogger())
	require.NotEmpty(t, session.id)
	assert.Equal(t, sessionOpen, session.state)

	session.run()

	assert.Equal(t, [][]byte{[]byte("frame-1"), []byte("frame-2"), []byte("frame-3")}, svc.frames)
	require.Len(t, conn.sent, 4)
	for _, msg := range conn.sent[:3] {
		assert.Equal(t, &detection.PredictResponse{Predictions: svc.predictions}, msg)
	}
	// The inbox ran dry, which reads as a transport error and ends the session.
	assert.IsType(t, detection.ErrorMessage{}, conn.sent[3])
	assert.Equal(t, sessionClosed, session.state)
	assert.Equal(t, 3, session.frames)
	assert.Equal(t, 1, conn.closed)
}

func TestStreamSession_DecodeErrorIsFatal(t *testing.T) {
	svc := &fakeService{predictErr: response.Wrap(detection.ErrDecodeImage, errors.New("cannot identify image data"))}
	conn := &fakeConn{inbox: []inbound{binary("junk"), binary("never-read")}}

	session := newStreamSession(conn, svc, quietLogger())
	session.run()

	require.Len(t, conn.sent, 1)
	msg := conn.sent[0].(detection.ErrorMessage)
	assert.Contains(t, msg.Error, "cannot identify image")
	assert.Len(t, svc.frames, 1)
	assert.Len(t, conn.inbox, 1)
	assert.Equal(t, sessionClosed, session.state)
	assert.Equal(t, 1, conn.closed)
}

func TestStreamSession_TextFrameIsFatal(t *testing.T) {
	svc := &fakeService{}
	conn := &fakeConn{inbox: []inbound{{messageType: websocket.TextMessage, data: []byte("hello")}}}

	newStreamSession(conn, svc, quietLogger()).run()

	require.Len(t, conn.sent, 1)
	assert.Equal(t, detection.ErrorMessage{Error: detection.ErrUnsupportedFrame.Error()}, conn.sent[0])
	assert.Empty(t, svc.frames)
	assert.Equal(t, 1, conn.closed)
}

func TestStreamSession_WriteFailureStillCloses(t *testing.T) {
	svc := &fakeService{predictions: []entity.Detection{}}
	conn := &fakeConn{inbox: []inbound{binary("frame")}, writeErr: errors.New("broken pipe")}

	session := newStreamSession(conn, svc, quietLogger())
	session.run()

	assert.Empty(t, conn.sent)
	assert.Equal(t, sessionClosed, session.state)
	assert.Equal(t, 1, conn.closed)
}

func TestStreamSession_TerminateIsIdempotent(t *testing.T) {
	conn := &fakeConn{}
	session := newStreamSession(conn, &fakeService{}, quietLogger())

	session.terminate()
	session.terminate()
	session.fail(errors.New("late"))

	assert.Equal(t, 1, conn.closed)
	assert.Empty(t, conn.sent)
	assert.Equal(t, "closed", session.state.String())
}

func TestStreamSession_IndependentIDs(t *testing.T) {
	a := newStreamSession(&fakeConn{}, &fakeService{}, quietLogger())
	b := newStreamSession(&fakeConn{}, &fakeService{}, quietLogger())
	assert.NotEqual(t, a.id, b.id)
}

func TestStreamSession_CleanCloseSkipsErrorReply(t *testing.T) {
	for _, code := range []int{websocket.CloseNormalClosure, websocket.CloseGoingAway} {
		svc := &fakeService{predictions: []entity.Detection{}}
		conn := &fakeConn{inbox: []inbound{binary("frame"), {err: &fastws.CloseError{Code: code}}}}

		session := newStreamSession(conn, svc, quietLogger())
		session.run()

		require.Len(t, conn.sent, 1, "close code %d", code)
		assert.IsType(t, &detection.PredictResponse{}, conn.sent[0])
		assert.Equal(t, sessionClosed, session.state)
		assert.Equal(t, 1, conn.closed)
	}
}

func TestStreamSession_AbnormalCloseIsReported(t *testing.T) {
	conn := &fakeConn{inbox: []inbound{{err: &fastws.CloseError{Code: websocket.CloseAbnormalClosure}}}}

	newStreamSession(conn, &fakeService{}, quietLogger()).run()

	require.Len(t, conn.sent, 1)
	assert.IsType(t, detection.ErrorMessage{}, conn.sent[0])
	assert.Equal(t, 1, conn.closed)
}

/*
Package handler provides the HTTP handler function for WebSocket connection upgrading.

This file contains HandleWebSocket and wsTransport, which adapts a *websocket.Conn to the
byte-stream Transport a chat session runs over: every inbound frame is one line and every
outbound line is one text frame.
*/
package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"tcpchat/internal/app/chat"
	"tcpchat/internal/pkg/logx"
)

// closeGracePeriod bounds the close control frame write.
const closeGracePeriod = time.Second

// wsTransport implements chat.Transport over a WebSocket connection.
// Read must only be called from one goroutine, and Write from one goroutine.
type wsTransport struct {
	conn *websocket.Conn

	// reader is the current frame, nil between frames.
	reader io.Reader

	// pendingNewline is set when a frame ended and its line terminator is still owed.
	pendingNewline bool
}

var _ chat.Transport = (*wsTransport)(nil)

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

// Read returns frame payloads with a '\n' after each frame.
func (t *wsTransport) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if t.pendingNewline {
			t.pendingNewline = false
			p[0] = '\n'
			return 1, nil
		}

		if t.reader == nil {
			messageType, r, err := t.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
				continue
			}
			t.reader = r
		}

		n, err := t.reader.Read(p)
		if errors.Is(err, io.EOF) {
			t.reader = nil
			t.pendingNewline = true
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as one text frame, without the stream line terminator.
func (t *wsTransport) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\r\n")
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *wsTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

// CloseWrite sends a normal-closure control frame.
func (t *wsTransport) CloseWrite() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// HandleWebSocket upgrades the request and runs a chat session over it until the session ends.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}
		conn.SetReadLimit(wsReadLimit)

		// After RealIP, r.RemoteAddr is a bare forwarded IP; the socket's ip:port is per-connection.
		addr := conn.RemoteAddr().String()
		logx.Debug("WebSocket connection established.", "remote_addr", addr, "real_ip", r.RemoteAddr)

		reason, err := deps.Chat.Handle(newWSTransport(conn), addr)
		if err != nil {
			logx.Info("WebSocket session refused.", "error", err.Error())
			return
		}

		logx.Debug("WebSocket session ended.", "reason", string(reason))
	}
}

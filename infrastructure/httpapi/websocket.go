package httpapi

import (
	"context"
	"group-cart/domain"
	"group-cart/errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// WebSocketHandler upgrades GET /ws and hands the channel to the gateway.
// Hello fields come from the query string: group_id, user_id, name, avatar.
type WebSocketHandler struct {
	log          *slog.Logger
	gateway      ConnectionServer
	upgrader     websocket.Upgrader
	maxFrameSize int64
}

func NewWebSocketHandler(log *slog.Logger, gateway ConnectionServer, maxFrameSize int64, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		log:          log,
		gateway:      gateway,
		maxFrameSize: maxFrameSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.log.Debug("WebSocket upgrade refused", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	if h.maxFrameSize > 0 {
		conn.SetReadLimit(h.maxFrameSize)
	}

	if err = h.gateway.Serve(r.Context(), NewWSConn(conn), HelloFromQuery(r.URL.Query())); err != nil {
		h.log.Warn("WebSocket connection ended with error", "remote_addr", r.RemoteAddr, "error", err)
	}
}

func HelloFromQuery(q url.Values) domain.Hello {
	return domain.Hello{
		GroupID: domain.GroupID(q.Get("group_id")),
		UserID:  domain.UserID(q.Get("user_id")),
		Name:    q.Get("name"),
		Avatar:  q.Get("avatar"),
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// WSConn adapts a gorilla connection to runtime.FrameConn.
// One goroutine reads, one goroutine writes, Close may be called from anywhere.
type WSConn struct {
	conn *websocket.Conn
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

func (c *WSConn) ReadFrame(_ context.Context) ([]byte, error) {
	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			if isNormalClose(err) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return frame, nil
		}
	}
}

func (c *WSConn) WriteFrame(ctx context.Context, frame []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *WSConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return c.conn.Close()
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

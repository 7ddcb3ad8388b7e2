package handlers

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"chat_terminal/internal/dispatcher"
	"chat_terminal/internal/protocol"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait   = 10 * time.Second
	pongWait    = 120 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	maxMsgSize  = 1 << 12 // 4 KB per line
	sendTimeout = 2 * time.Second
	outboundBuf = 64 // outbound queue depth per connection
	inboundBuf  = 16 // pending commands per connection
)

var (
	errConnClosed  = errors.New("connection closed")
	errSendTimeout = errors.New("send buffer full")
)

// Upgrader for HTTP -> WebSocket. Consider tightening CheckOrigin in production.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins for production
}

// wsConn adapts one websocket to the registry's Conn contract. All frames go
// through a single writer goroutine; Send is bounded-effort so one slow peer
// cannot stall a broadcast.
type wsConn struct {
	id        string
	sock      *websocket.Conn
	out       chan string
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(sock *websocket.Conn) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		sock: sock,
		out:  make(chan string, outboundBuf),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(m protocol.Message) error {
	select {
	case c.out <- m.String():
		return nil
	case <-c.done:
		return errConnClosed
	case <-time.After(sendTimeout):
		return errSendTimeout
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
	return nil
}

// writePump is the only goroutine allowed to write frames on the socket.
func (c *wsConn) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case line := <-c.out:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				_ = c.Close()
				return
			}
		case <-ping.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// wsConnect upgrades the request and runs the connection's read loop. Each
// connection gets one worker goroutine consuming its command queue in order,
// so a long /run never reorders that connection's own replies, while /quit is
// honored straight off the read path.
func (h *Handler) wsConnect(c *gin.Context) {
	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}

	conn := newWSConn(sock)
	sess := dispatcher.NewSession(conn)

	h.registry.Register(conn)
	if h.log != nil {
		h.log.Infow("ws_connected", "conn", conn.ID())
	}

	go conn.writePump()

	// Configure read limits and pong handler to extend the read deadline.
	sock.SetReadLimit(maxMsgSize)
	_ = sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	cmds := make(chan string, inboundBuf)
	ctx := c.Request.Context()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		quit := false
		for line := range cmds {
			if quit {
				continue
			}
			if h.dispatcher.Handle(ctx, sess, line) {
				quit = true
				_ = conn.Close()
			}
		}
	}()

readLoop:
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			break
		}
		_ = sock.SetReadDeadline(time.Now().Add(pongWait))

		line := string(data)
		// /quit is acted on here, not queued, so it cannot sit behind a
		// long-running command.
		if strings.EqualFold(strings.TrimSpace(line), "/quit") {
			_ = conn.Send(protocol.Info("bye"))
			break
		}
		// The queue send must not outlive the connection: if the writer
		// side tears down while the buffer is full, stop reading instead
		// of waiting for the worker to drain.
		select {
		case cmds <- line:
		case <-conn.done:
			break readLoop
		}
	}

	close(cmds)
	h.dispatcher.HangUp(sess)
	// Give the writer a moment to flush any goodbye before tearing down.
	time.Sleep(50 * time.Millisecond)
	_ = conn.Close()
	wg.Wait()

	if h.log != nil {
		h.log.Infow("ws_disconnected", "conn", conn.ID(), "user", sess.Username())
	}
}

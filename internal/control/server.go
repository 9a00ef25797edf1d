package control

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/1ureka/quickscreen/internal/session"
	"github.com/1ureka/quickscreen/internal/util"
)

// backlogLimit bounds the control events kept while no controller is attached.
const backlogLimit = 64

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server accepts one remote controller at a time for a session.
type Server struct {
	pin      string
	listener net.Listener
	connCh   chan *websocket.Conn
	active   atomic.Bool
	log      *util.Logger
}

// NewServer creates a control server with the given PIN for authentication.
func NewServer(pin string) *Server {
	return &Server{
		pin:    pin,
		connCh: make(chan *websocket.Conn, 1),
		log:    util.NewLogger("control"),
	}
}

// PIN returns the PIN controllers must present.
func (s *Server) PIN() string { return s.pin }

// Start begins listening on addr (e.g. ":0"). Returns the assigned port number.
func (s *Server) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start control server: %w", err)
	}
	s.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return port, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	if pin != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	first := s.active.CompareAndSwap(false, true)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if first {
			s.active.Store(false)
		}
		return
	}

	// Only one controller at a time.
	if !first {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
		return
	}

	s.log.Infof("controller connected from %s", r.RemoteAddr)
	s.connCh <- conn
}

// Close shuts down the listener, preventing new connections.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

// Serve relays sess over the attached controller until the session ends or
// ctx is cancelled. While no controller is attached, control events are kept
// (up to backlogLimit) and replayed to the next one; frames are dropped.
func (s *Server) Serve(ctx context.Context, sess session.Session) error {
	defer s.Close()

	var (
		ctrl    *controller
		backlog []Message
	)

	detach := func() {
		if ctrl == nil {
			return
		}
		ctrl.close()
		ctrl = nil
		s.active.Store(false)
	}
	defer detach()

	for {
		var ctrlDone <-chan struct{}
		if ctrl != nil {
			ctrlDone = ctrl.done
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case conn := <-s.connCh:
			ctrl = newController(ctx, conn, sess, s.log)
			for _, msg := range backlog {
				if err := ctrl.write(msg); err != nil {
					s.log.Warnf("failed to replay %s: %v", msg.Type, err)
					detach()
					break
				}
			}
			if ctrl != nil {
				backlog = nil
			}

		case <-ctrlDone:
			s.log.Infof("controller disconnected")
			detach()

		case ev, ok := <-sess.Events():
			if !ok {
				return nil
			}
			msg := FromEvent(ev)

			if ctrl == nil {
				if ev.Kind == session.EventFrameReady {
					continue
				}
				if len(backlog) == backlogLimit {
					s.log.Warnf("backlog full, dropping %s", backlog[0].Type)
					backlog = backlog[1:]
				}
				backlog = append(backlog, msg)
				continue
			}

			if err := ctrl.write(msg); err != nil {
				s.log.Warnf("failed to forward %s: %v", msg.Type, err)
				detach()
			}
		}
	}
}

// controller is one attached WebSocket. Serve owns all writes; the read loop
// owns all reads.
type controller struct {
	conn *websocket.Conn
	done chan struct{}
}

func newController(ctx context.Context, conn *websocket.Conn, sess session.Session, log *util.Logger) *controller {
	c := &controller{conn: conn, done: make(chan struct{})}
	go c.readLoop(ctx, sess, log)
	return c
}

// readLoop forwards incoming commands to the session until the connection fails.
func (c *controller) readLoop(ctx context.Context, sess session.Session, log *util.Logger) {
	defer close(c.done)

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.BinaryMessage {
			log.Warnf("ignoring non-binary message")
			continue
		}

		msg, err := decode(data)
		if err != nil {
			log.Warnf("%v", err)
			continue
		}
		cmd, err := msg.Command()
		if err != nil {
			log.Warnf("ignoring message: %v", err)
			continue
		}

		log.Debugf("command %v %s", cmd.Kind, cmd.ID)
		select {
		case sess.Commands() <- cmd:
		case <-sess.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *controller) write(msg Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *controller) close() {
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}

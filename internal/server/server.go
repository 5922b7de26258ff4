package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"

	"github.com/lotas/tabregel/internal/applog"
)

var (
	// ErrNotConnected is returned when no extension is connected.
	ErrNotConnected = errors.New("extension not connected")
	// ErrTimeout is returned when the extension does not answer in time.
	ErrTimeout = errors.New("extension did not respond")
)

// RemoteError is an error reported by the extension for a request.
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// IncomingMsg is a message from the extension: a reply to a request
// (ID set) or an event such as a context menu click.
type IncomingMsg struct {
	Type string `json:"type,omitempty"`
	// Reply fields
	ID      string          `json:"id,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Error   string          `json:"error,omitempty"`
	Tab     json.RawMessage `json:"tab,omitempty"`
	Tabs    json.RawMessage `json:"tabs,omitempty"`
	Groups  json.RawMessage `json:"groups,omitempty"`
	GroupID int             `json:"groupId,omitempty"`
	// Event fields
	Item     string `json:"item,omitempty"`
	TabID    int    `json:"tabId,omitempty"`
	WindowID int    `json:"windowId,omitempty"`
}

// OutgoingMsg is a request from tabregel to the extension.
type OutgoingMsg struct {
	ID        string  `json:"id"`
	Action    string  `json:"action"`
	WindowID  int     `json:"windowId,omitempty"`
	TabID     int     `json:"tabId,omitempty"`
	TabIDs    []int   `json:"tabIds,omitempty"`
	GroupID   int     `json:"groupId,omitempty"`
	Index     *int    `json:"index,omitempty"`
	URL       string  `json:"url,omitempty"`
	Active    *bool   `json:"active,omitempty"`
	Title     *string `json:"title,omitempty"`
	Color     string  `json:"color,omitempty"`
	Collapsed *bool   `json:"collapsed,omitempty"`
	Status    string  `json:"status,omitempty"`
}

// Server manages the WebSocket connection to the extension and matches
// replies to requests by ID.
type Server struct {
	port     int
	msgs     chan IncomingMsg
	mu       sync.Mutex
	conn     *websocket.Conn
	connCtx  context.Context
	pending  map[string]chan IncomingMsg
	gatherer prometheus.Gatherer
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port:    port,
		msgs:    make(chan IncomingMsg, 64),
		pending: make(map[string]chan IncomingMsg),
	}
}

// WithMetrics serves g on /metrics next to the WebSocket endpoint.
func (s *Server) WithMetrics(g prometheus.Gatherer) *Server {
	s.gatherer = g
	return s
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Messages returns the channel of events from the extension. Replies to
// requests are not delivered here.
func (s *Server) Messages() <-chan IncomingMsg {
	return s.msgs
}

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// WaitConnected blocks until an extension connects or ctx is done.
func (s *Server) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !s.Connected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for extension: %w", ErrNotConnected)
		case <-ticker.C:
		}
	}
	return nil
}

// Send sends a message to the connected extension without waiting.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	applog.Debug("ws.send", "action", msg.Action, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Request sends msg with a fresh ID and waits for the matching reply.
// A reply with ok=false becomes a *RemoteError.
func (s *Server) Request(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	msg.ID = uuid.NewString()
	reply := make(chan IncomingMsg, 1)

	s.mu.Lock()
	s.pending[msg.ID] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.ID)
		s.mu.Unlock()
	}()

	if err := s.Send(msg); err != nil {
		return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, err)
	}

	select {
	case in := <-reply:
		if in.OK != nil && !*in.OK {
			return in, &RemoteError{Action: msg.Action, Message: in.Error}
		}
		return in, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, ErrTimeout)
		}
		return IncomingMsg{}, ctx.Err()
	}
}

// route hands a reply to its waiting request. It reports false for
// messages that are not replies.
func (s *Server) route(msg IncomingMsg) bool {
	if msg.ID == "" {
		return false
	}
	s.mu.Lock()
	ch, ok := s.pending[msg.ID]
	s.mu.Unlock()
	if !ok {
		applog.Warn("ws.reply.orphan", "id", msg.ID)
		return true
	}
	select {
	case ch <- msg:
	default:
	}
	return true
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(16 << 20) // 16 MB, windows with many tabs can be large

		ctx := r.Context()
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connCtx = nil
			}
			s.mu.Unlock()
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			if s.route(msg) {
				continue
			}
			applog.Info("ws.recv", "type", msg.Type, "item", msg.Item)
			select {
			case s.msgs <- msg:
			default:
				applog.Warn("ws.dropped", "type", msg.Type)
			}
		}
	})
}

// Mux serves the WebSocket endpoint on / and, when configured, metrics on
// /metrics.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe starts the WebSocket server on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: s.Mux()}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Package monitor implements the link to the remote monitoring station: a
// websocket endpoint that accepts one monitor client at a time and exchanges
// one frame per websocket message.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"RobotSupervisor/internal/util"
)

var (
	// ErrNoClient is returned by ReadFrame and WriteFrame while no monitor is connected.
	ErrNoClient = errors.New("no monitor connected")
	// ErrServerClosed is returned by Open after Shutdown.
	ErrServerClosed = errors.New("monitor server closed")
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// acceptWait bounds how long a new websocket waits for the supervisor to accept it.
const acceptWait = 5 * time.Second

// Server is the monitor link.
type Server struct {
	Addr   string
	Path   string
	Binary bool // send binary websocket messages (msgpack wire format)

	listener net.Listener
	server   *http.Server
	routes   map[string]http.Handler
	incoming chan *websocket.Conn
	closed   chan struct{}
	once     sync.Once

	mu      sync.Mutex
	current *websocket.Conn
	writeMu sync.Mutex
}

// NewServer constructs a monitor server listening on addr at path.
func NewServer(addr, path string) *Server {
	if path == "" {
		path = "/ws"
	}
	return &Server{
		Addr:     addr,
		Path:     path,
		routes:   make(map[string]http.Handler),
		incoming: make(chan *websocket.Conn),
		closed:   make(chan struct{}),
	}
}

// Handle registers an extra HTTP route served next to the websocket
// endpoint. It must be called before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.routes[pattern] = h
}

// Start binds the listener and serves websocket upgrades in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("monitor listen %s: %w", s.Addr, err)
	}
	s.listener = ln
	mux := http.NewServeMux()
	mux.HandleFunc(s.Path, s.handleWS)
	for pattern, h := range s.routes {
		mux.Handle(pattern, h)
	}
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	util.Named("monitor").Infof("listening on %s%s", ln.Addr(), s.Path)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Named("monitor").Errorf("serve: %v", err)
		}
	}()
	return nil
}

// ListenAddr returns the bound address, or "" before Start.
func (s *Server) ListenAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleWS upgrades HTTP to websocket and hands the connection to Open.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	timer := time.NewTimer(acceptWait)
	defer timer.Stop()
	select {
	case s.incoming <- conn:
	case <-timer.C:
		reject(conn, "monitor already connected")
	case <-s.closed:
		reject(conn, "supervisor shutting down")
	}
}

func reject(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	if err := conn.Close(); err != nil {
		util.Named("monitor").Warnf("failed to close rejected websocket: %v", err)
	}
}

// Open blocks until a monitor client connects, ctx is done or the server shuts down.
func (s *Server) Open(ctx context.Context) error {
	select {
	case conn := <-s.incoming:
		s.mu.Lock()
		old := s.current
		s.current = conn
		s.mu.Unlock()
		if old != nil {
			_ = old.Close()
		}
		util.Named("monitor").Infof("monitor connected from %s", conn.RemoteAddr())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrServerClosed
	}
}

func (s *Server) conn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ReadFrame blocks until the monitor sends a message. It fails once the
// client disconnects or Close is called.
func (s *Server) ReadFrame() ([]byte, error) {
	conn := s.conn()
	if conn == nil {
		return nil, ErrNoClient
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("monitor read: %w", err)
	}
	return data, nil
}

// WriteFrame sends one message to the monitor.
func (s *Server) WriteFrame(data []byte) error {
	conn := s.conn()
	if conn == nil {
		return ErrNoClient
	}
	kind := websocket.TextMessage
	if s.Binary {
		kind = websocket.BinaryMessage
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteMessage(kind, data); err != nil {
		return fmt.Errorf("monitor write: %w", err)
	}
	return nil
}

// Close disconnects the current monitor client, if any. The server keeps
// listening so that Open can accept the next client.
func (s *Server) Close() error {
	s.mu.Lock()
	conn := s.current
	s.current = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Shutdown stops the HTTP server and disconnects the client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.once.Do(func() { close(s.closed) })
	_ = s.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

package cage

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSClient implements ClientTransport over a WebSocket connection, the CAGE
// orchestrator's native MCP endpoint (ws://host:port/mcp). Instances should
// be created using NewWSClient.
type WSClient struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *slog.Logger

	pingInterval time.Duration
	pongWait     time.Duration
}

// WSClientOption represents the options for the WSClient.
type WSClientOption func(*WSClient)

type wsSession struct {
	id     string
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu  sync.Mutex
	messages chan JSONRPCMessage

	done     chan struct{}
	stopOnce sync.Once
}

var (
	defaultWSPingInterval = 20 * time.Second
	defaultWSPongWait     = 60 * time.Second
)

// NewWSClient creates a WebSocket transport that connects to the given URL.
// The connection is not dialed until StartSession is called.
func NewWSClient(url string, options ...WSClientOption) *WSClient {
	w := &WSClient{
		url:    url,
		header: make(http.Header),
		dialer: websocket.DefaultDialer,
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(w)
	}

	if w.pingInterval == 0 {
		w.pingInterval = defaultWSPingInterval
	}
	if w.pongWait == 0 {
		w.pongWait = defaultWSPongWait
	}

	return w
}

// WithWSDialer sets a custom dialer, allowing TLS and handshake configuration.
func WithWSDialer(dialer *websocket.Dialer) WSClientOption {
	return func(w *WSClient) {
		w.dialer = dialer
	}
}

// WithWSHeader sets additional headers sent with the handshake request.
func WithWSHeader(header http.Header) WSClientOption {
	return func(w *WSClient) {
		w.header = header
	}
}

// WithWSLogger sets the logger for the transport.
func WithWSLogger(logger *slog.Logger) WSClientOption {
	return func(w *WSClient) {
		w.logger = logger
	}
}

// WithWSPingInterval sets how often keepalive pings are sent. The connection
// is considered dead when no pong arrives within three intervals.
func WithWSPingInterval(interval time.Duration) WSClientOption {
	return func(w *WSClient) {
		w.pingInterval = interval
		w.pongWait = 3 * interval
	}
}

// StartSession dials the orchestrator and returns the established session.
// The read pump and keepalive loop run until the session is stopped or the
// peer closes the connection.
func (w *WSClient) StartSession(ctx context.Context) (Session, error) {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (status %d): %w", w.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", w.url, err)
	}

	sess := &wsSession{
		id:       uuid.New().String(),
		conn:     conn,
		logger:   w.logger,
		messages: make(chan JSONRPCMessage),
		done:     make(chan struct{}),
	}

	_ = conn.SetReadDeadline(time.Now().Add(w.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.pongWait))
	})

	go sess.readPump()
	go sess.keepalive(w.pingInterval)

	return sess, nil
}

func (s *wsSession) ID() string { return s.id }

// Send writes one message as a single text frame. Concurrent senders are
// serialized; the gorilla connection permits only one writer at a time.
func (s *wsSession) Send(ctx context.Context, msg JSONRPCMessage) error {
	select {
	case <-s.done:
		return ErrConnectionClosed
	default:
	}

	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}
	_ = s.conn.SetWriteDeadline(deadline)

	if err := s.conn.WriteMessage(websocket.TextMessage, msgBs); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (s *wsSession) Messages() iter.Seq[JSONRPCMessage] {
	return func(yield func(JSONRPCMessage) bool) {
		for msg := range s.messages {
			if !yield(msg) {
				return
			}
		}
	}
}

func (s *wsSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		// Closing the connection unblocks the read pump, which in turn
		// closes the messages channel.
		_ = s.conn.Close()
	})
}

func (s *wsSession) readPump() {
	defer close(s.messages)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Error("websocket read failed", slog.String("err", err.Error()))
				}
				s.Stop()
			}
			return
		}

		msg, err := decodeMessage(data)
		if err != nil {
			s.logger.Error("dropping undecodable message", slog.String("err", err.Error()))
			continue
		}

		select {
		case s.messages <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *wsSession) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				select {
				case <-s.done:
				default:
					s.logger.Error("websocket ping failed", slog.String("err", err.Error()))
					s.Stop()
				}
				return
			}
		case <-s.done:
			return
		}
	}
}

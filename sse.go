package cage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

// SSEClient implements ClientTransport over Server-Sent Events, the MCP
// fallback transport for gateways that front the orchestrator without
// WebSocket support. Server-to-client messages arrive on the event stream;
// client-to-server messages are POSTed to the endpoint URL the server
// announces when the stream opens. Instances should be created using
// NewSSEClient.
type SSEClient struct {
	httpClient *http.Client
	connectURL string
	logger     *slog.Logger

	maxPayloadSize int
}

// SSEClientOption represents the options for the SSEClient.
type SSEClientOption func(*SSEClient)

type sseSession struct {
	id         string
	httpClient *http.Client
	messageURL string
	logger     *slog.Logger

	cancel   context.CancelFunc
	messages chan JSONRPCMessage

	done     chan struct{}
	stopOnce sync.Once
}

// NewSSEClient creates an SSE transport that connects to the given stream
// URL. The optional httpClient parameter allows custom HTTP client
// configuration - if nil, the default HTTP client is used.
func NewSSEClient(connectURL string, httpClient *http.Client, options ...SSEClientOption) *SSEClient {
	cli := httpClient
	if cli == nil {
		cli = http.DefaultClient
	}
	s := &SSEClient{
		connectURL: connectURL,
		httpClient: cli,
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// WithSSEClientMaxPayloadSize sets the maximum size of a single event payload
// accepted from the server; larger events terminate the stream.
func WithSSEClientMaxPayloadSize(size int) SSEClientOption {
	return func(s *SSEClient) {
		s.maxPayloadSize = size
	}
}

// WithSSEClientLogger sets the logger for the transport.
func WithSSEClientLogger(logger *slog.Logger) SSEClientOption {
	return func(s *SSEClient) {
		s.logger = logger
	}
}

// StartSession opens the event stream and blocks until the server announces
// the message endpoint, so the returned session is immediately usable for
// sending.
func (s *SSEClient) StartSession(ctx context.Context) (Session, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.connectURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to SSE server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	sess := &sseSession{
		id:         uuid.New().String(),
		httpClient: s.httpClient,
		logger:     s.logger,
		cancel:     cancel,
		messages:   make(chan JSONRPCMessage),
		done:       make(chan struct{}),
	}

	ready := make(chan error, 1)
	go sess.listenSSEMessages(resp.Body, s.maxPayloadSize, ready)

	select {
	case err, ok := <-ready:
		if ok && err != nil {
			sess.Stop()
			return nil, err
		}
	case <-ctx.Done():
		sess.Stop()
		return nil, ctx.Err()
	}

	return sess, nil
}

func (s *sseSession) ID() string { return s.id }

// Send transmits a JSON-encoded message to the server through an HTTP POST
// request to the announced endpoint.
func (s *sseSession) Send(ctx context.Context, msg JSONRPCMessage) error {
	select {
	case <-s.done:
		return ErrConnectionClosed
	default:
	}

	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.messageURL, bytes.NewReader(msgBs))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

func (s *sseSession) Messages() iter.Seq[JSONRPCMessage] {
	return func(yield func(JSONRPCMessage) bool) {
		for msg := range s.messages {
			if !yield(msg) {
				return
			}
		}
	}
}

func (s *sseSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		// Canceling the stream context ends the event loop, which closes
		// the messages channel.
		s.cancel()
	})
}

func (s *sseSession) listenSSEMessages(body io.ReadCloser, maxPayloadSize int, ready chan<- error) {
	defer func() {
		body.Close()
		close(s.messages)
	}()

	var config *sse.ReadConfig
	if maxPayloadSize > 0 {
		config = &sse.ReadConfig{
			MaxEventSize: maxPayloadSize,
		}
	}

	announced := false
	defer func() {
		if !announced {
			ready <- errors.New("stream ended before endpoint announcement")
		}
	}()

	for ev, err := range sse.Read(body, config) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("failed to read SSE message", slog.String("err", err.Error()))
			}
			return
		}

		switch ev.Type {
		case "endpoint":
			// The endpoint URL must be validated before any message is sent
			// through it, so a malformed announcement fails the session
			// instead of routing messages to a bogus destination.
			u, err := url.Parse(ev.Data)
			if err != nil {
				announced = true
				ready <- fmt.Errorf("parse endpoint URL: %w", err)
				return
			}
			if u.String() == "" {
				announced = true
				ready <- errors.New("empty endpoint URL")
				return
			}
			s.messageURL = u.String()
			announced = true
			close(ready)
		case "message":
			if s.messageURL == "" {
				s.logger.Error("received message before endpoint URL")
				continue
			}

			msg, err := decodeMessage([]byte(ev.Data))
			if err != nil {
				s.logger.Error("dropping undecodable message", slog.String("err", err.Error()))
				continue
			}

			select {
			case s.messages <- msg:
			case <-s.done:
				return
			}
		default:
			s.logger.Error("unhandled event type", slog.String("type", ev.Type))
		}
	}
}

package cage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// StdIO implements ClientTransport over an io.Reader/io.Writer pair using
// newline-delimited JSON-RPC messages. It is used by MCP host processes that
// spawn a relay to the orchestrator, and by tests that pipe a client to a
// scripted peer. Instances should be created using NewStdIO.
type StdIO struct {
	reader io.Reader
	writer io.Writer
	logger *slog.Logger
}

type stdIOSession struct {
	id     string
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	writeMu  sync.Mutex
	messages chan JSONRPCMessage

	done     chan struct{}
	stopOnce sync.Once
}

// NewStdIO creates a stdio transport over the provided reader and writer.
func NewStdIO(reader io.Reader, writer io.Writer) StdIO {
	return StdIO{
		reader: reader,
		writer: writer,
		logger: slog.Default(),
	}
}

// StartSession begins reading messages from the reader. The session ends when
// the reader reaches EOF or Stop is called.
func (s StdIO) StartSession(_ context.Context) (Session, error) {
	sess := &stdIOSession{
		id:       uuid.New().String(),
		reader:   s.reader,
		writer:   s.writer,
		logger:   s.logger,
		messages: make(chan JSONRPCMessage),
		done:     make(chan struct{}),
	}

	go sess.readLines()

	return sess, nil
}

func (s *stdIOSession) ID() string { return s.id }

func (s *stdIOSession) Send(ctx context.Context, msg JSONRPCMessage) error {
	select {
	case <-s.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msgBs, err := encodeLine(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.writer.Write(msgBs); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (s *stdIOSession) Messages() iter.Seq[JSONRPCMessage] {
	return func(yield func(JSONRPCMessage) bool) {
		for msg := range s.messages {
			if !yield(msg) {
				return
			}
		}
	}
}

func (s *stdIOSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *stdIOSession) readLines() {
	defer close(s.messages)

	type lineWithErr struct {
		line string
		err  error
	}
	lines := make(chan lineWithErr)

	// The blocking read runs in its own goroutine so Stop ends the session
	// even when the reader never produces another line. bufio.Reader instead
	// of bufio.Scanner avoids max token size errors on large payloads.
	go func() {
		reader := bufio.NewReader(s.reader)
		for {
			line, err := reader.ReadString('\n')
			select {
			case lines <- lineWithErr{line: line, err: err}:
				if err != nil {
					return
				}
			case <-s.done:
				return
			}
		}
	}()

	for {
		var lwe lineWithErr
		select {
		case lwe = <-lines:
		case <-s.done:
			return
		}

		if lwe.err != nil {
			if !errors.Is(lwe.err, io.EOF) {
				s.logger.Error("failed to read message", slog.String("err", lwe.err.Error()))
			}
			return
		}

		line := strings.TrimSuffix(lwe.line, "\n")
		if line == "" {
			continue
		}

		msg, err := decodeMessage([]byte(line))
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

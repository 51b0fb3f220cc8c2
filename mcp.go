package cage

import (
	"context"
	"iter"
)

// ClientTransport provides the communication layer underneath the MCP client.
// Implementations own exactly one bidirectional message stream per session.
type ClientTransport interface {
	// StartSession establishes the connection and returns a Session once the
	// transport is ready to carry messages. Connection or TLS failures are
	// returned directly; the Client wraps them in ConnectError.
	StartSession(ctx context.Context) (Session, error)
}

// Session represents one established bidirectional connection to the
// orchestrator. One Send call transmits one logical message; the Messages
// iterator yields one logical message per iteration.
type Session interface {
	// ID returns the unique identifier for this session.
	ID() string

	// Send transmits a message to the orchestrator. It fails if the session
	// is closed or the write does not complete before the context deadline.
	Send(ctx context.Context, msg JSONRPCMessage) error

	// Messages returns an iterator that yields messages received from the
	// orchestrator. The iteration ends when the session is closed by either
	// side. Undecodable wire data is logged and skipped, never yielded.
	Messages() iter.Seq[JSONRPCMessage]

	// Stop closes the session and releases the underlying connection. It is
	// idempotent and safe to call concurrently with Send.
	Stop()
}

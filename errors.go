package cage

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by both protocol clients. Transport and connection
// faults are distinguishable from orchestrator-reported errors (JSONRPCError,
// ToolError) because the retry strategy differs: a dropped connection is
// generally retry-safe, a reported execution failure is not.
var (
	// ErrNotReady is returned when a call is attempted before the initialize
	// handshake completes.
	ErrNotReady = errors.New("client not ready")

	// ErrConnectionClosed is returned when the connection drops while a call
	// is pending, or when a call is attempted on a closed client.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrMalformedMessage is returned when wire data cannot be decoded as a
	// JSON-RPC 2.0 message.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrAuthentication is returned by the REST client when the orchestrator
	// rejects the API key.
	ErrAuthentication = errors.New("invalid API key")

	// ErrRateLimited is returned by the REST client when the orchestrator
	// throttles the request.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNotFound is returned by the REST client for missing files, jobs,
	// or sessions.
	ErrNotFound = errors.New("not found")
)

// ConnectError indicates that the underlying transport could not be
// established, before any protocol exchange took place.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ToolError indicates that a tool call reached the orchestrator and the tool
// itself reported failure, with the failure text produced by the sandbox.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

package cage

import (
	"encoding/json"
	"fmt"
)

// MustString is a type that enforces string representation for fields that can be either
// string or integer in the protocol, such as request IDs. It handles automatic conversion
// during JSON marshaling/unmarshaling.
type MustString string

// JSONRPCMessage represents a JSON-RPC 2.0 message exchanged with the orchestrator.
// It can represent either a request, response, or notification depending on which
// fields are populated:
//   - Request: JSONRPC, ID, Method, and Params are set
//   - Response: JSONRPC, ID, and either Result or Error are set
//   - Notification: JSONRPC and Method are set (no ID)
type JSONRPCMessage struct {
	// JSONRPC must always be "2.0" per the JSON-RPC specification
	JSONRPC string `json:"jsonrpc"`
	// ID uniquely identifies request-response pairs and must be a string or number
	ID MustString `json:"id,omitempty"`
	// Method contains the RPC method name for requests and notifications
	Method string `json:"method,omitempty"`
	// Params contains the parameters for the method call as a raw JSON message
	Params json.RawMessage `json:"params,omitempty"`
	// Result contains the successful response data as a raw JSON message
	Result json.RawMessage `json:"result,omitempty"`
	// Error contains error details if the request failed
	Error *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents an error response in the JSON-RPC 2.0 protocol. A decoded
// error envelope is a normal protocol value, not a transport fault; it implements
// error so callers can match it with errors.As.
type JSONRPCError struct {
	// Code indicates the error type that occurred.
	Code int `json:"code"`

	// Message provides a short description of the error.
	Message string `json:"message"`

	// Data contains additional information about the error. May be omitted.
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	// JSONRPCVersion specifies the JSON-RPC protocol version used for communication.
	JSONRPCVersion = "2.0"

	// MethodInitialize is the handshake method that must complete before any other call.
	MethodInitialize = "initialize"
	// MethodToolsList is the method name for retrieving a list of available tools.
	MethodToolsList = "tools/list"
	// MethodToolsCall is the method name for invoking a specific tool.
	MethodToolsCall = "tools/call"
	// MethodResourcesList is the method name for listing resources exposed by the orchestrator.
	MethodResourcesList = "resources/list"

	jsonRPCParseErrorCode     = -32700
	jsonRPCInvalidRequestCode = -32600
	jsonRPCMethodNotFoundCode = -32601
	jsonRPCInvalidParamsCode  = -32602
	jsonRPCInternalErrorCode  = -32603

	// Orchestrator-specific codes.
	codeExecutionError  = -32000
	codeUnauthenticated = -32001
	codeNotInitialized  = -32002
)

// decodeMessage parses raw wire data into a JSONRPCMessage. It returns an error
// wrapping ErrMalformedMessage if the data is not valid JSON, carries the wrong
// protocol version, or is neither a request nor a response shape.
func decodeMessage(data []byte) (JSONRPCMessage, error) {
	var msg JSONRPCMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return JSONRPCMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.JSONRPC != JSONRPCVersion {
		return JSONRPCMessage{}, fmt.Errorf("%w: jsonrpc version %q", ErrMalformedMessage, msg.JSONRPC)
	}
	if msg.Method == "" && msg.Result == nil && msg.Error == nil {
		return JSONRPCMessage{}, fmt.Errorf("%w: neither request nor response", ErrMalformedMessage)
	}
	return msg, nil
}

// encodeLine serializes a message followed by a newline, the framing used by
// line-delimited transports.
func encodeLine(msg JSONRPCMessage) ([]byte, error) {
	msgBs, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return append(msgBs, '\n'), nil
}

// UnmarshalJSON implements json.Unmarshaler to convert JSON data into MustString,
// handling both string and numeric input formats.
func (m *MustString) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch v := v.(type) {
	case string:
		*m = MustString(v)
	case float64:
		*m = MustString(fmt.Sprintf("%d", int(v)))
	case int:
		*m = MustString(fmt.Sprintf("%d", v))
	default:
		return fmt.Errorf("invalid type: %T", v)
	}

	return nil
}

// MarshalJSON implements json.Marshaler to convert MustString into its JSON
// representation, always encoding as a string value.
func (m MustString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(m))
}

func (j JSONRPCError) Error() string {
	return fmt.Sprintf("request error, code: %d, message: %s", j.Code, j.Message)
}

package cage

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeMessageRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		msg  JSONRPCMessage
	}{
		{
			name: "request with params",
			msg: JSONRPCMessage{
				JSONRPC: JSONRPCVersion,
				ID:      "1",
				Method:  MethodToolsCall,
				Params:  json.RawMessage(`{"name":"execute_code","arguments":{"code":"print(1)"}}`),
			},
		},
		{
			name: "request without params",
			msg: JSONRPCMessage{
				JSONRPC: JSONRPCVersion,
				ID:      "2",
				Method:  MethodToolsList,
			},
		},
		{
			name: "success response",
			msg: JSONRPCMessage{
				JSONRPC: JSONRPCVersion,
				ID:      "3",
				Result:  json.RawMessage(`{"tools":[]}`),
			},
		},
		{
			name: "error response",
			msg: JSONRPCMessage{
				JSONRPC: JSONRPCVersion,
				ID:      "4",
				Error:   &JSONRPCError{Code: jsonRPCMethodNotFoundCode, Message: "Method not found"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			first, err := json.Marshal(tc.msg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			decoded, err := decodeMessage(first)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			second, err := json.Marshal(decoded)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if string(first) != string(second) {
				t.Errorf("round trip mismatch: %s != %s", first, second)
			}
		})
	}
}

func TestEncodeOmitsAbsentParams(t *testing.T) {
	msgBs, err := json.Marshal(JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      "1",
		Method:  MethodToolsList,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(msgBs, &raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := raw["params"]; ok {
		t.Errorf("expected params to be omitted, got %s", raw["params"])
	}
}

func TestDecodeMessageMalformed(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{name: "not json", data: "not json at all"},
		{name: "wrong version", data: `{"jsonrpc":"1.0","id":"1","method":"tools/list"}`},
		{name: "missing version", data: `{"id":"1","method":"tools/list"}`},
		{name: "neither request nor response", data: `{"jsonrpc":"2.0","id":"1"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeMessage([]byte(tc.data))
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("expected ErrMalformedMessage, got %v", err)
			}
		})
	}
}

func TestDecodeMessageErrorEnvelope(t *testing.T) {
	// A server-reported error is a normal decoded value, not a codec fault.
	msg, err := decodeMessage([]byte(`{"jsonrpc":"2.0","id":"7","error":{"code":-32601,"message":"Method not found"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Error == nil {
		t.Fatal("expected error envelope")
	}
	if msg.Error.Code != jsonRPCMethodNotFoundCode {
		t.Errorf("expected code %d, got %d", jsonRPCMethodNotFoundCode, msg.Error.Code)
	}
	if msg.Error.Message != "Method not found" {
		t.Errorf("expected message Method not found, got %s", msg.Error.Message)
	}
}

func TestMustStringAcceptsIntegerIDs(t *testing.T) {
	msg, err := decodeMessage([]byte(`{"jsonrpc":"2.0","id":42,"result":{}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != "42" {
		t.Errorf("expected id 42, got %s", msg.ID)
	}

	msgBs, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(msgBs, &raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw["id"]) != `"42"` {
		t.Errorf("expected id to marshal as string, got %s", raw["id"])
	}
}

func TestEncodeLineAppendsNewline(t *testing.T) {
	line, err := encodeLine(JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      "1",
		Method:  MethodToolsList,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line[len(line)-1] != '\n' {
		t.Error("expected trailing newline")
	}
}

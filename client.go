package cage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Version identifies this SDK in the initialize handshake.
const Version = "1.0.0"

// ClientOption is a function that configures a client.
type ClientOption func(*Client)

// Client is the MCP client for the CAGE orchestrator. It manages the
// connection lifecycle, performs the initialize handshake, correlates
// concurrent JSON-RPC requests with their responses, and exposes the
// orchestrator's tools as typed methods.
//
// A Client must be created using NewClient() and requires Connect() to be
// called before any operations can be performed. The client should be
// closed using Close() when it's no longer needed.
//
// Any number of goroutines may issue calls concurrently on one connection;
// requests are sent in invocation order, and responses are matched to their
// callers by request id regardless of arrival order.
type Client struct {
	userID    string
	info      Info
	transport ClientTransport

	writeTimeout time.Duration
	logger       *slog.Logger

	serverInfo         Info
	serverCapabilities ServerCapabilities
	protocolVersion    string
	initialized        bool

	sess Session

	pendingReqs chan pendingRequest
	results     chan JSONRPCMessage
	unregisters chan string

	// done is closed when the correlator loop exits, after every pending
	// waiter has been resolved.
	done      chan struct{}
	closeOnce sync.Once
}

type pendingRequest struct {
	msgID   string
	resChan chan JSONRPCMessage
}

var defaultClientWriteTimeout = 30 * time.Second

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientWriteTimeout sets the write timeout for the client. The client
// imposes no timeout on waiting for responses; bounding execution time is the
// orchestrator's job via the timeout_seconds argument, and a dead connection
// is bounded by the transport's own keepalive.
func WithClientWriteTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.writeTimeout = timeout
	}
}

// NewClient creates a new MCP client for the given user. The userID
// authenticates the session inside the initialize params. The transport
// defines how the client reaches the orchestrator; see NewWSClient for the
// orchestrator's native WebSocket endpoint.
//
// The client will not be connected until Connect() is called.
func NewClient(userID string, transport ClientTransport, options ...ClientOption) *Client {
	c := &Client{
		userID:    userID,
		info:      Info{Name: "cage-go", Version: Version},
		transport: transport,
		logger:    slog.Default(),

		pendingReqs: make(chan pendingRequest),
		results:     make(chan JSONRPCMessage),
		unregisters: make(chan string),
		done:        make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.writeTimeout == 0 {
		c.writeTimeout = defaultClientWriteTimeout
	}

	return c
}

// Connect establishes a session with the orchestrator and performs the
// initialize handshake exactly once. On success the negotiated server info
// and capabilities become available and all other methods are unlocked; on
// failure the connection is closed and the error is returned.
//
// Connect must be called after creating a new client and before making any
// other client method calls.
func (c *Client) Connect(ctx context.Context) error {
	sess, err := c.transport.StartSession(ctx)
	if err != nil {
		return &ConnectError{Err: err}
	}
	c.sess = sess

	go c.correlate()
	go c.listenMessages()

	params := initializeParams{
		UserID:     c.userID,
		ClientInfo: c.info,
	}
	paramsBs, err := json.Marshal(params)
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to marshal initialize params: %w", err)
	}

	res, err := c.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  MethodInitialize,
		Params:  paramsBs,
	})
	if err != nil {
		c.Close()
		return fmt.Errorf("initialize failed: %w", err)
	}
	if res.Error != nil {
		c.Close()
		return fmt.Errorf("initialize failed: %w", res.Error)
	}

	var result initializeResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		c.Close()
		return fmt.Errorf("failed to unmarshal initialize result: %w", err)
	}

	c.serverInfo = result.ServerInfo
	c.serverCapabilities = result.Capabilities
	c.protocolVersion = result.ProtocolVersion
	c.initialized = true

	return nil
}

// Close terminates the session. Every call still pending receives
// ErrConnectionClosed; no caller is left blocked. Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.sess != nil {
			c.sess.Stop()
		}
	})
	if c.sess != nil {
		<-c.done
	}
}

// ServerInfo returns the orchestrator's identity negotiated during initialize.
func (c *Client) ServerInfo() Info {
	return c.serverInfo
}

// ServerCapabilities returns the capabilities negotiated during initialize.
func (c *Client) ServerCapabilities() ServerCapabilities {
	return c.serverCapabilities
}

// ListTools retrieves the tools the orchestrator exposes.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	if !c.initialized {
		return nil, ErrNotReady
	}

	res, err := c.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  MethodToolsList,
	})
	if err != nil {
		return nil, err
	}
	if res.Error != nil {
		return nil, fmt.Errorf("result error: %w", res.Error)
	}

	var result listToolsResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return nil, err
	}

	return result.Tools, nil
}

// ListResources retrieves the resources the orchestrator exposes for the
// authenticated user, such as the sandbox session and workspace file tree.
func (c *Client) ListResources(ctx context.Context) ([]ResourceInfo, error) {
	if !c.initialized {
		return nil, ErrNotReady
	}

	res, err := c.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  MethodResourcesList,
	})
	if err != nil {
		return nil, err
	}
	if res.Error != nil {
		return nil, fmt.Errorf("result error: %w", res.Error)
	}

	var result listResourcesResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return nil, err
	}

	return result.Resources, nil
}

// CallTool invokes a tool by name with raw arguments and returns its result.
// A JSON-RPC error response surfaces as a wrapped *JSONRPCError; a result
// with IsError set is returned as-is so callers can inspect the content.
// The typed wrappers below are preferred for the orchestrator's known tools.
func (c *Client) CallTool(ctx context.Context, params CallToolParams) (CallToolResult, error) {
	if !c.initialized {
		return CallToolResult{}, ErrNotReady
	}

	paramsBs, err := json.Marshal(params)
	if err != nil {
		return CallToolResult{}, fmt.Errorf("failed to marshal params: %w", err)
	}
	res, err := c.sendRequest(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  MethodToolsCall,
		Params:  paramsBs,
	})
	if err != nil {
		return CallToolResult{}, err
	}

	if res.Error != nil {
		return CallToolResult{}, fmt.Errorf("result error: %w", res.Error)
	}

	var result CallToolResult
	if err := json.Unmarshal(res.Result, &result); err != nil {
		return CallToolResult{}, err
	}

	return result, nil
}

// ExecuteCode runs code in the sandbox via the execute_code tool. Language
// defaults to python and TimeoutSeconds to 30. The Persistent flag is
// forwarded to the orchestrator, which retains interpreter state across
// persistent calls within one session.
func (c *Client) ExecuteCode(ctx context.Context, params ExecuteCodeParams) (ExecutionResult, error) {
	if params.Language == "" {
		params.Language = "python"
	}
	if params.TimeoutSeconds == 0 {
		params.TimeoutSeconds = 30
	}

	argsBs, err := json.Marshal(params)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to marshal arguments: %w", err)
	}

	res, err := c.CallTool(ctx, CallToolParams{
		Name:      ToolExecuteCode,
		Arguments: argsBs,
	})
	if err != nil {
		return ExecutionResult{}, err
	}
	if res.IsError {
		return ExecutionResult{}, &ToolError{Tool: ToolExecuteCode, Message: firstText(res.Content)}
	}

	result := ExecutionResult{Output: firstText(res.Content)}

	if len(res.Metadata) > 0 {
		var meta executionMetadata
		if err := json.Unmarshal(res.Metadata, &meta); err != nil {
			return ExecutionResult{}, fmt.Errorf("failed to unmarshal execution metadata: %w", err)
		}
		result.ExecutionID = meta.ExecutionID
		result.DurationMS = meta.DurationMS
		result.FilesCreated = meta.FilesCreated
	}

	return result, nil
}

// ListFiles lists workspace entries via the list_files tool. The orchestrator
// embeds the listing as a JSON document inside the first text content part,
// which is parsed here; path defaults to the workspace root.
func (c *Client) ListFiles(ctx context.Context, path string) (FileList, error) {
	if path == "" {
		path = "/"
	}

	argsBs, err := json.Marshal(listFilesParams{Path: path})
	if err != nil {
		return FileList{}, fmt.Errorf("failed to marshal arguments: %w", err)
	}

	res, err := c.CallTool(ctx, CallToolParams{
		Name:      ToolListFiles,
		Arguments: argsBs,
	})
	if err != nil {
		return FileList{}, err
	}
	if res.IsError {
		return FileList{}, &ToolError{Tool: ToolListFiles, Message: firstText(res.Content)}
	}

	text := firstText(res.Content)
	if text == "" {
		return FileList{}, fmt.Errorf("%w: list_files result carries no text content", ErrMalformedMessage)
	}

	var list FileList
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		return FileList{}, fmt.Errorf("failed to unmarshal file list: %w", err)
	}

	return list, nil
}

// UploadFile stores content under filename in the workspace via the
// upload_file tool. The bytes are base64-encoded before transmission since
// JSON-RPC params carry only text-representable values. It returns the
// orchestrator's confirmation message.
func (c *Client) UploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	argsBs, err := json.Marshal(uploadFileParams{
		Filename: filename,
		Content:  base64.StdEncoding.EncodeToString(content),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal arguments: %w", err)
	}

	res, err := c.CallTool(ctx, CallToolParams{
		Name:      ToolUploadFile,
		Arguments: argsBs,
	})
	if err != nil {
		return "", err
	}
	if res.IsError {
		return "", &ToolError{Tool: ToolUploadFile, Message: firstText(res.Content)}
	}

	return firstText(res.Content), nil
}

// correlate is the single owner of the pending-request set. Registration,
// dispatch, and abandonment all funnel through this loop, so no id can
// resolve more than one waiter. When the results channel closes (connection
// gone), every still-pending waiter is resolved by closing its channel.
func (c *Client) correlate() {
	defer close(c.done)

	pending := make(map[string]chan JSONRPCMessage)

	for {
		select {
		case req := <-c.pendingReqs:
			pending[req.msgID] = req.resChan
		case msgID := <-c.unregisters:
			// The caller abandoned the wait; a late response for this id
			// will be dropped as unmatched.
			delete(pending, msgID)
		case msg, ok := <-c.results:
			if !ok {
				for _, resChan := range pending {
					close(resChan)
				}
				return
			}
			resChan, ok := pending[string(msg.ID)]
			if !ok {
				c.logger.Warn("dropping response with no pending request", slog.String("id", string(msg.ID)))
				continue
			}
			resChan <- msg
			delete(pending, string(msg.ID))
		}
	}
}

// listenMessages is the connection's only reader. It drains the session until
// the transport closes, forwarding responses to the correlator.
func (c *Client) listenMessages() {
	defer close(c.results)

	for msg := range c.sess.Messages() {
		if msg.JSONRPC != JSONRPCVersion {
			c.logger.Error("invalid jsonrpc version", slog.String("version", msg.JSONRPC))
			continue
		}
		if msg.Method != "" {
			// The orchestrator issues no requests or notifications of its own.
			c.logger.Warn("dropping unexpected server message", slog.String("method", msg.Method))
			continue
		}
		c.results <- msg
	}
}

func (c *Client) sendRequest(ctx context.Context, msg JSONRPCMessage) (JSONRPCMessage, error) {
	msgID := uuid.New().String()
	msg.ID = MustString(msgID)

	resChan := make(chan JSONRPCMessage, 1)
	select {
	case c.pendingReqs <- pendingRequest{msgID: msgID, resChan: resChan}:
	case <-c.done:
		return JSONRPCMessage{}, ErrConnectionClosed
	case <-ctx.Done():
		return JSONRPCMessage{}, ctx.Err()
	}

	sCtx, sCancel := context.WithTimeout(ctx, c.writeTimeout)
	defer sCancel()

	if err := c.sess.Send(sCtx, msg); err != nil {
		c.unregister(msgID)
		return JSONRPCMessage{}, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case res, ok := <-resChan:
		if !ok {
			return JSONRPCMessage{}, ErrConnectionClosed
		}
		return res, nil
	case <-ctx.Done():
		// Cancellation removes the waiter but cannot un-send the request.
		c.unregister(msgID)
		return JSONRPCMessage{}, ctx.Err()
	}
}

func (c *Client) unregister(msgID string) {
	select {
	case c.unregisters <- msgID:
	case <-c.done:
	}
}

func firstText(content []Content) string {
	for _, part := range content {
		if part.Type == ContentTypeText {
			return part.Text
		}
	}
	return ""
}

package cage

import (
	"encoding/json"
	"time"
)

// Info contains metadata about a client or server instance.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities represents the capabilities negotiated during the
// initialize handshake. Immutable for the lifetime of a connection.
type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
}

// ToolsCapability represents tools-specific capabilities.
type ToolsCapability struct{}

// ResourcesCapability represents resources-specific capabilities.
type ResourcesCapability struct{}

type initializeParams struct {
	UserID     string `json:"user_id"`
	ClientInfo Info   `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Info               `json:"serverInfo"`
}

// Tool describes a callable tool advertised by the orchestrator.
// InputSchema defines the expected format of arguments for CallTool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type listToolsResult struct {
	Tools []Tool `json:"tools"`
}

// ResourceInfo describes a resource exposed by the orchestrator, such as the
// caller's sandbox session or workspace file tree.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

type listResourcesResult struct {
	Resources []ResourceInfo `json:"resources"`
}

// CallToolParams contains parameters for invoking a tool via tools/call.
type CallToolParams struct {
	// Name is the unique identifier of the tool to invoke
	Name string `json:"name"`

	// Arguments is a JSON object of argument name-value pairs
	// satisfying the tool's InputSchema
	Arguments json.RawMessage `json:"arguments"`
}

// CallToolResult represents the outcome of a tool invocation. IsError
// indicates whether the tool itself failed, with details in Content;
// Metadata carries tool-specific extras such as execution timings.
type CallToolResult struct {
	Content  []Content       `json:"content"`
	IsError  bool            `json:"isError,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// ContentType represents the type of a content part.
type ContentType string

// Content part types produced by the orchestrator's tools.
const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
)

// Content represents one part of a tool result.
type Content struct {
	Type ContentType `json:"type"`

	// For ContentTypeText
	Text string `json:"text,omitempty"`

	// For binary parts, base64-encoded
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Tool names recognized by the orchestrator.
const (
	ToolExecuteCode = "execute_code"
	ToolListFiles   = "list_files"
	ToolUploadFile  = "upload_file"
)

// ExecuteCodeParams contains arguments for the execute_code tool.
type ExecuteCodeParams struct {
	// Code to run inside the sandbox.
	Code string `json:"code"`

	// Language is the programming language, defaulting to python.
	Language string `json:"language,omitempty"`

	// Persistent asks the orchestrator to retain interpreter state across
	// calls within one session. The flag is forwarded as-is; no state is
	// cached or injected on the client side.
	Persistent bool `json:"persistent"`

	// TimeoutSeconds bounds execution time, interpreted by the orchestrator.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

type listFilesParams struct {
	Path string `json:"path"`
}

type uploadFileParams struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// ExecutionResult is the decoded outcome of an execute_code tool call.
type ExecutionResult struct {
	// Output is the captured standard output of the execution.
	Output string

	ExecutionID  string
	DurationMS   int64
	FilesCreated []string
}

type executionMetadata struct {
	ExecutionID  string   `json:"execution_id"`
	DurationMS   int64    `json:"duration_ms"`
	FilesCreated []string `json:"files_created"`
}

// FileInfo describes a single entry in the sandbox workspace.
type FileInfo struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Type        string    `json:"type"`
	SizeBytes   int64     `json:"size_bytes"`
	ModifiedAt  time.Time `json:"modified_at"`
	Permissions string    `json:"permissions,omitempty"`
}

// FileList describes the contents of a workspace directory.
type FileList struct {
	Path           string     `json:"path"`
	Files          []FileInfo `json:"files"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
}

// REST API shapes. These mirror the orchestrator's /api/v1 surface; the MCP
// tool results above reuse FileInfo and FileList where the payloads overlap.

// ExecuteRequest represents a synchronous or asynchronous code execution request.
type ExecuteRequest struct {
	Code           string            `json:"code"`
	Language       string            `json:"language,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Persistent     bool              `json:"persistent,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
}

// ExecuteResponse represents a completed code execution.
type ExecuteResponse struct {
	ExecutionID   string         `json:"execution_id"`
	Status        string         `json:"status"`
	Stdout        string         `json:"stdout"`
	Stderr        string         `json:"stderr"`
	ExitCode      *int           `json:"exit_code"`
	DurationMS    int64          `json:"duration_ms"`
	FilesCreated  []string       `json:"files_created,omitempty"`
	ResourceUsage *ResourceUsage `json:"resource_usage,omitempty"`
}

// ResourceUsage represents sandbox resource consumption during an execution.
type ResourceUsage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	DiskMB     float64 `json:"disk_mb"`
	PIDs       int     `json:"pids"`
}

// Job statuses reported for asynchronous executions.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusTimeout   = "timeout"
)

// AsyncJob is the acknowledgement returned when an execution is queued.
type AsyncJob struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	PollURL string `json:"poll_url"`
}

// JobStatus is the full state of an asynchronous execution, including the
// result once the job completes.
type JobStatus struct {
	JobID       string           `json:"job_id"`
	Status      string           `json:"status"`
	Result      *ExecuteResponse `json:"result,omitempty"`
	QueuedAt    time.Time        `json:"queued_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// FileUploadResponse describes a file stored in the workspace.
type FileUploadResponse struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// SessionInfo describes the caller's sandbox session.
type SessionInfo struct {
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id"`
	ContainerID  string         `json:"container_id,omitempty"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	CurrentUsage *ResourceUsage `json:"current_usage,omitempty"`
}

// CreateSessionRequest creates or restarts a sandbox session.
type CreateSessionRequest struct {
	Language       string `json:"language,omitempty"`
	ResetWorkspace bool   `json:"reset_workspace"`
}

// Health represents orchestrator health status.
type Health struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ActiveSessions int    `json:"active_sessions"`
	PodmanVersion  string `json:"podman_version,omitempty"`
}

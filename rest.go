package cage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RESTClient is the synchronous client for the orchestrator's /api/v1
// surface: code execution, async job polling, workspace file management,
// and session control. It authenticates with an API key sent as
// "Authorization: ApiKey <key>" on every request.
type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// RESTOption represents the options for the RESTClient.
type RESTOption func(*RESTClient)

var defaultRESTTimeout = 60 * time.Second

// WithRESTHTTPClient sets a custom HTTP client, allowing transport and
// timeout configuration.
func WithRESTHTTPClient(httpClient *http.Client) RESTOption {
	return func(c *RESTClient) {
		c.httpClient = httpClient
	}
}

// NewRESTClient creates a REST client for the orchestrator at baseURL,
// authenticating with apiKey.
func NewRESTClient(baseURL, apiKey string, options ...RESTOption) *RESTClient {
	c := &RESTClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
	}

	for _, opt := range options {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultRESTTimeout}
	}

	return c
}

// Execute runs code in the sandbox and blocks until it completes. Language
// defaults to python and TimeoutSeconds to 30.
func (c *RESTClient) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	if req.Language == "" {
		req.Language = "python"
	}
	if req.TimeoutSeconds == 0 {
		req.TimeoutSeconds = 30
	}

	var result ExecuteResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/execute", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExecuteAsync queues code for execution and returns immediately with a job
// handle; poll the job with JobStatus until it completes.
func (c *RESTClient) ExecuteAsync(ctx context.Context, req ExecuteRequest) (*AsyncJob, error) {
	if req.Language == "" {
		req.Language = "python"
	}

	var job AsyncJob
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/execute/async", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// JobStatus retrieves the state of an asynchronous execution, including its
// result once completed.
func (c *RESTClient) JobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/jobs/"+jobID, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// UploadFile stores content under filename in the workspace at targetPath
// via a multipart upload.
func (c *RESTClient) UploadFile(ctx context.Context, filename string, content io.Reader, targetPath string) (*FileUploadResponse, error) {
	if targetPath == "" {
		targetPath = "/"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to copy file content: %w", err)
	}
	if err := writer.WriteField("path", targetPath); err != nil {
		return nil, fmt.Errorf("failed to write path field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/files", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.responseError(resp)
	}

	var result FileUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// DownloadFile retrieves the content of a workspace file.
func (c *RESTClient) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/files/"+strings.TrimPrefix(filePath, "/"), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.responseError(resp)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}
	return content, nil
}

// ListFiles lists workspace entries under path, optionally recursively.
func (c *RESTClient) ListFiles(ctx context.Context, path string, recursive bool) (*FileList, error) {
	if path == "" {
		path = "/"
	}

	params := url.Values{}
	params.Set("path", path)
	if recursive {
		params.Set("recursive", "true")
	}

	var list FileList
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/files?"+params.Encode(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// DeleteFile removes a file from the workspace.
func (c *RESTClient) DeleteFile(ctx context.Context, filePath string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/files/"+strings.TrimPrefix(filePath, "/"), nil, nil)
}

// Session retrieves the caller's active sandbox session.
func (c *RESTClient) Session(ctx context.Context) (*SessionInfo, error) {
	var info SessionInfo
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/session", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CreateSession creates or restarts the caller's sandbox session.
func (c *RESTClient) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error) {
	if req.Language == "" {
		req.Language = "python"
	}

	var info SessionInfo
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/session", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// TerminateSession stops the caller's sandbox session; purgeData also deletes
// the workspace.
func (c *RESTClient) TerminateSession(ctx context.Context, purgeData bool) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/session?purge_data="+strconv.FormatBool(purgeData), nil, nil)
}

// Health retrieves orchestrator health status. The endpoint is
// unauthenticated.
func (c *RESTClient) Health(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *RESTClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	return req, nil
}

func (c *RESTClient) doJSON(ctx context.Context, method, path string, reqBody, result any) error {
	var body io.Reader
	if reqBody != nil {
		bs, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(bs)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.responseError(resp)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// responseError maps non-2xx responses to the package error taxonomy,
// preserving the orchestrator's message when one is present.
func (c *RESTClient) responseError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrAuthentication
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrNotFound
	}

	bodyBs, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(bodyBs, &errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, errResp.Message)
	}
	return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, string(bodyBs))
}

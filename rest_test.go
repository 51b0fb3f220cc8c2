package cage_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cage "github.com/cage-dev/cage-go"
)

func restServer(t *testing.T, handler http.HandlerFunc) *cage.RESTClient {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "ApiKey test-key" {
			t.Errorf("expected ApiKey auth header, got %q", got)
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return cage.NewRESTClient(srv.URL, "test-key")
}

func TestRESTExecute(t *testing.T) {
	client := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/execute" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var req cage.ExecuteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if req.Language != "python" {
			t.Errorf("expected default language python, got %s", req.Language)
		}
		if req.TimeoutSeconds != 30 {
			t.Errorf("expected default timeout 30, got %d", req.TimeoutSeconds)
		}

		json.NewEncoder(w).Encode(cage.ExecuteResponse{
			ExecutionID: "exec-1",
			Status:      "completed",
			Stdout:      "45\n",
			DurationMS:  12,
		})
	})

	result, err := client.Execute(context.Background(), cage.ExecuteRequest{
		Code: "print(sum(range(10)))",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stdout != "45\n" {
		t.Errorf("expected stdout 45, got %q", result.Stdout)
	}
	if result.ExecutionID != "exec-1" {
		t.Errorf("expected execution id exec-1, got %s", result.ExecutionID)
	}
}

func TestRESTExecuteAsyncAndJobStatus(t *testing.T) {
	client := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/execute/async":
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(cage.AsyncJob{
				JobID:   "job-1",
				Status:  cage.JobStatusQueued,
				PollURL: "/api/v1/jobs/job-1",
			})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/jobs/job-1":
			json.NewEncoder(w).Encode(cage.JobStatus{
				JobID:  "job-1",
				Status: cage.JobStatusCompleted,
				Result: &cage.ExecuteResponse{Stdout: "done\n"},
			})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	ctx := context.Background()
	job, err := client.ExecuteAsync(ctx, cage.ExecuteRequest{Code: "print('done')"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.JobID != "job-1" || job.Status != cage.JobStatusQueued {
		t.Errorf("unexpected job: %+v", job)
	}

	status, err := client.JobStatus(ctx, job.JobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != cage.JobStatusCompleted {
		t.Errorf("expected completed, got %s", status.Status)
	}
	if status.Result == nil || status.Result.Stdout != "done\n" {
		t.Errorf("unexpected result: %+v", status.Result)
	}
}

func TestRESTErrorMapping(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		want   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: cage.ErrAuthentication},
		{name: "rate limited", status: http.StatusTooManyRequests, want: cage.ErrRateLimited},
		{name: "not found", status: http.StatusNotFound, want: cage.ErrNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := restServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})

			_, err := client.Execute(context.Background(), cage.ExecuteRequest{Code: "print(1)"})
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRESTErrorMessageFromBody(t *testing.T) {
	client := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   "validation_error",
			"message": "code must not be empty",
		})
	})

	_, err := client.Execute(context.Background(), cage.ExecuteRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "code must not be empty") {
		t.Errorf("expected orchestrator message, got %v", err)
	}
}

func TestRESTUploadFile(t *testing.T) {
	content := []byte("col_a,col_b\n1,2\n")

	client := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/files" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		defer file.Close()
		if header.Filename != "data.csv" {
			t.Errorf("expected filename data.csv, got %s", header.Filename)
		}
		got, err := io.ReadAll(file)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		if !bytes.Equal(got, content) {
			t.Errorf("expected content %q, got %q", content, got)
		}
		if path := r.FormValue("path"); path != "/datasets" {
			t.Errorf("expected path /datasets, got %s", path)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(cage.FileUploadResponse{
			Path:      "/datasets/data.csv",
			SizeBytes: int64(len(content)),
		})
	})

	result, err := client.UploadFile(context.Background(), "data.csv", bytes.NewReader(content), "/datasets")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Path != "/datasets/data.csv" {
		t.Errorf("expected path /datasets/data.csv, got %s", result.Path)
	}
	if result.SizeBytes != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), result.SizeBytes)
	}
}

func TestRESTDownloadFile(t *testing.T) {
	client := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/files/results/out.txt" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte("file body"))
	})

	content, err := client.DownloadFile(context.Background(), "/results/out.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(content) != "file body" {
		t.Errorf("unexpected content: %q", content)
	}
}

func TestRESTListFiles(t *testing.T) {
	client := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/files" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("path"); got != "/results" {
			t.Errorf("expected path /results, got %s", got)
		}
		if got := r.URL.Query().Get("recursive"); got != "true" {
			t.Errorf("expected recursive true, got %s", got)
		}

		json.NewEncoder(w).Encode(cage.FileList{
			Path:           "/results",
			Files:          []cage.FileInfo{{Name: "out.txt", SizeBytes: 9}},
			TotalSizeBytes: 9,
		})
	})

	list, err := client.ListFiles(context.Background(), "/results", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list.Files) != 1 || list.Files[0].Name != "out.txt" {
		t.Errorf("unexpected listing: %+v", list)
	}
}

func TestRESTDeleteFile(t *testing.T) {
	client := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/files/out.txt" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.DeleteFile(context.Background(), "/out.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRESTSessionLifecycle(t *testing.T) {
	client := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/session" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodPost:
			var req cage.CreateSessionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if req.Language != "python" {
				t.Errorf("expected default language python, got %s", req.Language)
			}
			json.NewEncoder(w).Encode(cage.SessionInfo{SessionID: "sess-1", Status: "running"})
		case http.MethodGet:
			json.NewEncoder(w).Encode(cage.SessionInfo{SessionID: "sess-1", Status: "running"})
		case http.MethodDelete:
			if got := r.URL.Query().Get("purge_data"); got != "true" {
				t.Errorf("expected purge_data true, got %s", got)
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method: %s", r.Method)
		}
	})

	ctx := context.Background()
	created, err := client.CreateSession(ctx, cage.CreateSessionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.SessionID != "sess-1" {
		t.Errorf("expected session sess-1, got %s", created.SessionID)
	}

	info, err := client.Session(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Status != "running" {
		t.Errorf("expected running, got %s", info.Status)
	}

	if err := client.TerminateSession(ctx, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRESTHealth(t *testing.T) {
	client := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(cage.Health{
			Status:         "healthy",
			Version:        "1.0.0",
			ActiveSessions: 3,
		})
	})

	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if health.Status != "healthy" || health.ActiveSessions != 3 {
		t.Errorf("unexpected health: %+v", health)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	cage "github.com/cage-dev/cage-go"
)

func main() {
	baseURL := envStr("CAGE_API_URL", "http://127.0.0.1:8080")
	apiKey := envStr("CAGE_API_KEY", "dev_user")

	client := cage.NewRESTClient(baseURL, apiKey)
	ctx := context.Background()

	health, err := client.Health(ctx)
	if err != nil {
		log.Fatalf("health: %v", err)
	}
	fmt.Printf("Orchestrator %s is %s (%d active sessions)\n",
		health.Version, health.Status, health.ActiveSessions)

	result, err := client.Execute(ctx, cage.ExecuteRequest{
		Code: "print(sum(range(10)))",
	})
	if err != nil {
		log.Fatalf("execute: %v", err)
	}
	fmt.Printf("stdout: %s", result.Stdout)
	fmt.Printf("completed in %dms\n", result.DurationMS)

	// Async flow: queue the job and poll until it finishes.
	job, err := client.ExecuteAsync(ctx, cage.ExecuteRequest{
		Code:           "import time; time.sleep(2); print('done')",
		TimeoutSeconds: 30,
	})
	if err != nil {
		log.Fatalf("execute async: %v", err)
	}
	fmt.Printf("queued job %s\n", job.JobID)

	for {
		status, err := client.JobStatus(ctx, job.JobID)
		if err != nil {
			log.Fatalf("job status: %v", err)
		}
		if status.Status != cage.JobStatusQueued && status.Status != cage.JobStatusRunning {
			if status.Result != nil {
				fmt.Printf("job %s: %s", status.Status, status.Result.Stdout)
			}
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

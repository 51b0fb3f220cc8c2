package main

import (
	"context"
	"fmt"
	"log"
	"os"

	cage "github.com/cage-dev/cage-go"
)

func main() {
	url := envStr("CAGE_MCP_URL", "ws://127.0.0.1:8080/mcp")
	userID := envStr("CAGE_USER_ID", "demo")

	client := cage.NewClient(userID, cage.NewWSClient(url))

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer client.Close()

	fmt.Printf("Connected to %s %s\n", client.ServerInfo().Name, client.ServerInfo().Version)

	tools, err := client.ListTools(ctx)
	if err != nil {
		log.Fatalf("list tools: %v", err)
	}
	fmt.Printf("Available tools (%d):\n", len(tools))
	for _, tool := range tools {
		fmt.Printf("  %s - %s\n", tool.Name, tool.Description)
	}

	result, err := client.ExecuteCode(ctx, cage.ExecuteCodeParams{
		Code: "print('Hello from the sandbox')",
	})
	if err != nil {
		log.Fatalf("execute: %v", err)
	}
	fmt.Printf("Output: %s", result.Output)

	// Persistent mode: the orchestrator keeps interpreter state between the
	// two calls.
	if _, err := client.ExecuteCode(ctx, cage.ExecuteCodeParams{
		Code:       "x = 40 + 2",
		Persistent: true,
	}); err != nil {
		log.Fatalf("execute: %v", err)
	}
	result, err = client.ExecuteCode(ctx, cage.ExecuteCodeParams{
		Code:       "print(x)",
		Persistent: true,
	})
	if err != nil {
		log.Fatalf("execute: %v", err)
	}
	fmt.Printf("Persistent result: %s", result.Output)

	if _, err := client.UploadFile(ctx, "hello.txt", []byte("uploaded via MCP\n")); err != nil {
		log.Fatalf("upload: %v", err)
	}

	list, err := client.ListFiles(ctx, "/")
	if err != nil {
		log.Fatalf("list files: %v", err)
	}
	fmt.Printf("Workspace %s (%d bytes):\n", list.Path, list.TotalSizeBytes)
	for _, f := range list.Files {
		fmt.Printf("  %-30s %8d bytes\n", f.Name, f.SizeBytes)
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

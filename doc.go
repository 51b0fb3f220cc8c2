// Package cage provides a Go SDK for CAGE (Contained AI-Generated code
// Execution), a remote orchestrator that runs untrusted code in isolated
// sandboxes. The orchestrator is reachable over two protocols, and this
// package implements clients for both: a synchronous REST API (RESTClient)
// and an asynchronous JSON-RPC 2.0 protocol over a bidirectional message
// stream, following the Model Context Protocol (Client).
//
// The MCP client correlates concurrent in-flight requests on a single
// connection, negotiates server capabilities via the initialize handshake,
// and exposes the orchestrator's tools (execute_code, list_files,
// upload_file) as typed methods.
package cage

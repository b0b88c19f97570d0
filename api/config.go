// Package api provides an HTTP API server over the rolling analysis of an
// interaction log.
package api

import "time"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8082")
	ListenAddr string

	// Path is the log being analyzed, reported by /v1/analysis.
	Path string

	// EventInterval is how often /v1/events checks for new batches
	// (defaults to 1s).
	EventInterval time.Duration

	// DisableMCP skips mounting the MCP handler at /mcp.
	DisableMCP bool
}

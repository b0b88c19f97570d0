// Package mcp provides an MCP (Model Context Protocol) server exposing the
// latest analysis result as tools.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/utils"
)

// Source supplies the result the tools answer from. *stream.Rollup satisfies it.
type Source interface {
	Latest() *analysis.Result
}

type Config struct {
	// Source provides the current analysis result.
	Source Source

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the analysis tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "tally",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Source == nil {
			return nil, errors.New("analysis source is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        summaryToolName,
			Description: summaryDescription,
		}, s.handleSummary)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        sessionToolName,
			Description: sessionDescription,
		}, s.handleSession)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        toolsToolName,
			Description: toolsDescription,
		}, s.handleTools)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        costsToolName,
			Description: costsDescription,
		}, s.handleCosts)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

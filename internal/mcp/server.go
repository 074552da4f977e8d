package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/recall-mcp/internal/indexer"
	"github.com/dshills/recall-mcp/internal/knowledge"
	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "recall-mcp"

	shutdownTimeout = 10 * time.Second
)

// ServerVersion is the advertised server version, overridden at build time
var ServerVersion = "1.0.0"

// Transports
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// Knowledge is the subset of the knowledge base the tools need
type Knowledge interface {
	GetContext(ctx context.Context, subjectID, queryText string, topK int) (*types.ContextResult, error)
	AddMessages(ctx context.Context, subjectID, sessionID string, inputs []types.MessageInput) (*indexer.Statistics, error)
	GetSession(ctx context.Context, sessionID string) (*types.SessionRecord, error)
	ListSessions(ctx context.Context, subjectID string) ([]string, error)
	Stats() knowledge.Stats
	ClearCaches(ctx context.Context)
}

// ServeOptions selects the transport
type ServeOptions struct {
	Transport string // stdio, sse or http
	Addr      string // listen address for sse and http
	BaseURL   string // public URL advertised by the sse transport
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp *server.MCPServer
	kb  Knowledge
}

// NewServer creates a new MCP server instance
func NewServer(kb Knowledge) (*Server, error) {
	if kb == nil {
		return nil, fmt.Errorf("knowledge base not initialized")
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp: mcpServer,
		kb:  kb,
	}
	s.registerTools()

	return s, nil
}

// Serve runs the selected transport and blocks until ctx is cancelled or the transport stops
func (s *Server) Serve(ctx context.Context, opts ServeOptions) error {
	log := logger.GetLogger(ctx)

	switch opts.Transport {
	case "", TransportStdio:
		log.Info("[MCP] Serving on stdio")
		err := server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case TransportSSE:
		sse := server.NewSSEServer(s.mcp, server.WithBaseURL(opts.BaseURL))
		log.Infof("[MCP] Serving SSE on %s (base URL %s)", opts.Addr, opts.BaseURL)
		return serveHTTP(ctx, sse, opts.Addr)
	case TransportHTTP:
		streamable := server.NewStreamableHTTPServer(s.mcp)
		log.Infof("[MCP] Serving streamable HTTP on %s", opts.Addr)
		return serveHTTP(ctx, streamable, opts.Addr)
	default:
		return fmt.Errorf("unknown transport %q", opts.Transport)
	}
}

// httpTransport is implemented by both the SSE and streamable HTTP servers
type httpTransport interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

func serveHTTP(ctx context.Context, t httpTransport, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := t.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.GetLogger(ctx).Info("[MCP] Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := t.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerTools() {
	s.mcp.AddTool(getContextTool(), s.handleGetContext)
	s.mcp.AddTool(addMessagesTool(), s.handleAddMessages)
	s.mcp.AddTool(getSessionTool(), s.handleGetSession)
	s.mcp.AddTool(listSessionsTool(), s.handleListSessions)
	s.mcp.AddTool(cacheStatsTool(), s.handleCacheStats)
	s.mcp.AddTool(clearCacheTool(), s.handleClearCache)
}

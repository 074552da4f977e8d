package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/recall-mcp/internal/knowledge"
	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/internal/mcp"
	"github.com/dshills/recall-mcp/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Long: `Run the MCP server on stdio (default), SSE or streamable HTTP.

Logs go to stderr; stdout is reserved for the stdio transport.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("transport", "", "transport: stdio, sse or http")
	serveCmd.Flags().String("addr", "", "listen address for sse and http")
	serveCmd.Flags().String("base-url", "", "public base URL advertised by the sse transport")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	log := logger.GetLogger(ctx)

	log.Infof("recall MCP server %s starting (sqlite driver %s, %s build)", mcp.ServerVersion, storage.DriverName, storage.BuildMode)

	kb, err := knowledge.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open knowledge base: %w", err)
	}
	defer func() {
		if err := kb.Close(); err != nil {
			log.Warnf("close knowledge base: %v", err)
		}
	}()

	server, err := mcp.NewServer(kb)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx, mcp.ServeOptions{
			Transport: cfg.Server.Transport,
			Addr:      cfg.Server.Addr,
			BaseURL:   cfg.Server.BaseURL,
		})
	}()

	select {
	case sig := <-sigChan:
		log.Infof("Received signal %v, shutting down gracefully...", sig)
		cancel()
		if err := <-errChan; err != nil {
			return err
		}
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Info("Server stopped")
	return nil
}

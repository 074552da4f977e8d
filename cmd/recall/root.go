package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/recall-mcp/internal/config"
	"github.com/dshills/recall-mcp/internal/logger"
)

var (
	cfgFile   string
	envFile   string
	logLevel  string
	cfg       *config.Config
	logCloser io.Closer
)

// flagBindings maps command-line flags onto configuration keys
var flagBindings = map[string]string{
	"log-level": "log.level",
	"transport": "server.transport",
	"addr":      "server.addr",
	"base-url":  "server.base_url",
}

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Conversation memory MCP server",
	Long: `recall - long-term conversation memory for AI assistants.

Stores conversation messages, finds the sessions relevant to a query
through vector search and graph expansion, and serves them over MCP.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./recall.yaml or ~/.recall/recall.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves configuration for every subcommand and sets up logging
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	v := config.NewViper()
	for flag, key := range flagBindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	if err := config.ReadFile(v, cfgFile); err != nil {
		return err
	}

	loaded, err := config.FromViper(v)
	if err != nil {
		return err
	}
	cfg = loaded

	closer, err := logger.Init(cfg.LoggerOptions())
	if err != nil {
		return err
	}
	logCloser = closer
	return nil
}

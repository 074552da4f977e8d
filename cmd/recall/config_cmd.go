package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	Long:  `Print the configuration after defaults, config file and environment are applied. Secrets are masked.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := renderConfig()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

// renderConfig marshals the loaded configuration with secrets masked
func renderConfig() (string, error) {
	masked := *cfg
	masked.Embedding.APIKey = mask(masked.Embedding.APIKey)
	masked.Vector.Milvus.Password = mask(masked.Vector.Milvus.Password)
	masked.Graph.Neo4j.Password = mask(masked.Graph.Neo4j.Password)

	out, err := yaml.Marshal(&masked)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(out), nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}

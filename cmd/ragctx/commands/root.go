// Package commands defines all Cobra CLI commands for the ragctx binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/ragctx-go/internal/audit"
	"github.com/54b3r/ragctx-go/internal/config"
	"github.com/54b3r/ragctx-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragctx",
		Short: "ragctx builds retrieval context for LLM prompts",
		Long: `ragctx ingests a directory of documents into a vector store and
assembles prompt-ready context for user queries.

Documents (.txt, .md, .pdf, .docx, .xlsx) are split into overlapping chunks,
embedded and upserted. A query is embedded, the nearest chunks are fetched and
their cleaned text is concatenated and measured against a token budget.

The embedding provider and vector backend are selected via environment
variables or a YAML config file (~/.ragctx/config.yaml).
See 'ragctx --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragctx/config.yaml)")

	root.AddCommand(
		NewIngestCmd(),
		NewQueryCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}

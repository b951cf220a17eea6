// Package main is the entry point for the cx-policy-validator binary. It serves the
// policy definition validation API and offers offline validation of policy files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// newRootCmd creates the root command for cx-policy-validator
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "cx-policy-validator",
		Short: "Catena-X policy definition validator",
		Long: `Validates Catena-X ODRL policy definitions against the JSON schema, the
management API model and the Catena-X vocabulary.

Examples:
  cx-policy-validator serve --config config.yaml
  cx-policy-validator validate policy.json
  cx-policy-validator vocabulary --action use --kind permission`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (json, text)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newVocabularyCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "cx-policy-validator %s (%s)\n", version, commit)
			return err
		},
	}
}

package main

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	ServerName  = "polyprompt-mcp"
	ServiceName = "Poly Prompt Fan-out MCP Server"
)

//go:embed VERSION
var Version string

var (
	cfgFile  string
	logLevel string
	logger   zerolog.Logger
)

func main() {
	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to execute command")
	}
}

var rootCmd = &cobra.Command{
	Use:           ServerName,
	Short:         "Send one prompt to many LLMs and compare the answers",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if !cmd.Flags().Changed("log-level") {
			return nil
		}
		return setLogLevel(logLevel)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s Version: %s\n", ServiceName, version())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

func version() string {
	return strings.TrimSpace(Version)
}

func setLogLevel(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

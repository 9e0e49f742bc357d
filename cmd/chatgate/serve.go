package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatgate/chatgate/bootstrap"
	"github.com/chatgate/chatgate/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API server",
	Long: `Start the ChatGate API server.

The server will:
  - Load configuration from chatgate.yaml (or --config)
  - Or load configuration from CHATGATE_* environment variables
  - Open the database and apply migrations
  - Serve the chat API with per-plan usage metering

Environment variables (for Docker deployments):
  CHATGATE_OPENAI_API_KEY   - OpenAI API key (required)
  CHATGATE_OWNER_EMAIL      - Owner email for the quota bypass
  CHATGATE_DATABASE_DSN     - Database path (default: chatgate.db)
  CHATGATE_SERVER_PORT      - Server port (default: 8080)
  CHATGATE_LOG_LEVEL        - Log level: debug, info, warn, error

Examples:
  chatgate serve
  chatgate serve --config /etc/chatgate/config.yaml
  chatgate serve --hot-reload=false

  # Docker (env vars only):
  CHATGATE_OPENAI_API_KEY=sk-... chatgate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	if !hasConfigFile && !config.HasEnvConfig() {
		fmt.Println("No configuration found.")
		fmt.Println()
		fmt.Printf("Option 1: Run 'chatgate init' to create %s\n", cfgFile)
		fmt.Println("Option 2: Set CHATGATE_OPENAI_API_KEY environment variable")
		fmt.Println()
		fmt.Println("Example (env vars):")
		fmt.Println("  CHATGATE_OPENAI_API_KEY=sk-... chatgate serve")
		return nil
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	// Hot reload only works with a config file on disk.
	if hasConfigFile && hotReload {
		if err := app.WatchConfig(cfgFile); err != nil {
			app.Logger.Warn().Err(err).Msg("config watching unavailable")
		}
	}

	return app.Run()
}

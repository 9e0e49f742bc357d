package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter configuration file",
	Long: `Initialize ChatGate with a starter configuration file.

This will ask for your OpenAI API key and owner email, then write a
commented configuration file with the default plan table.

Examples:
  chatgate init
  chatgate init --config /etc/chatgate/config.yaml
  chatgate init --non-interactive --openai-key sk-...`,
	RunE: runInit,
}

var (
	initOpenAIKey      string
	initOwnerEmail     string
	initDatabase       string
	initNonInteractive bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initOpenAIKey, "openai-key", "", "OpenAI API key")
	initCmd.Flags().StringVar(&initOwnerEmail, "owner-email", "", "owner email (bypasses quotas)")
	initCmd.Flags().StringVar(&initDatabase, "database", "chatgate.db", "database file path")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "run without prompts (requires --openai-key)")
}

func runInit(cmd *cobra.Command, args []string) error {
	fmt.Println("Welcome to ChatGate!")
	fmt.Println()

	if _, err := os.Stat(cfgFile); err == nil {
		fmt.Printf("Configuration file already exists: %s\n", cfgFile)
		if !confirm("Overwrite?") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	reader := bufio.NewReader(os.Stdin)

	apiKey := initOpenAIKey
	if apiKey == "" {
		if initNonInteractive {
			return fmt.Errorf("--openai-key is required in non-interactive mode")
		}
		apiKey = prompt(reader, "OpenAI API key", "")
		if apiKey == "" {
			return fmt.Errorf("OpenAI API key is required")
		}
	}

	ownerEmail := initOwnerEmail
	if ownerEmail == "" && !initNonInteractive {
		ownerEmail = prompt(reader, "Owner email (unlimited access, optional)", "")
	}

	content := sampleConfig(apiKey, ownerEmail, initDatabase)
	if err := os.WriteFile(cfgFile, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Println()
	fmt.Printf("Configuration written to %s\n", cfgFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  chatgate serve")
	return nil
}

func sampleConfig(apiKey, ownerEmail, database string) string {
	var b strings.Builder

	b.WriteString("# ChatGate configuration\n\n")
	b.WriteString("server:\n")
	b.WriteString("  host: 0.0.0.0\n")
	b.WriteString("  port: 8080\n\n")
	b.WriteString("database:\n")
	b.WriteString("  driver: sqlite\n")
	fmt.Fprintf(&b, "  dsn: %s\n\n", database)
	b.WriteString("# The owner email bypasses quota and model restrictions.\n")
	b.WriteString("owner:\n")
	fmt.Fprintf(&b, "  email: %q\n\n", ownerEmail)
	b.WriteString("auth:\n")
	b.WriteString("  # Leave empty to generate an ephemeral secret at startup.\n")
	b.WriteString("  jwt_secret: \"\"\n")
	b.WriteString("  token_ttl: 24h\n\n")
	b.WriteString("openai:\n")
	fmt.Fprintf(&b, "  api_key: %q\n", apiKey)
	b.WriteString("  # Route through a Cloudflare AI Gateway by setting both IDs:\n")
	b.WriteString("  # cloudflare_account_id: \"\"\n")
	b.WriteString("  # cloudflare_gateway_id: \"\"\n")
	b.WriteString("  timeout: 60s\n\n")
	b.WriteString("billing:\n")
	b.WriteString("  provider: none  # none, lemonsqueezy, or stripe\n")
	b.WriteString("  # lemonsqueezy:\n")
	b.WriteString("  #   api_key: \"\"\n")
	b.WriteString("  #   store_id: \"\"\n")
	b.WriteString("  #   webhook_secret: \"\"\n\n")
	b.WriteString("plans:\n")
	b.WriteString("  - id: FREE\n")
	b.WriteString("    name: Free\n")
	b.WriteString("    messages_per_month: 20\n")
	b.WriteString("    price_monthly: 0\n")
	b.WriteString("    allowed_models: [gpt-3.5-turbo]\n")
	b.WriteString("  - id: PRO\n")
	b.WriteString("    name: Pro\n")
	b.WriteString("    messages_per_month: -1\n")
	b.WriteString("    price_monthly: 1900\n")
	b.WriteString("    allowed_models: [gpt-4o, gpt-4o-mini, gpt-3.5-turbo]\n")
	b.WriteString("  - id: API\n")
	b.WriteString("    name: API / Developer\n")
	b.WriteString("    messages_per_month: -1\n")
	b.WriteString("    price_monthly: 2900\n")
	b.WriteString("    allowed_models: [gpt-4o, gpt-4o-mini, gpt-3.5-turbo]\n")
	b.WriteString("  - id: TEAM\n")
	b.WriteString("    name: Team / Studio\n")
	b.WriteString("    messages_per_month: -1\n")
	b.WriteString("    price_monthly: 4900\n")
	b.WriteString("    allowed_models: [gpt-4o, gpt-4o-mini, gpt-3.5-turbo]\n\n")
	b.WriteString("logging:\n")
	b.WriteString("  level: info\n")
	b.WriteString("  format: console\n\n")
	b.WriteString("metrics:\n")
	b.WriteString("  enabled: true\n")

	return b.String()
}

func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultVal
	}
	return line
}

func confirm(label string) bool {
	fmt.Printf("%s [y/N]: ", label)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

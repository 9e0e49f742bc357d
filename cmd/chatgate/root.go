package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatgate",
	Short: "Subscription-gated AI chat service",
	Long: `ChatGate is a self-hosted chat-completion service that gates AI
model access by subscription plan. Free users get a monthly message
quota and a budget model; paid plans unlock unlimited messages and
the full model lineup.

Quick start:
  chatgate init      # Create a starter configuration file
  chatgate serve     # Start the API server

Management:
  chatgate users     # Manage user accounts and plan assignments
  chatgate plans     # Show the configured plan table
  chatgate usage     # Inspect per-user usage records`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "chatgate.yaml", "config file path")
}

package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chatgate/chatgate/config"
	"github.com/chatgate/chatgate/domain/plan"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Show the configured plan table",
	Long: `Show the subscription plans ChatGate will enforce.

Plans come from the config file (or the built-in defaults). Each plan
has a monthly message quota (-1 = unlimited) and a model allowlist.

Examples:
  chatgate plans
  chatgate plans --config /etc/chatgate/config.yaml`,
	RunE: runPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)
}

func runPlans(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMESSAGES/MONTH\tPRICE\tMODELS")
	for _, p := range cfg.Plans {
		quota := fmt.Sprintf("%d", p.MessagesPerMonth)
		if p.MessagesPerMonth == plan.Unlimited {
			quota = "unlimited"
		}
		price := "free"
		if p.PriceMonthly > 0 {
			price = fmt.Sprintf("$%d.%02d/mo", p.PriceMonthly/100, p.PriceMonthly%100)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, quota, price, strings.Join(p.AllowedModels, ","))
	}
	return w.Flush()
}

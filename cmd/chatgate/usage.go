package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatgate/chatgate/adapters/sqlite"
	"github.com/chatgate/chatgate/domain/meter"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect per-user usage records",
	Long: `Inspect the monthly usage record for a user.

Examples:
  chatgate usage show dev@example.com
  chatgate usage reset dev@example.com`,
}

var usageShowCmd = &cobra.Command{
	Use:   "show <email>",
	Short: "Show the current usage record",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsageShow,
}

var usageResetCmd = &cobra.Command{
	Use:   "reset <email>",
	Short: "Reset the usage record to zero for the current month",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsageReset,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.AddCommand(usageShowCmd)
	usageCmd.AddCommand(usageResetCmd)
}

func runUsageShow(cmd *cobra.Command, args []string) error {
	db, _, err := openStores()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	users := sqlite.NewUserStore(db)
	entitlements := sqlite.NewEntitlementStore(db)

	u, err := users.GetByEmail(ctx, strings.ToLower(args[0]))
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	rec, ok, err := entitlements.GetUsageRecord(ctx, u.ID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("%s has no usage record yet this period\n", u.Email)
		return nil
	}

	stale := ""
	if meter.NeedsReset(rec.PeriodStart, time.Now()) {
		stale = " (previous period, resets on next request)"
	}
	fmt.Printf("User:         %s\n", u.Email)
	fmt.Printf("Messages:     %d\n", rec.Count)
	fmt.Printf("Period start: %s%s\n", rec.PeriodStart.Format("2006-01-02"), stale)
	return nil
}

func runUsageReset(cmd *cobra.Command, args []string) error {
	db, _, err := openStores()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	users := sqlite.NewUserStore(db)
	entitlements := sqlite.NewEntitlementStore(db)

	u, err := users.GetByEmail(ctx, strings.ToLower(args[0]))
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	if err := entitlements.ResetUsageRecord(ctx, u.ID, meter.PeriodStart(time.Now())); err != nil {
		return err
	}

	fmt.Printf("Reset usage for %s\n", u.Email)
	return nil
}

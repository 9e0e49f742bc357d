package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/chatgate/chatgate/adapters/idgen"
	"github.com/chatgate/chatgate/adapters/sqlite"
	"github.com/chatgate/chatgate/config"
	"github.com/chatgate/chatgate/ports"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
	Long: `Manage ChatGate user accounts.

Each user is assigned to a plan. Users without an assignment are
treated as FREE.

Examples:
  chatgate users list
  chatgate users create --email=dev@example.com --password=secret123
  chatgate users set-plan dev@example.com PRO`,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  runUsersList,
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	RunE:  runUsersCreate,
}

var usersSetPlanCmd = &cobra.Command{
	Use:   "set-plan <email> <plan-id>",
	Short: "Assign a plan to a user",
	Args:  cobra.ExactArgs(2),
	RunE:  runUsersSetPlan,
}

var (
	userEmail    string
	userName     string
	userPassword string
	userPlan     string
)

func init() {
	rootCmd.AddCommand(usersCmd)

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersSetPlanCmd)

	usersCreateCmd.Flags().StringVar(&userEmail, "email", "", "user email (required)")
	usersCreateCmd.Flags().StringVar(&userName, "name", "", "user name")
	usersCreateCmd.Flags().StringVar(&userPassword, "password", "", "user password (required)")
	usersCreateCmd.Flags().StringVar(&userPlan, "plan", "", "initial plan assignment")
}

func openStores() (*sqlite.DB, *config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, cfg, nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	db, _, err := openStores()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	users := sqlite.NewUserStore(db)
	entitlements := sqlite.NewEntitlementStore(db)

	list, err := users.List(ctx, 200, 0)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tPLAN\tCREATED")
	for _, u := range list {
		planID, ok, err := entitlements.GetUserPlan(ctx, u.ID)
		if err != nil {
			return err
		}
		if !ok || planID == "" {
			planID = "FREE"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			u.ID, u.Email, u.Name, planID, u.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runUsersCreate(cmd *cobra.Command, args []string) error {
	if userEmail == "" {
		return fmt.Errorf("--email is required")
	}
	if len(userPassword) < 8 {
		return fmt.Errorf("--password must be at least 8 characters")
	}

	db, cfg, err := openStores()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	users := sqlite.NewUserStore(db)

	hash, err := bcrypt.GenerateFromPassword([]byte(userPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	u := ports.User{
		ID:           idgen.UUID{}.New(),
		Email:        strings.ToLower(strings.TrimSpace(userEmail)),
		Name:         userName,
		PasswordHash: hash,
	}
	if err := users.Create(ctx, u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	if userPlan != "" {
		if !planConfigured(cfg, userPlan) {
			return fmt.Errorf("unknown plan %q", userPlan)
		}
		entitlements := sqlite.NewEntitlementStore(db)
		if err := entitlements.SetUserPlan(ctx, u.ID, userPlan); err != nil {
			return fmt.Errorf("set plan: %w", err)
		}
	}

	fmt.Printf("Created user %s (%s)\n", u.ID, u.Email)
	return nil
}

func runUsersSetPlan(cmd *cobra.Command, args []string) error {
	email, planID := strings.ToLower(args[0]), args[1]

	db, cfg, err := openStores()
	if err != nil {
		return err
	}
	defer db.Close()

	if !planConfigured(cfg, planID) {
		return fmt.Errorf("unknown plan %q", planID)
	}

	ctx := context.Background()
	users := sqlite.NewUserStore(db)
	entitlements := sqlite.NewEntitlementStore(db)

	u, err := users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if err := entitlements.SetUserPlan(ctx, u.ID, planID); err != nil {
		return fmt.Errorf("set plan: %w", err)
	}

	fmt.Printf("Assigned plan %s to %s\n", planID, u.Email)
	return nil
}

func planConfigured(cfg *config.Config, planID string) bool {
	for _, p := range cfg.Plans {
		if p.ID == planID {
			return true
		}
	}
	return false
}

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/samudra-erp/samudra-erp/internal/platform/db"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/users"
)

// UserLoader reads the session user record for a user id.
type UserLoader interface {
	Record(ctx context.Context, userID string) (rbac.User, error)
}

func principalTable(view rbac.PrincipalView) pterm.TableData {
	roles := make([]string, 0, len(view.Roles))
	for _, r := range view.Roles {
		code := r.Code
		if r.IsPrimary {
			code += "*"
		}
		roles = append(roles, code)
	}
	return pterm.TableData{
		{"FIELD", "VALUE"},
		{"ID", view.ID},
		{"Username", view.Username},
		{"Branch", view.CabangID},
		{"Roles", strings.Join(roles, ", ")},
		{"Primary role", view.PrimaryRole},
		{"Highest role", view.HighestRole},
		{"Admin", fmt.Sprint(view.IsAdmin)},
	}
}

// Evaluate loads userID and runs the access evaluator against the given record.
func Evaluate(ctx context.Context, loader UserLoader, userID, resource, action string, data *rbac.ResourceData) (rbac.Decision, error) {
	user, err := loader.Record(ctx, userID)
	if err != nil {
		return rbac.Decision{}, err
	}
	return rbac.CheckAccess(rbac.NewPrincipal(user), resource, action, data), nil
}

func newAccessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Inspect effective access for a user",
	}

	inspect := &cobra.Command{
		Use:   "inspect [user_id]",
		Short: "Show a user's roles and effective permissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUsers(cmd, func(loader UserLoader) error {
				user, err := loader.Record(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("load user %s: %w", args[0], err)
				}
				view := rbac.NewPrincipalView(rbac.NewPrincipal(user))
				if err := pterm.DefaultTable.WithHasHeader().WithData(principalTable(view)).Render(); err != nil {
					return err
				}
				pterm.DefaultSection.Println("Permissions")
				if len(view.Permissions) == 0 {
					pterm.Warning.Println("User has no permissions; every access check will be denied.")
					return nil
				}
				for _, perm := range view.Permissions {
					pterm.Printf("  - %s\n", perm)
				}
				return nil
			})
		},
	}

	var data rbac.ResourceData
	check := &cobra.Command{
		Use:   "check [user_id] [resource] [action]",
		Short: "Evaluate a single access check",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUsers(cmd, func(loader UserLoader) error {
				var record *rbac.ResourceData
				if data != (rbac.ResourceData{}) {
					record = &data
				}
				decision, err := Evaluate(cmd.Context(), loader, args[0], args[1], args[2], record)
				if err != nil {
					return err
				}
				if decision.Granted {
					pterm.Success.Printf("granted by %s\n", decision.Rule)
				} else {
					pterm.Error.Printf("denied (%s)\n", decision.Rule)
				}
				return nil
			})
		},
	}
	check.Flags().StringVar(&data.ID, "id", "", "record id")
	check.Flags().StringVar(&data.CabangID, "cabang", "", "branch id owning the record")
	check.Flags().StringVar(&data.UserID, "owner", "", "user id owning the record")
	check.Flags().StringVar(&data.CreatedBy, "created-by", "", "user id that created the record")

	cmd.AddCommand(inspect, check)
	return cmd
}

func withUsers(cmd *cobra.Command, fn func(UserLoader) error) error {
	cfg, err := configFrom(cmd.Context())
	if err != nil {
		return err
	}
	pool, err := db.New(cmd.Context(), cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	return fn(users.NewRepository(pool))
}

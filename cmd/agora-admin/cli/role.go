package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agora-social/agora-admin/internal/model"
	"github.com/agora-social/agora-admin/internal/rbac"
)

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage RBAC roles",
		Long:  "List and create the roles whose permission matrix decides what each admin may do.",
	}

	cmd.AddCommand(newRoleListCmd())
	cmd.AddCommand(newRoleCreateCmd())
	cmd.AddCommand(newRoleSeedCmd())

	return cmd
}

// ---------- role list ----------

func newRoleListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleList(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRoleList(ctx context.Context, jsonOutput bool) error {
	env, err := openCLIEnv()
	if err != nil {
		return err
	}
	defer env.close()

	roles, err := env.store.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}

	if jsonOutput {
		type roleRow struct {
			ID          int64    `json:"id"`
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Permissions []string `json:"permissions"`
		}
		rows := make([]roleRow, len(roles))
		for i, r := range roles {
			rows[i] = roleRow{
				ID:          r.ID,
				Name:        r.Name,
				Description: r.Description,
				Permissions: permissionStrings(r.Permissions),
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(roles) == 0 {
		fmt.Println("No roles configured. Use 'agora-admin role seed' to create the built-in roles.")
		return nil
	}

	fmt.Printf("%-6s %-16s %-40s %s\n", "ID", "NAME", "DESCRIPTION", "PERMISSIONS")
	fmt.Printf("%-6s %-16s %-40s %s\n", "--", "----", "-----------", "-----------")
	for _, r := range roles {
		desc := r.Description
		if len(desc) > 38 {
			desc = desc[:35] + "..."
		}
		fmt.Printf("%-6d %-16s %-40s %s\n", r.ID, r.Name, desc, formatPermissionSummary(r.Permissions))
	}
	return nil
}

func permissionStrings(m model.PermissionMatrix) []string {
	granted := rbac.Granted(m)
	out := make([]string, len(granted))
	for i, p := range granted {
		out[i] = p.String()
	}
	return out
}

// formatPermissionSummary returns a short summary of granted permissions for
// display.
func formatPermissionSummary(m model.PermissionMatrix) string {
	perms := permissionStrings(m)
	switch {
	case len(perms) == 0:
		return "none"
	case len(perms) <= 4:
		return strings.Join(perms, ", ")
	default:
		return fmt.Sprintf("%s, ... (%d total)", strings.Join(perms[:3], ", "), len(perms))
	}
}

// ---------- role create ----------

func newRoleCreateCmd() *cobra.Command {
	var (
		name        string
		description string
		grants      []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new role",
		Example: `  agora-admin role create --name auditor --grant audit_logs:view
  agora-admin role create --name triage --grant reports:view --grant reports:manage`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleCreate(cmd.Context(), name, description, grants)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Role name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Role description")
	cmd.Flags().StringArrayVar(&grants, "grant", nil, "Permission to grant as resource:action (repeatable)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runRoleCreate(ctx context.Context, name, description string, grants []string) error {
	perms := make([]rbac.Permission, 0, len(grants))
	for _, g := range grants {
		p, err := rbac.ParsePermission(g)
		if err != nil {
			return err
		}
		perms = append(perms, p)
	}

	env, err := openCLIEnv()
	if err != nil {
		return err
	}
	defer env.close()

	role := &model.AdminRole{
		Name:        name,
		Description: description,
		Permissions: rbac.Grant(perms...),
	}
	if err := env.store.CreateRole(ctx, role); err != nil {
		return fmt.Errorf("create role: %w", err)
	}

	fmt.Printf("Created role %q (id=%d)\n", name, role.ID)
	if len(perms) > 0 {
		fmt.Printf("  permissions: %s\n", strings.Join(permissionStrings(role.Permissions), ", "))
	}
	return nil
}

// ---------- role seed ----------

func newRoleSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create any missing built-in roles (super_admin, moderator, support)",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openCLIEnv()
			if err != nil {
				return err
			}
			defer env.close()

			created, err := env.auth.SeedRoles(cmd.Context())
			if err != nil {
				return fmt.Errorf("seed roles: %w", err)
			}
			if len(created) == 0 {
				fmt.Println("All built-in roles already exist.")
				return nil
			}
			fmt.Printf("Created roles: %s\n", strings.Join(created, ", "))
			return nil
		},
	}
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agora-social/agora-admin/internal/audit"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin users",
		Long:  "Create, list and maintain the accounts that can sign in to the admin API.",
	}

	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminListCmd())
	cmd.AddCommand(newAdminPasswdCmd())
	cmd.AddCommand(newAdminTOTPCmd())
	cmd.AddCommand(newAdminSetActiveCmd(false))
	cmd.AddCommand(newAdminSetActiveCmd(true))
	cmd.AddCommand(newAdminRevokeCmd())
	cmd.AddCommand(newAdminUnlockCmd())

	return cmd
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		email    string
		password string
		name     string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new admin user",
		Example: `  agora-admin admin create --email admin@example.com --role super_admin
  agora-admin admin create --email mod@example.com --role moderator --name "Mod One"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(cmd.Context(), email, password, name, role)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Admin email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Admin display name")
	cmd.Flags().StringVar(&role, "role", "", "Role name, e.g. super_admin, moderator, support (required)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("role")

	return cmd
}

func runAdminCreate(ctx context.Context, email, password, name, role string) error {
	if password == "" {
		pw, err := promptPassword("Password", true)
		if err != nil {
			return err
		}
		password = pw
	}

	env, err := openCLIEnv()
	if err != nil {
		return err
	}
	defer env.close()

	admin, err := env.auth.CreateAdmin(ctx, email, name, password, role)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	env.record(ctx, audit.ActionAdminCreated, admin, map[string]any{"role": role})

	fmt.Printf("Created admin %q (id=%d, role=%s)\n", admin.Email, admin.ID, role)
	return nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all admin users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAdminList(ctx context.Context, jsonOutput bool) error {
	env, err := openCLIEnv()
	if err != nil {
		return err
	}
	defer env.close()

	admins, err := env.store.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	roles, err := env.store.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	roleNames := make(map[int64]string, len(roles))
	for _, r := range roles {
		roleNames[r.ID] = r.Name
	}

	type adminRow struct {
		ID        int64      `json:"id"`
		Email     string     `json:"email"`
		Name      string     `json:"name"`
		Role      string     `json:"role"`
		Active    bool       `json:"active"`
		TOTP      bool       `json:"totp"`
		Locked    bool       `json:"locked"`
		LastLogin *time.Time `json:"last_login,omitempty"`
	}
	now := time.Now()
	rows := make([]adminRow, len(admins))
	for i, a := range admins {
		rows[i] = adminRow{
			ID:        a.ID,
			Email:     a.Email,
			Name:      a.Name,
			Role:      roleNames[a.RoleID],
			Active:    a.IsActive,
			TOTP:      a.TOTPEnabled(),
			Locked:    a.IsLocked(now),
			LastLogin: a.LastLoginAt,
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No admin users configured. Use 'agora-admin admin create' to create one.")
		return nil
	}

	fmt.Printf("%-6s %-30s %-20s %-14s %-7s %-5s %-7s\n", "ID", "EMAIL", "NAME", "ROLE", "ACTIVE", "2FA", "LOCKED")
	fmt.Printf("%-6s %-30s %-20s %-14s %-7s %-5s %-7s\n", "--", "-----", "----", "----", "------", "---", "------")
	for _, r := range rows {
		fmt.Printf("%-6d %-30s %-20s %-14s %-7s %-5s %-7s\n",
			r.ID, r.Email, r.Name, r.Role, yesNo(r.Active), yesNo(r.TOTP), yesNo(r.Locked))
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ---------- admin passwd ----------

func newAdminPasswdCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "passwd <email>",
		Short: "Set an admin's password and end all of their sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminPasswd(cmd.Context(), args[0], password)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "New password (prompted if omitted)")

	return cmd
}

func runAdminPasswd(ctx context.Context, email, password string) error {
	if password == "" {
		pw, err := promptPassword("New password", true)
		if err != nil {
			return err
		}
		password = pw
	}

	env, err := openCLIEnv()
	if err != nil {
		return err
	}
	defer env.close()

	admin, err := env.adminByEmail(ctx, email)
	if err != nil {
		return err
	}
	n, err := env.auth.ChangePassword(ctx, admin.ID, password)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	env.record(ctx, audit.ActionPasswordChanged, admin, map[string]any{"sessions_revoked": n})

	fmt.Printf("Password updated for %q; %d session(s) ended\n", admin.Email, n)
	return nil
}

// ---------- admin totp ----------

func newAdminTOTPCmd() *cobra.Command {
	var disable bool

	cmd := &cobra.Command{
		Use:   "totp <email>",
		Short: "Enable or disable an admin's TOTP second factor",
		Example: `  agora-admin admin totp admin@example.com            # enable, prints the secret
  agora-admin admin totp admin@example.com --disable  # remove the second factor`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminTOTP(cmd.Context(), args[0], disable)
		},
	}

	cmd.Flags().BoolVar(&disable, "disable", false, "Remove the second factor instead of enabling it")

	return cmd
}

func runAdminTOTP(ctx context.Context, email string, disable bool) error {
	env, err := openCLIEnv()
	if err != nil {
		return err
	}
	defer env.close()

	admin, err := env.adminByEmail(ctx, email)
	if err != nil {
		return err
	}

	if disable {
		if err := env.auth.DisableTOTP(ctx, admin.ID); err != nil {
			return fmt.Errorf("disable totp: %w", err)
		}
		env.record(ctx, audit.Action2FADisabled, admin, nil)
		fmt.Printf("Two-factor authentication disabled for %q\n", admin.Email)
		return nil
	}

	secret, uri, err := env.auth.EnableTOTP(ctx, admin.ID)
	if err != nil {
		return fmt.Errorf("enable totp: %w", err)
	}
	env.record(ctx, audit.Action2FAEnabled, admin, nil)

	fmt.Printf("Two-factor authentication enabled for %q\n", admin.Email)
	fmt.Printf("  secret: %s\n", secret)
	fmt.Printf("  url:    %s\n", uri)
	return nil
}

// ---------- admin enable / disable ----------

func newAdminSetActiveCmd(active bool) *cobra.Command {
	use, short := "disable <email>", "Disable an admin and end all of their sessions"
	if active {
		use, short = "enable <email>", "Re-enable a disabled admin"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminSetActive(cmd.Context(), args[0], active)
		},
	}
}

func runAdminSetActive(ctx context.Context, email string, active bool) error {
	env, err := openCLIEnv()
	if err != nil {
		return err
	}
	defer env.close()

	admin, err := env.adminByEmail(ctx, email)
	if err != nil {
		return err
	}
	n, err := env.auth.SetActive(ctx, admin.ID, active)
	if err != nil {
		return fmt.Errorf("update admin: %w", err)
	}

	if active {
		env.record(ctx, audit.ActionAdminEnabled, admin, nil)
		fmt.Printf("Enabled %q\n", admin.Email)
		return nil
	}
	env.record(ctx, audit.ActionAdminDisabled, admin, map[string]any{"sessions_revoked": n})
	fmt.Printf("Disabled %q; %d session(s) ended\n", admin.Email, n)
	return nil
}

// ---------- admin revoke-sessions ----------

func newAdminRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-sessions <email>",
		Short: "End every active session of an admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminRevoke(cmd.Context(), args[0])
		},
	}
}

func runAdminRevoke(ctx context.Context, email string) error {
	env, err := openCLIEnv()
	if err != nil {
		return err
	}
	defer env.close()

	admin, err := env.adminByEmail(ctx, email)
	if err != nil {
		return err
	}
	n, err := env.auth.InvalidateAllSessions(ctx, admin.ID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	env.record(ctx, audit.ActionSessionsRevoked, admin, map[string]any{"sessions": n})

	fmt.Printf("Ended %d session(s) for %q\n", n, admin.Email)
	return nil
}

// ---------- admin unlock ----------

func newAdminUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <email>",
		Short: "Clear a brute-force lockout and the failed-attempt counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminUnlock(cmd.Context(), args[0])
		},
	}
}

func runAdminUnlock(ctx context.Context, email string) error {
	env, err := openCLIEnv()
	if err != nil {
		return err
	}
	defer env.close()

	admin, err := env.adminByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := env.auth.Unlock(ctx, admin.ID); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	env.record(ctx, audit.ActionAdminUnlocked, admin, map[string]any{"failed_attempts": admin.FailedAttempts})

	fmt.Printf("Unlocked %q\n", admin.Email)
	return nil
}


package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agora-social/agora-admin/internal/model"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}
	cmd.AddCommand(newAuditListCmd())
	return cmd
}

type auditListOptions struct {
	category   string
	adminEmail string
	since      string
	limit      int
	jsonOutput bool
}

func newAuditListCmd() *cobra.Command {
	var opts auditListOptions

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List audit entries, newest first",
		Example: `  agora-admin audit list --category auth --since 24h
  agora-admin audit list --admin admin@example.com --limit 20 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditList(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.category, "category", "", "Only entries in this category")
	cmd.Flags().StringVar(&opts.adminEmail, "admin", "", "Only entries whose actor is this admin")
	cmd.Flags().StringVar(&opts.since, "since", "", "Only entries newer than a duration (24h) or RFC 3339 time")
	cmd.Flags().IntVar(&opts.limit, "limit", 50, "Maximum entries to show")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAuditList(ctx context.Context, opts auditListOptions) error {
	filter := model.AuditFilter{Limit: opts.limit}
	if opts.category != "" {
		filter.Category = model.AuditCategory(opts.category)
		if !filter.Category.Valid() {
			return fmt.Errorf("unknown category %q (valid: %v)", opts.category, model.AuditCategories)
		}
	}
	since, err := parseSince(opts.since, time.Now())
	if err != nil {
		return err
	}
	filter.Since = since

	env, err := openCLIEnv()
	if err != nil {
		return err
	}
	defer env.close()

	if opts.adminEmail != "" {
		admin, err := env.adminByEmail(ctx, opts.adminEmail)
		if err != nil {
			return err
		}
		filter.AdminID = &admin.ID
	}

	entries, err := env.store.ListAuditEntries(ctx, filter)
	if err != nil {
		return fmt.Errorf("list audit entries: %w", err)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No audit entries match.")
		return nil
	}

	fmt.Printf("%-20s %-18s %-18s %-26s %-16s %s\n", "TIME", "CATEGORY", "ACTION", "ACTOR", "IP", "TARGET")
	for _, e := range entries {
		actor := e.ActorEmail
		if actor == "" && e.AdminID != nil {
			actor = fmt.Sprintf("admin #%d", *e.AdminID)
		}
		target := ""
		if e.TargetType != "" {
			target = e.TargetType + ":" + e.TargetID
		}
		fmt.Printf("%-20s %-18s %-18s %-26s %-16s %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Category, e.ActionType, actor, e.IPAddress, target)
	}
	return nil
}

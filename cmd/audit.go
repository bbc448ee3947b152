package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-harvest/internal/audit"
	"github.com/sells-group/lead-harvest/internal/model"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

// -- audit list --

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit entries, oldest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, err := ownerContext(cmd.Context())
		if err != nil {
			return err
		}

		raw, _ := cmd.Flags().GetString("action")
		asJSON, _ := cmd.Flags().GetBool("json")

		log := env.Service.Audit()
		var entries []model.AuditEntry
		if raw == "" || strings.EqualFold(raw, "all") {
			entries, err = log.List(ctx)
		} else {
			action := model.AuditAction(strings.ToUpper(raw))
			if !action.Valid() {
				return eris.Errorf("unknown action %q", raw)
			}
			entries, err = log.ListByAction(ctx, action)
		}
		if err != nil {
			return eris.Wrap(err, "audit list")
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No audit entries found.")
			return nil
		}
		formatAudit(out, entries)
		return nil
	},
}

// -- audit stats --

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the audit trail",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, err := ownerContext(cmd.Context())
		if err != nil {
			return err
		}

		stats, err := audit.Statistics(ctx, env.Service.Audit())
		if err != nil {
			return eris.Wrap(err, "audit stats")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Scraping operations: %d\n", stats.TotalScrapingOperations)
		fmt.Fprintf(out, "Leads validated:     %d\n", stats.TotalLeadsValidated)
		fmt.Fprintf(out, "Leads exported:      %d\n", stats.TotalLeadsExported)
		fmt.Fprintf(out, "Total entries:       %d\n", stats.TotalLogs)
		return nil
	},
}

// -- audit clear --

var auditClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every audit entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, err := ownerContext(cmd.Context())
		if err != nil {
			return err
		}

		n, err := env.Service.Audit().Clear(ctx)
		if err != nil {
			return eris.Wrap(err, "audit clear")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit entries\n", n)
		return nil
	},
}

func formatAudit(w io.Writer, entries []model.AuditEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tSOURCE\tPROXY\tLEADS")
	for _, e := range entries {
		count := "-"
		if e.LeadsCount != nil {
			count = fmt.Sprint(*e.LeadsCount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Action, orDash(e.Source), orDash(e.ProxyUsed), count)
	}
	_ = tw.Flush()
}

func init() {
	auditListCmd.Flags().String("action", "", "SCRAPE, VALIDATE, EXPORT, DELETE, MODIFY or all")
	auditListCmd.Flags().Bool("json", false, "print JSON")

	auditCmd.AddCommand(auditListCmd, auditStatsCmd, auditClearCmd)
	rootCmd.AddCommand(auditCmd)
}

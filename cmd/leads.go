package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-harvest/internal/fetcher"
	"github.com/sells-group/lead-harvest/internal/model"
	"github.com/sells-group/lead-harvest/internal/pipeline"
	"github.com/sells-group/lead-harvest/internal/search"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and manage the lead collection",
}

// -- leads list --

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored leads",
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

		term, _ := cmd.Flags().GetString("search")
		priority, _ := cmd.Flags().GetString("priority")
		source, _ := cmd.Flags().GetString("source")
		rawFilters, _ := cmd.Flags().GetStringArray("filter")
		asJSON, _ := cmd.Flags().GetBool("json")

		q := search.Query{Term: term, Priority: priority, Source: source}
		for _, raw := range rawFilters {
			f, err := parseFilterFlag(raw)
			if err != nil {
				return err
			}
			q.Filters = append(q.Filters, f)
		}

		leads, err := env.Service.Leads(ctx)
		if err != nil {
			return eris.Wrap(err, "leads list")
		}
		matched := search.Apply(leads, q)

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(matched)
		}
		if len(matched) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No leads found.")
			return nil
		}
		formatLeads(out, matched)
		c := search.CountByPriority(matched)
		fmt.Fprintf(out, "\n%d of %d leads (high %d, medium %d, low %d, confidence %d%%)\n",
			c.Total, len(leads), c.High, c.Medium, c.Low, c.Confidence())
		return nil
	},
}

// parseFilterFlag reads field:operator:value.
func parseFilterFlag(raw string) (search.Filter, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return search.Filter{}, eris.Errorf("filter %q must be field:operator:value", raw)
	}
	operator, err := search.ParseOperator(parts[1])
	if err != nil {
		return search.Filter{}, err
	}
	f := search.Filter{Field: parts[0], Operator: operator, Value: parts[2]}
	if err := f.Validate(); err != nil {
		return search.Filter{}, eris.Wrapf(err, "filter %q", raw)
	}
	return f, nil
}

// -- leads delete --

var leadsDeleteCmd = &cobra.Command{
	Use:   "delete [lead-id...]",
	Short: "Delete leads by id, or all leads with --all",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		reason, _ := cmd.Flags().GetString("reason")
		if !all && len(args) == 0 {
			return eris.New("pass lead ids or --all")
		}

		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, err := ownerContext(cmd.Context())
		if err != nil {
			return err
		}

		var n int
		if all {
			n, err = env.Service.Clear(ctx, reason)
		} else {
			n, err = env.Service.Delete(ctx, args, reason)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d leads\n", n)
		return nil
	},
}

// -- leads import --

var leadsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import leads from a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		format, err := fetcher.DetectFormat(path)
		if err != nil {
			return err
		}
		source, _ := cmd.Flags().GetString("source")
		if source == "" {
			source = filepath.Base(path)
		}
		sheet, _ := cmd.Flags().GetString("sheet")
		delimiter, _ := cmd.Flags().GetString("delimiter")

		opts := fetcher.Options{Source: source}
		opts.XLSX.SheetName = sheet
		if delimiter != "" {
			opts.CSV.Delimiter = []rune(delimiter)[0]
		}

		f, err := os.Open(path)
		if err != nil {
			return eris.Wrap(err, "open import file")
		}
		defer f.Close() //nolint:errcheck

		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, err := ownerContext(cmd.Context())
		if err != nil {
			return err
		}

		parsed, err := fetcher.ReadLeads(ctx, f, format, opts)
		if err != nil {
			return err
		}
		res, err := env.Service.Ingest(ctx, parsed.Leads, pipeline.ScrapeInfo{Source: source})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %d leads, %d duplicates skipped, %d rows rejected\n",
			len(res.Added), res.Duplicates+parsed.Duplicates, len(parsed.Skipped))
		for _, s := range parsed.Skipped {
			fmt.Fprintf(cmd.ErrOrStderr(), "  row %d: %s\n", s.Row, s.Reason)
		}
		return nil
	},
}

// formatLeads writes leads as an aligned table.
func formatLeads(w io.Writer, leads []model.Lead) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTITLE\tCOMPANY\tEMAIL\tPRIORITY\tSCORE\tSOURCE")
	for _, l := range leads {
		score := "-"
		if l.AIScore != nil {
			score = strconv.Itoa(*l.AIScore)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.Name, l.JobTitle, l.Company, orDash(l.Email), l.Priority, score, l.Source)
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	leadsListCmd.Flags().String("search", "", "match name, title or company")
	leadsListCmd.Flags().String("priority", "", "high, medium, low or all")
	leadsListCmd.Flags().String("source", "", "exact source or all")
	leadsListCmd.Flags().StringArray("filter", nil, "field:operator:value (repeatable)")
	leadsListCmd.Flags().Bool("json", false, "print JSON")

	leadsDeleteCmd.Flags().Bool("all", false, "delete every lead")
	leadsDeleteCmd.Flags().String("reason", "", "reason recorded in the audit log")

	leadsImportCmd.Flags().String("source", "", "source for rows without one (default file name)")
	leadsImportCmd.Flags().String("sheet", "", "xlsx sheet name (default first sheet)")
	leadsImportCmd.Flags().String("delimiter", "", "csv field delimiter (default ,)")

	leadsCmd.AddCommand(leadsListCmd, leadsDeleteCmd, leadsImportCmd)
	rootCmd.AddCommand(leadsCmd)
}

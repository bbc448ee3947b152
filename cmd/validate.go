package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-harvest/internal/export"
	"github.com/sells-group/lead-harvest/internal/search"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Score and validate every stored lead",
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

		criteria, _ := cmd.Flags().GetString("criteria")
		strictness, _ := cmd.Flags().GetInt("strictness")
		if strings.TrimSpace(criteria) == "" {
			criteria = cfg.Scoring.Criteria
		}
		if strictness == 0 {
			strictness = cfg.Scoring.Strictness
		}

		leads, err := env.Service.ValidateStored(ctx, criteria, strictness)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		formatLeads(out, leads)
		c := search.CountByPriority(leads)
		fmt.Fprintf(out, "\nValidated %d leads: high %d, medium %d, low %d\n", c.Total, c.High, c.Medium, c.Low)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored leads to CSV, XLSX or PDF",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rawFormat, _ := cmd.Flags().GetString("format")
		rawFields, _ := cmd.Flags().GetString("fields")
		priority, _ := cmd.Flags().GetString("priority")
		path, _ := cmd.Flags().GetString("out")

		format, err := export.ParseFormat(rawFormat)
		if err != nil {
			return err
		}
		fields, err := export.ParseFields(rawFields)
		if err != nil {
			return err
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

		if path == "" {
			path = export.FileName(format, time.Now())
		}
		f, err := os.Create(filepath.Clean(path))
		if err != nil {
			return eris.Wrap(err, "create export file")
		}

		n, err := env.Service.Export(ctx, f, export.Options{Format: format, Fields: fields, Priority: priority})
		if cerr := f.Close(); err == nil && cerr != nil {
			err = eris.Wrap(cerr, "close export file")
		}
		if err != nil {
			_ = os.Remove(path)
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d leads to %s\n", n, path)
		return nil
	},
}

func init() {
	validateCmd.Flags().String("criteria", "", "high-priority rules joined by OR (default from config)")
	validateCmd.Flags().Int("strictness", 0, "strictness 1-10 (default from config)")

	exportCmd.Flags().String("format", "csv", "csv, xlsx or pdf")
	exportCmd.Flags().String("fields", "", "comma-separated fields (default name,jobTitle,company,email,phone,priority,source)")
	exportCmd.Flags().String("priority", "all", "high, medium, low or all")
	exportCmd.Flags().StringP("out", "o", "", "output file (default leads-export-<date>.<ext>)")

	rootCmd.AddCommand(validateCmd, exportCmd)
}

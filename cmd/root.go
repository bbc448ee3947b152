package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/internal/config"
)

var (
	cfg      *config.Config
	userFlag string
)

var rootCmd = &cobra.Command{
	Use:   "lead-harvest",
	Short: "Lead scoring, validation and deduplication pipeline",
	Long:  "Finds and imports prospective contacts, scores and validates them, keeps a deduplicated per-user collection with an audit trail, and exports or pushes it to Salesforce.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if userFlag != "" {
			c.Session.UserID = userFlag
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "owner id to act for (default from session.user_id)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

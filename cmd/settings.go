package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-harvest/internal/api"
	"github.com/sells-group/lead-harvest/internal/credential"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change per-user settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current settings",
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

		st, err := env.Service.Settings(ctx)
		if err != nil {
			return err
		}

		key := "(not set)"
		if strings.TrimSpace(st.OpenAIKey) != "" {
			key = api.MaskKey(st.OpenAIKey)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "API key:            %s\n", key)
		fmt.Fprintf(out, "Use proxies:        %t\n", st.UseProxies)
		fmt.Fprintf(out, "Request delay:      %ds\n", st.RequestDelaySecs)
		fmt.Fprintf(out, "Respect robots.txt: %t\n", st.RespectRobotsTxt)
		fmt.Fprintf(out, "Default source:     %s\n", st.DefaultSource)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change scraping settings",
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

		st, err := env.Service.Settings(ctx)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("use-proxies") {
			st.UseProxies, _ = flags.GetBool("use-proxies")
		}
		if flags.Changed("request-delay") {
			st.RequestDelaySecs, _ = flags.GetInt("request-delay")
		}
		if flags.Changed("respect-robots") {
			st.RespectRobotsTxt, _ = flags.GetBool("respect-robots")
		}
		if flags.Changed("default-source") {
			st.DefaultSource, _ = flags.GetString("default-source")
		}

		if err := env.Service.SaveSettings(ctx, st); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Settings saved")
		return nil
	},
}

var settingsSetKeyCmd = &cobra.Command{
	Use:   "set-key <api-key>",
	Short: "Save the API key used for generation and validation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credential.CheckKeyFormat(args[0], cfg.AI.KeyPrefix); err != nil {
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

		st, err := env.Service.Settings(ctx)
		if err != nil {
			return err
		}
		st.OpenAIKey = strings.TrimSpace(args[0])
		if err := env.Service.SaveSettings(ctx, st); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "API key saved")
		return nil
	},
}

var settingsTestKeyCmd = &cobra.Command{
	Use:   "test-key [api-key]",
	Short: "Check the format of a key, or of the saved key",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			env, err := initEnv(cmd.Context(), "cli")
			if err != nil {
				return err
			}
			defer env.Close()

			ctx, err := ownerContext(cmd.Context())
			if err != nil {
				return err
			}
			st, err := env.Service.Settings(ctx)
			if err != nil {
				return err
			}
			key = st.OpenAIKey
		}

		if err := credential.CheckKeyFormat(key, cfg.AI.KeyPrefix); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "API key format is valid")
		return nil
	},
}

func init() {
	settingsSetCmd.Flags().Bool("use-proxies", true, "rotate simulated proxies")
	settingsSetCmd.Flags().Int("request-delay", 2, "seconds between simulated requests (1-10)")
	settingsSetCmd.Flags().Bool("respect-robots", true, "respect robots.txt")
	settingsSetCmd.Flags().String("default-source", "", "source recorded on found leads")

	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsSetKeyCmd, settingsTestKeyCmd)
	rootCmd.AddCommand(settingsCmd)
}

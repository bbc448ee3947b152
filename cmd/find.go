package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-harvest/internal/finder"
	"github.com/sells-group/lead-harvest/internal/model"
	"github.com/sells-group/lead-harvest/internal/pipeline"
)

var findCmd = &cobra.Command{
	Use:   "find <search-term>",
	Short: "Search the contact catalog and add matches to the collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, err := ownerContext(cmd.Context())
		if err != nil {
			return err
		}

		settings, err := env.Service.Settings(ctx)
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		source, _ := cmd.Flags().GetString("source")
		prioritize, _ := cmd.Flags().GetBool("prioritize")
		if limit <= 0 {
			limit = cfg.Scrape.Limit
		}
		if source == "" {
			source = settings.DefaultSource
		}
		delay := time.Duration(settings.RequestDelaySecs) * time.Second
		if cmd.Flags().Changed("delay") {
			delay, _ = cmd.Flags().GetDuration("delay")
		}

		found, err := env.Finder.Search(ctx, args[0], finder.Options{
			Limit:        limit,
			UseProxies:   settings.UseProxies,
			Proxies:      cfg.Scrape.Proxies,
			RequestDelay: delay,
			Source:       source,
			Prioritize:   prioritize,
		})
		if err != nil {
			return eris.Wrap(err, "find")
		}

		batch := model.CloneLeads(found.Leads)
		for i := range batch {
			batch[i].ID = ""
		}
		res, err := env.Service.Ingest(ctx, batch, pipeline.ScrapeInfo{
			Source:         source,
			ProxiesEnabled: settings.UseProxies,
			ProxyUsed:      found.ProxyUsed,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Keywords: %v\n", found.Keywords)
		fmt.Fprintf(out, "Requests: %d", found.Requests)
		if found.ProxyUsed != "" {
			fmt.Fprintf(out, " (last proxy %s)", found.ProxyUsed)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Added %d leads, %d duplicates skipped\n\n", len(res.Added), res.Duplicates)
		formatLeads(out, res.Added)
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <search-term>",
	Short: "Generate simulated leads for a search term",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, err := ownerContext(cmd.Context())
		if err != nil {
			return err
		}

		count, _ := cmd.Flags().GetInt("count")
		source, _ := cmd.Flags().GetString("source")

		settings, err := env.Service.Settings(ctx)
		if err != nil {
			return err
		}
		info := pipeline.ScrapeInfo{Source: source, ProxiesEnabled: settings.UseProxies}
		if settings.UseProxies && len(cfg.Scrape.Proxies) > 0 {
			info.ProxyUsed = cfg.Scrape.Proxies[0]
		}

		res, err := env.Service.Generate(ctx, env.Generator, count, args[0], info)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Added %d leads, %d duplicates skipped\n\n", len(res.Added), res.Duplicates)
		formatLeads(out, res.Added)
		return nil
	},
}

func init() {
	findCmd.Flags().Int("limit", 0, "maximum leads to find (default from config)")
	findCmd.Flags().String("source", "", "source recorded on found leads (default from settings)")
	findCmd.Flags().Duration("delay", 0, "delay between simulated requests (default from settings)")
	findCmd.Flags().Bool("prioritize", false, "re-tier found leads from their job titles")

	generateCmd.Flags().Int("count", 10, "number of leads to generate")
	generateCmd.Flags().String("source", finder.DefaultGenerateSource, "source recorded on generated leads")

	rootCmd.AddCommand(findCmd, generateCmd)
}

package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-harvest/internal/export"
	"github.com/sells-group/lead-harvest/internal/model"
	"github.com/sells-group/lead-harvest/internal/store"
	sfpkg "github.com/sells-group/lead-harvest/pkg/salesforce"
)

var pushSalesforceCmd = &cobra.Command{
	Use:   "push-salesforce",
	Short: "Push validated leads to Salesforce as Lead records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		priority, _ := cmd.Flags().GetString("priority")
		all, _ := cmd.Flags().GetBool("include-unvalidated")
		update, _ := cmd.Flags().GetBool("update-existing")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		id, _ := cmd.Flags().GetString("id")

		mode := "salesforce"
		if dryRun {
			mode = "cli"
		}
		env, err := initEnv(cmd.Context(), mode)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, err := ownerContext(cmd.Context())
		if err != nil {
			return err
		}

		leads, err := env.Service.Leads(ctx)
		if err != nil {
			return err
		}
		var selected []model.Lead
		if id != "" {
			i := slices.IndexFunc(leads, func(l model.Lead) bool { return l.ID == id })
			if i < 0 {
				return eris.Wrapf(store.ErrNotFound, "lead %s", id)
			}
			selected = leads[i : i+1]
		} else {
			selected = selectForPush(leads, priority, all)
		}

		out := cmd.OutOrStdout()
		if dryRun {
			fmt.Fprintf(out, "Would push %d of %d leads\n", len(selected), len(leads))
			formatLeads(out, selected)
			return nil
		}
		if len(selected) == 0 {
			fmt.Fprintln(out, "No leads to push")
			return nil
		}

		sf, err := initSalesforce()
		if err != nil {
			return err
		}

		opts := sfpkg.PushOptions{UpdateExisting: update}
		var res *sfpkg.PushResult
		if id != "" {
			res, err = sfpkg.PushLead(ctx, sf, selected[0], opts)
		} else {
			res, err = sfpkg.PushLeads(ctx, sf, selected, opts)
		}
		if res != nil {
			fmt.Fprintf(out, "Created %d, updated %d, failed %d\n", res.Created, res.Updated, len(res.Failures))
			for _, f := range res.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s (%s): %v\n", f.Name, f.LeadID, f.Errors)
			}
		}
		return err
	},
}

// selectForPush keeps validated leads matching priority. includeUnvalidated
// also keeps leads that were never validated.
func selectForPush(leads []model.Lead, priority string, includeUnvalidated bool) []model.Lead {
	var out []model.Lead
	for _, l := range export.Filter(leads, priority) {
		if l.Validated() || includeUnvalidated {
			out = append(out, l)
		}
	}
	return out
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (HARVEST_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	var opts []sfpkg.ClientOption
	if cfg.Salesforce.RateLimit > 0 {
		opts = append(opts, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit))
	}
	return sfpkg.NewClient(sf, opts...), nil
}

func init() {
	pushSalesforceCmd.Flags().String("priority", "all", "high, medium, low or all")
	pushSalesforceCmd.Flags().Bool("include-unvalidated", false, "also push leads that were never validated")
	pushSalesforceCmd.Flags().Bool("update-existing", true, "update open Salesforce leads with the same email")
	pushSalesforceCmd.Flags().Bool("dry-run", false, "list the leads that would be pushed")
	pushSalesforceCmd.Flags().String("id", "", "push a single lead by id, ignoring --priority and --include-unvalidated")
	rootCmd.AddCommand(pushSalesforceCmd)
}

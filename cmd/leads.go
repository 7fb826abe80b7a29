package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/store"
)

var (
	leadsMinScore  int
	leadsJobID     string
	leadsLimit     int
	leadsQualified bool
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List persisted leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "store")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.LeadFilter{JobID: leadsJobID, QualifiedOnly: leadsQualified, Limit: leadsLimit}
		if cmd.Flags().Changed("min-score") {
			filter.MinScore = &leadsMinScore
		}
		leads, err := st.ListLeads(ctx, filter)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), leads)
	},
}

func init() {
	leadsCmd.Flags().IntVar(&leadsMinScore, "min-score", 0, "only leads scoring at least this")
	leadsCmd.Flags().StringVar(&leadsJobID, "job", "", "only leads from this job")
	leadsCmd.Flags().IntVar(&leadsLimit, "limit", 50, "max leads to list")
	leadsCmd.Flags().BoolVar(&leadsQualified, "qualified", false, "only qualified leads")
	rootCmd.AddCommand(leadsCmd)
}

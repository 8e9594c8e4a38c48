package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civic-tools/civicd/pkg/congress"
)

var (
	membersState string
	membersAll   bool
	membersJSON  bool
)

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List House members from the Congress.gov API",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := congress.NewClient(cfg.Congress.APIKey,
			congress.WithBaseURL(cfg.Congress.BaseURL),
			congress.WithPageLimit(cfg.Congress.PageLimit))

		members, err := client.HouseMembers(cmd.Context(), congress.MemberOptions{
			State:       membersState,
			CurrentOnly: !membersAll,
		})
		if err != nil {
			return eris.Wrap(err, "fetch members")
		}

		if membersJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(members)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "BIOGUIDE\tNAME\tSTATE\tDISTRICT\tPARTY")
		for _, m := range members {
			district := "-"
			if m.District != nil {
				district = fmt.Sprintf("%d", *m.District)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				m.BioguideID, m.Name, m.State, district, m.Party)
		}
		if err := tw.Flush(); err != nil {
			return eris.Wrap(err, "flush output")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d members\n", len(members))
		return nil
	},
}

func init() {
	membersCmd.Flags().StringVar(&membersState, "state", "", "filter by state name or abbreviation")
	membersCmd.Flags().BoolVar(&membersAll, "all", false, "include former members")
	membersCmd.Flags().BoolVar(&membersJSON, "json", false, "output JSON instead of a table")
	rootCmd.AddCommand(membersCmd)
}

package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/store"
)

var (
	listingsSite  string
	listingsMake  string
	listingsLimit int
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "List stored listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("listings"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		out, err := st.ListListings(ctx, store.ListingFilter{
			SourceSite: listingsSite,
			Make:       listingsMake,
			Limit:      listingsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list listings")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	listingsCmd.Flags().StringVar(&listingsSite, "site", "", "filter by source site")
	listingsCmd.Flags().StringVar(&listingsMake, "make", "", "filter by normalized make")
	listingsCmd.Flags().IntVar(&listingsLimit, "limit", 100, "maximum rows returned")
	rootCmd.AddCommand(listingsCmd)
}

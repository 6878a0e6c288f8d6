package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/config"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
)

// siteRow is the JSON shape printed per registry entry.
type siteRow struct {
	ID              string           `json:"id"`
	BaseURL         string           `json:"base_url"`
	Category        string           `json:"category,omitempty"`
	Priority        int              `json:"priority"`
	Enabled         bool             `json:"enabled"`
	Status          model.SiteStatus `json:"status"`
	ListingSelector string           `json:"listing_selector,omitempty"`
	Pipelines       int              `json:"pipelines"`
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the configured site registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		sites := cfg.Sites
		if cfg.SitesFile != "" {
			merged, err := config.LoadSites(cfg.SitesFile, sites)
			if err != nil {
				return err
			}
			sites = merged
		}

		rows := make([]siteRow, 0, len(sites))
		for _, s := range sites {
			status := s.Status
			if status == "" {
				status = model.SiteActive
			}
			rows = append(rows, siteRow{
				ID:              s.ID,
				BaseURL:         s.BaseURL,
				Category:        s.Category,
				Priority:        s.Priority,
				Enabled:         s.Enabled,
				Status:          status,
				ListingSelector: s.ListingSelector,
				Pipelines:       len(s.Pipelines),
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	},
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}

package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/budget"
)

// usageReport is the JSON shape printed by the usage command.
type usageReport struct {
	DefaultCaps budget.Caps                            `json:"default_caps"`
	PerSite     map[string]budget.Caps                 `json:"per_site_overrides,omitempty"`
	Sites       map[string]map[string]budget.BandUsage `json:"sites"`
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show per-site budget caps and projected daily usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("usage"); err != nil {
			return err
		}

		enforcer := budget.NewEnforcer(cfg.Budget.Caps, cfg.Budget.PerSite)

		report := usageReport{
			DefaultCaps: cfg.Budget.Caps,
			PerSite:     cfg.Budget.PerSite,
			Sites:       make(map[string]map[string]budget.BandUsage, len(cfg.Sites)),
		}
		for _, site := range cfg.Sites {
			bands := make(map[string]budget.BandUsage, len(budget.Bands))
			for band, u := range enforcer.Usage(site.ID) {
				bands[band.String()] = u
			}
			report.Sites[site.ID] = bands
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
}

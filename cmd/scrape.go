package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/budget"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/config"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/extract"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/scrape"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/store"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/urlguard"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/pkg/llm"
)

var (
	scrapeSites  []string
	scrapeDryRun bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape configured auction sites and persist normalized listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.SitesFile != "" {
			merged, err := config.LoadSites(cfg.SitesFile, cfg.Sites)
			if err != nil {
				return err
			}
			cfg.Sites = merged
		}

		if err := cfg.Validate("scrape"); err != nil {
			return err
		}

		sites := cfg.Sites
		if len(scrapeSites) > 0 {
			want := make(map[string]bool, len(scrapeSites))
			for _, id := range scrapeSites {
				want[id] = true
			}
			sites = nil
			for _, s := range cfg.Sites {
				if want[s.ID] {
					sites = append(sites, s)
				}
			}
			if len(sites) == 0 {
				return eris.New("no configured site matches --site")
			}
		}

		enforcer := budget.NewEnforcer(cfg.Budget.Caps, cfg.Budget.PerSite)
		guard := urlguard.New(cfg.URLGuard)

		var pool *scrape.ProxyPool
		if len(cfg.Proxies) > 0 {
			pool = scrape.NewProxyPool(cfg.Proxies)
		}
		fetcher := scrape.NewFetcher(guard, scrape.NewDetector(), pool, cfg.Scrape.FetchTimeout)

		strategies := []extract.Strategy{
			&extract.SelectorStrategy{},
			&extract.MLStrategy{},
		}
		if cfg.Anthropic.Key != "" {
			client := llm.NewClient(cfg.Anthropic.Key, cfg.Anthropic.Model)
			strategies = append(strategies, extract.NewLLMStrategy(client))
		}
		cascade := extract.NewCascade(enforcer, strategies...)

		var db store.Store
		if !scrapeDryRun {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			db = st
		}

		o := scrape.NewOrchestrator(cfg.Scrape, fetcher, cascade, db)
		summary, err := o.Run(ctx, sites)
		if err != nil {
			return eris.Wrap(err, "scrape run")
		}

		zap.L().Info("scrape complete",
			zap.String("run_id", summary.RunID),
			zap.Int("vehicles_found", summary.VehiclesFound),
			zap.Int("successes", summary.Successes),
			zap.Int("blocks", summary.Blocks),
			zap.Int("failures", summary.Failures),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	scrapeCmd.Flags().StringSliceVar(&scrapeSites, "site", nil, "restrict the run to these site IDs")
	scrapeCmd.Flags().BoolVar(&scrapeDryRun, "dry-run", false, "scrape and extract without persisting")
	rootCmd.AddCommand(scrapeCmd)
}

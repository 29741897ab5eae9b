package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sports-harvester/internal/app"
	"github.com/JakeFAU/sports-harvester/internal/odds"
	"github.com/JakeFAU/sports-harvester/internal/storage/local"
)

func newOddsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "odds",
		Short: "Harvest past betting results, one CSV per team season.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runOdds),
	}
	flags := cmd.Flags()
	flags.String("sport", string(odds.NFL), "mlb, nfl, nhl, or nba")
	flags.Int("begin", 2016, "first season")
	flags.Int("end", 2017, "season after the last one")
	flags.String("base-url", odds.DefaultBaseURL, "results site")
	flags.Int("season-concurrency", 30, "maximum team seasons in flight")
	bindFlags(flags, map[string]string{
		"sport":              "odds.sport",
		"begin":              "odds.begin",
		"end":                "odds.end",
		"base-url":           "odds.base_url",
		"season-concurrency": "odds.concurrency",
	})
	return cmd
}

func runOdds(ctx context.Context, a *app.App) error {
	cfg := a.Config()
	logger := a.Logger().Named("odds")

	sport, err := odds.ParseSport(cfg.Odds.Sport)
	if err != nil {
		return err
	}
	years, notes := odds.ClampYears(sport, cfg.Odds.Begin, cfg.Odds.End)
	for _, note := range notes {
		logger.Info(note)
	}

	root := cfg.Harvest.OutputRoot
	if a.UsesLocalStorage() {
		if err := local.Bootstrap(root, nil); err != nil {
			return err
		}
	}

	docs := newDocumentFetcher(cfg, newPacer(cfg))
	teams, err := odds.DiscoverTeams(ctx, docs, cfg.Odds.BaseURL, sport)
	if err != nil {
		return fmt.Errorf("discover %s teams: %w", sport, err)
	}
	logger.Info("teams discovered",
		zap.Int("teams", len(teams)),
		zap.Int("begin", years.Begin),
		zap.Int("end", years.End),
	)

	gate, err := newGate("unit", cfg.Odds.Concurrency)
	if err != nil {
		return err
	}
	proc := odds.NewProcessor(sport, root, docs, a.Writer(), logger)
	return runHarvest(ctx, a, "odds", gate, proc, odds.Units(cfg.Odds.BaseURL, sport, teams, years))
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sports-harvester/internal/app"
	"github.com/JakeFAU/sports-harvester/internal/gameday"
	"github.com/JakeFAU/sports-harvester/internal/harvest"
	"github.com/JakeFAU/sports-harvester/internal/storage/local"
)

func newGamedayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gameday",
		Short: "Harvest MLB scoreboards and the per-game documents they list.",
		Long: `gameday walks the days in [start, end), fetches each day's scoreboard,
and saves the players, miniscoreboard, and inning documents of every game
under {out}/{category}/.`,
		Args: cobra.NoArgs,
		RunE: withApp(runGameday),
	}
	flags := cmd.Flags()
	flags.String("start", "4/3/2018", "first day, M/D/YYYY")
	flags.String("end", "", "day after the last one, M/D/YYYY (default today)")
	flags.String("base-url", gameday.DefaultBaseURL, "root of the gameday tree")
	flags.String("extractor", gameday.ModeXPath, "scoreboard extractor: xpath or css")
	bindFlags(flags, map[string]string{
		"start":     "gameday.start",
		"end":       "gameday.end",
		"base-url":  "gameday.base_url",
		"extractor": "gameday.extractor",
	})
	return cmd
}

func runGameday(ctx context.Context, a *app.App) error {
	cfg := a.Config()

	start, err := gameday.ParseDate(cfg.Gameday.Start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end := today()
	if cfg.Gameday.End != "" {
		if end, err = gameday.ParseDate(cfg.Gameday.End); err != nil {
			return fmt.Errorf("end: %w", err)
		}
	}
	units, err := gameday.Units(cfg.Gameday.BaseURL, start, end)
	if err != nil {
		return err
	}

	planner := gameday.NewPlanner(cfg.Harvest.OutputRoot)
	if a.UsesLocalStorage() {
		if err := local.Bootstrap(cfg.Harvest.OutputRoot, planner.Categories()); err != nil {
			return err
		}
	}
	extractor, err := gameday.NewExtractor(cfg.Gameday.Extractor)
	if err != nil {
		return err
	}

	pacer := newPacer(cfg)
	pcfg := harvest.PipelineConfig{
		Documents: newDocumentFetcher(cfg, pacer),
		Children:  newStreamFetcher(cfg, pacer),
		Extractor: extractor,
		Planner:   planner,
		Writer:    a.Writer(),
		Logger:    a.Logger().Named("pipeline"),
	}
	if cfg.Harvest.ChildConcurrency > 0 {
		childGate, err := newGate("child", cfg.Harvest.ChildConcurrency)
		if err != nil {
			return err
		}
		pcfg.ChildGate = childGate
	}
	pipeline, err := harvest.NewPipeline(pcfg)
	if err != nil {
		return err
	}

	gate, err := newGate("unit", cfg.Harvest.Concurrency)
	if err != nil {
		return err
	}
	return runHarvest(ctx, a, "gameday", gate, pipeline, units)
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

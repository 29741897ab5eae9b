package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sports-harvester/internal/app"
	"github.com/JakeFAU/sports-harvester/internal/harvest"
	"github.com/JakeFAU/sports-harvester/internal/projections"
	"github.com/JakeFAU/sports-harvester/internal/storage/local"
)

func newProjectionsCmd(d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projections",
		Short: "Render today's projections page in a headless browser and save it as CSV.",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App) error {
			return runProjections(ctx, a, d)
		}),
	}
	flags := cmd.Flags()
	flags.String("url", projections.DefaultURL, "projections page")
	flags.Int("nav-timeout", 45, "navigation timeout in seconds")
	flags.Int("settle-ms", 500, "wait after the page body is ready, in milliseconds")
	bindFlags(flags, map[string]string{
		"url":         "projections.url",
		"nav-timeout": "projections.nav_timeout_seconds",
		"settle-ms":   "projections.settle_ms",
	})
	return cmd
}

func runProjections(ctx context.Context, a *app.App, d deps) error {
	cfg := a.Config()
	root := cfg.Harvest.OutputRoot
	if a.UsesLocalStorage() {
		if err := local.Bootstrap(root, nil); err != nil {
			return err
		}
	}

	b, err := d.newBrowser(cfg)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer b.Close()

	gate, err := newGate("unit", 1)
	if err != nil {
		return err
	}
	proc := projections.NewProcessor(root, b, a.Writer(), a.Logger().Named("projections"))
	units := []harvest.WorkUnit{projections.Unit(cfg.Projections.URL, time.Now())}
	return runHarvest(ctx, a, "projections", gate, proc, units)
}

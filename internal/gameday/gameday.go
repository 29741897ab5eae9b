// Package gameday describes the MLB gameday feed: one scoreboard per day
// listing games, and three detail documents per game.
package gameday

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/sports-harvester/internal/extract"
	"github.com/JakeFAU/sports-harvester/internal/harvest"
)

const (
	// DefaultBaseURL is the root of the public gameday tree.
	DefaultBaseURL = "http://gd2.mlb.com/components/game/mlb"
	// ScoreboardDoc is the per-day document listing games.
	ScoreboardDoc = "scoreboard.xml"
	// DateLayout is the accepted --start/--end format, e.g. 4/3/2018.
	DateLayout = "1/2/2006"
	// KeyLayout formats unit keys.
	KeyLayout = "2006-01-02"
	// GamePrefix is prepended to scoreboard game ids.
	GamePrefix = "gid_"
)

// Suffixes are the child documents fetched for every game.
var Suffixes = []harvest.Suffix{
	{Path: "/players.xml", Category: "players"},
	{Path: "/miniscoreboard.xml", Category: "miniscoreboard"},
	{Path: "/inning/inning_all.xml", Category: "inning"},
}

// Extractor modes.
const (
	ModeXPath = "xpath"
	ModeCSS   = "css"
)

// ErrEmptyRange is returned when end does not come after start.
var ErrEmptyRange = errors.New("end must be after start")

// ParseDate parses a date in DateLayout.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%q must be a date like 4/10/2006: %w", s, err)
	}
	return d, nil
}

// ScoreboardURL builds {base}/year_YYYY/month_MM/day_DD/scoreboard.xml.
func ScoreboardURL(base string, day time.Time) string {
	return fmt.Sprintf("%s/year_%04d/month_%02d/day_%02d/%s",
		strings.TrimRight(base, "/"), day.Year(), int(day.Month()), day.Day(), ScoreboardDoc)
}

// Units enumerates one WorkUnit per day in [start, end).
func Units(base string, start, end time.Time) ([]harvest.WorkUnit, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if !end.After(start) {
		return nil, fmt.Errorf("%w: start %s, end %s", ErrEmptyRange, start.Format(KeyLayout), end.Format(KeyLayout))
	}
	var units []harvest.WorkUnit
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		units = append(units, harvest.WorkUnit{
			Key:   day.Format(KeyLayout),
			URL:   ScoreboardURL(base, day),
			Class: harvest.ClassTopLevel,
		})
	}
	return units, nil
}

// NewPlanner lays gameday targets out under root.
func NewPlanner(root string) *harvest.Planner {
	return harvest.NewPlanner(root, ScoreboardDoc, Suffixes)
}

// NewExtractor returns the scoreboard game-id extractor for mode.
func NewExtractor(mode string) (harvest.Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeXPath:
		return extract.XPath{Expr: "//game", Attr: "id", Prefix: GamePrefix}, nil
	case ModeCSS:
		return extract.Selector{CSS: "game", Attr: "id", Prefix: GamePrefix}, nil
	default:
		return nil, fmt.Errorf("unknown extractor mode %q", mode)
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Package odds harvests historical betting results: one table per team per
// season, written as CSV. Every unit is flat; its only target is its CSV.
package odds

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sports-harvester/internal/harvest"
)

// DefaultBaseURL is the site the team index and results live on.
const DefaultBaseURL = "https://www.covers.com"

// Sport selects headers, season naming, and minimum year.
type Sport string

// Supported sports.
const (
	MLB Sport = "mlb"
	NFL Sport = "nfl"
	NHL Sport = "nhl"
	NBA Sport = "nba"
)

// Headers are the CSV columns per sport.
var Headers = map[Sport][]string{
	NFL: {"Date", "Vs", "Score", "Week", "Team Line", "O/U"},
	NHL: {"Date", "Vs", "Score", "Goalie", "Opp. Goalie", "M/L", "O/U"},
	NBA: {"Date", "Vs", "Score", "Type", "Team Line", "O/U"},
	MLB: {"Date", "Vs", "Score", "Away Starter", "Home Starter", "Team Line", "O/U"},
}

// MinYear is the first season with results per sport.
var MinYear = map[Sport]int{MLB: 1999, NFL: 1985, NHL: 1995, NBA: 1990}

// multiline lists the columns whose cell text spans several lines.
var multiline = map[Sport]map[int]bool{
	NBA: {2: true},
	NHL: {2: true},
	MLB: {3: true, 4: true},
	NFL: {4: true, 5: true},
}

// ErrNoTable is returned when a results page has no table rows.
var ErrNoTable = errors.New("no results table")

// ParseSport validates s.
func ParseSport(s string) (Sport, error) {
	sport := Sport(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := Headers[sport]; !ok {
		return "", fmt.Errorf("unknown sport %q (want mlb, nfl, nhl, or nba)", s)
	}
	return sport, nil
}

// YearRange is the half-open season range [Begin, End).
type YearRange struct {
	Begin int
	End   int
}

// ClampYears raises begin to the sport minimum and forces end past begin. The
// returned notes describe each adjustment.
func ClampYears(sport Sport, begin, end int) (YearRange, []string) {
	var notes []string
	if first := MinYear[sport]; begin < first {
		notes = append(notes, fmt.Sprintf("odds data for %s begins in %d; setting begin to %d", sport, first, first))
		begin = first
	}
	if end <= begin {
		notes = append(notes, fmt.Sprintf("end must be greater than begin; setting end to %d", begin+1))
		end = begin + 1
	}
	return YearRange{Begin: begin, End: end}, notes
}

// Team is one entry of the team index.
type Team struct {
	Name string
	Href string
}

// TeamsURL is the team index page for sport.
func TeamsURL(base string, sport Sport) string {
	return fmt.Sprintf("%s/pageLoader/pageLoader.aspx?page=/data/%s/teams/teams.html", strings.TrimRight(base, "/"), sport)
}

// ParseTeams reads every `td a` link of the team index.
func ParseTeams(doc []byte) ([]Team, error) {
	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse team index: %w", err)
	}
	var teams []Team
	parsed.Find("td a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		name := strings.ReplaceAll(strings.TrimSpace(sel.Text()), " ", "_")
		name = strings.ReplaceAll(name, ".", "")
		if name == "" {
			return
		}
		teams = append(teams, Team{Name: name, Href: href})
	})
	return teams, nil
}

// DiscoverTeams fetches and parses the team index.
func DiscoverTeams(ctx context.Context, f harvest.Fetcher, base string, sport Sport) ([]Team, error) {
	url := TeamsURL(base, sport)
	outcome, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer outcome.Body.Close() //nolint:errcheck
	doc, err := io.ReadAll(outcome.Body)
	if err != nil {
		return nil, &harvest.NetworkError{URL: url, Status: outcome.Status, Err: err}
	}
	teams, err := ParseTeams(doc)
	if err != nil {
		return nil, &harvest.ExtractionError{URL: url, Err: err}
	}
	if len(teams) == 0 {
		return nil, &harvest.ExtractionError{URL: url, Err: errors.New("no team links")}
	}
	return teams, nil
}

// Season names a season in URLs: "2016" for mlb, "2016-2017" otherwise.
func Season(sport Sport, year int) string {
	if sport == MLB {
		return strconv.Itoa(year)
	}
	return fmt.Sprintf("%d-%d", year, year+1)
}

// SeasonHref inserts pastresults/{season} before the last path segment of href.
func SeasonHref(sport Sport, href string, year int) string {
	parts := strings.Split(href, "/")
	last := parts[len(parts)-1]
	out := append(append([]string(nil), parts[:len(parts)-1]...), "pastresults", Season(sport, year), last)
	return strings.Join(out, "/")
}

// Units builds one unit per team per year in r, keyed team_year.
func Units(base string, sport Sport, teams []Team, r YearRange) []harvest.WorkUnit {
	base = strings.TrimRight(base, "/")
	var units []harvest.WorkUnit
	for _, team := range teams {
		for y := r.Begin; y < r.End; y++ {
			href := SeasonHref(sport, team.Href, y)
			url := href
			if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
				url = base + href
			}
			units = append(units, harvest.WorkUnit{
				Key:   fmt.Sprintf("%s_%d", team.Name, y),
				URL:   url,
				Class: harvest.ClassTopLevel,
			})
		}
	}
	return units
}

// ParseTable extracts result rows. Cells stop at the first header or summary
// cell in a row, and cells beyond the sport's header width are dropped.
func ParseTable(sport Sport, doc []byte) ([][]string, error) {
	header, ok := Headers[sport]
	if !ok {
		return nil, fmt.Errorf("unknown sport %q", sport)
	}
	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}
	trs := parsed.Find("table tr")
	if trs.Length() == 0 {
		return nil, ErrNoTable
	}
	var rows [][]string
	trs.Each(func(_ int, tr *goquery.Selection) {
		var row []string
		tr.Find("td").EachWithBreak(func(i int, td *goquery.Selection) bool {
			if td.HasClass("datahead") || td.HasClass("datacellc") || i >= len(header) {
				return false
			}
			text := strings.TrimSpace(td.Text())
			if multiline[sport][i] {
				text = joinLines(text)
			}
			row = append(row, text)
			return true
		})
		if len(row) == 0 {
			return
		}
		for len(row) < len(header) {
			row = append(row, "")
		}
		rows = append(rows, row)
	})
	return rows, nil
}

func joinLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " ")
}

// EncodeCSV renders header and rows.
func EncodeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}

// OutputPath is root/{key}.csv.
func OutputPath(root, key string) string {
	return filepath.Join(root, key+".csv")
}

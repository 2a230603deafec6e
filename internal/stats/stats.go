// Package stats aggregates the play-event log over time windows.
package stats

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"legato/internal/clock"
	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

// Store is the slice of the catalog store the aggregator reads.
type Store interface {
	ListeningTotals(ctx context.Context, since time.Time) (models.ListeningStats, error)
	MostPlayed(ctx context.Context, since time.Time, limit int) ([]models.SongStats, error)
}

// Range names a statistics window.
type Range string

const (
	Today     Range = "today"
	ThisWeek  Range = "week"
	ThisMonth Range = "month"
	ThisYear  Range = "year"
	AllTime   Range = "all"
)

// Ranges lists the presets in display order.
var Ranges = []Range{Today, ThisWeek, ThisMonth, ThisYear, AllTime}

// ParseRange maps a preset name to a Range.
func ParseRange(s string) (Range, error) {
	r := Range(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Ranges {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown range %q (want one of today, week, month, year, all)", s)
}

// Since resolves the preset to the start of its window relative to now.
func (r Range) Since(now time.Time) time.Time {
	switch r {
	case Today:
		return clock.StartOfDay(now)
	case ThisWeek:
		return now.AddDate(0, 0, -7)
	case ThisMonth:
		return now.AddDate(0, -1, 0)
	case ThisYear:
		return now.AddDate(-1, 0, 0)
	default:
		return time.UnixMilli(0)
	}
}

// Aggregator computes listening statistics.
type Aggregator struct {
	store  Store
	logger *logrus.Logger
	clock  clock.Clock
}

// NewAggregator creates an aggregator over store.
func NewAggregator(store Store, logger *logrus.Logger, clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Aggregator{store: store, logger: logger, clock: clk}
}

// ListeningStats returns the play count and total listening time since the
// given time. Failures read as zero.
func (a *Aggregator) ListeningStats(ctx context.Context, since time.Time) models.ListeningStats {
	stats, err := a.store.ListeningTotals(ctx, since)
	if err != nil {
		a.logger.WithError(err).WithField("since", since).Error("Failed to aggregate listening stats")
		return models.ListeningStats{}
	}
	return stats
}

// MostPlayedSongs ranks songs played since the given time by play count then
// total listening time, keeping at most limit entries. Each entry carries the
// artist derived from its title.
func (a *Aggregator) MostPlayedSongs(ctx context.Context, since time.Time, limit int) []models.SongStats {
	if limit < 1 {
		return []models.SongStats{}
	}

	ranked, err := a.store.MostPlayed(ctx, since, limit)
	if err != nil {
		a.logger.WithError(err).WithField("since", since).Error("Failed to rank most played songs")
		return []models.SongStats{}
	}
	for i := range ranked {
		ranked[i].Artist = ExtractArtist(ranked[i].Title)
	}
	return ranked
}

// Report bundles what the statistics screen shows for one preset.
type Report struct {
	Range    Range                 `json:"range"`
	Since    time.Time             `json:"since"`
	Stats    models.ListeningStats `json:"stats"`
	TopSongs []models.SongStats    `json:"topSongs"`
}

// Report resolves r against the current time and aggregates it.
func (a *Aggregator) Report(ctx context.Context, r Range, limit int) Report {
	since := r.Since(a.clock.Now())
	return Report{
		Range:    r,
		Since:    since,
		Stats:    a.ListeningStats(ctx, since),
		TopSongs: a.MostPlayedSongs(ctx, since, limit),
	}
}

// ExtractArtist guesses the artist from a song title: with the extension
// removed, the text before " - " or else before the first "_". It returns ""
// when neither separator is present.
func ExtractArtist(title string) string {
	name := strings.TrimSuffix(title, path.Ext(title))

	if before, _, found := strings.Cut(name, " - "); found {
		return strings.TrimSpace(before)
	}
	if before, _, found := strings.Cut(name, "_"); found {
		return strings.TrimSpace(before)
	}
	return ""
}

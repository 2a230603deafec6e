// Package recommend builds exploratory song orderings: the weighted daily mix
// and a full shuffle.
package recommend

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"

	"legato/internal/clock"
	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

// Store is the slice of the catalog store the sampler reads.
type Store interface {
	SongsWithPlayCounts(ctx context.Context) ([]models.WeightedSong, error)
	ShuffledSongs(ctx context.Context) ([]models.Song, error)
}

// Options tune the sampler.
type Options struct {
	// SeedByDay makes the daily mix repeatable for a calendar day until the
	// weights change. When false every call draws fresh randomness.
	SeedByDay bool
}

// Sampler produces daily mixes and shuffles.
type Sampler struct {
	store     Store
	logger    *logrus.Logger
	clock     clock.Clock
	seedByDay bool
}

// NewSampler creates a sampler over store.
func NewSampler(store Store, logger *logrus.Logger, clk clock.Clock, opts Options) *Sampler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Sampler{
		store:     store,
		logger:    logger,
		clock:     clk,
		seedByDay: opts.SeedByDay,
	}
}

type candidate struct {
	song models.Song
	key  float64
	tie  float64
}

// DailyMix returns up to limit distinct songs, ordered by weight times a
// uniform random draw. The weight is playCount plus 3 for favorites, so
// heavily played favorites tend to lead while unplayed songs can still appear.
// Zero-weight songs follow the weighted ones in random order.
func (s *Sampler) DailyMix(ctx context.Context, limit int) []models.Song {
	if limit < 1 {
		return []models.Song{}
	}

	weighted, err := s.store.SongsWithPlayCounts(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load daily mix candidates")
		return []models.Song{}
	}

	rng := s.newRand(weighted)
	candidates := make([]candidate, 0, len(weighted))
	for _, w := range weighted {
		candidates = append(candidates, candidate{
			song: w.Song,
			key:  w.Weight() * rng.Float64(),
			tie:  rng.Float64(),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].key != candidates[j].key {
			return candidates[i].key > candidates[j].key
		}
		return candidates[i].tie > candidates[j].tie
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	mix := make([]models.Song, 0, len(candidates))
	for _, c := range candidates {
		mix = append(mix, c.song)
	}
	return mix
}

// newRand seeds from the local calendar day and the weight vector when day
// seeding is on. weighted must be in a stable order (the store sorts by id).
func (s *Sampler) newRand(weighted []models.WeightedSong) *rand.Rand {
	if !s.seedByDay {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	h := fnv.New64a()
	h.Write([]byte(s.clock.Now().Format("2006-01-02")))
	var buf [8]byte
	for _, w := range weighted {
		h.Write([]byte(w.ID))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(w.Weight()))
		h.Write(buf[:])
	}
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed>>1|1))
}

// ShuffleAll returns every song in a fresh random order.
func (s *Sampler) ShuffleAll(ctx context.Context) []models.Song {
	songs, err := s.store.ShuffledSongs(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to shuffle songs")
		return []models.Song{}
	}
	return songs
}

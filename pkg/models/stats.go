package models

// ListeningStats aggregates play events over a time window
type ListeningStats struct {
	TotalPlays int64   `json:"totalPlays"`
	TotalTime  float64 `json:"totalTime"` // sum of song durations, seconds
}

// SongStats is a per-song aggregate used for "most played" rankings
type SongStats struct {
	Song
	PlayCount int64   `json:"playCount"`
	TotalTime float64 `json:"totalTime"`
	Artist    string  `json:"artist,omitempty"` // empty when unknown
}

// WeightedSong is a daily mix candidate
type WeightedSong struct {
	Song
	PlayCount int64 `json:"playCount"`
}

// Weight is the daily mix sampling weight: favorites count three plays.
func (w WeightedSong) Weight() float64 {
	weight := float64(w.PlayCount)
	if w.IsFavorite {
		weight += 3
	}
	return weight
}

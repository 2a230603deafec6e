package models

import (
	"strings"
	"time"
)

// Song represents an indexed audio file in the catalog
type Song struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	URI              string  `json:"uri"`
	Duration         float64 `json:"duration"`         // in seconds
	ModificationTime int64   `json:"modificationTime"` // epoch milliseconds
	IsFavorite       bool    `json:"isFavorite"`
}

// Asset is a raw record produced by media enumeration, before it becomes a Song
type Asset struct {
	ID               string  `json:"id"`
	Filename         string  `json:"filename"`
	URI              string  `json:"uri"`
	Duration         float64 `json:"duration"`
	ModificationTime int64   `json:"modificationTime"`
}

// Song converts the asset to a catalog song. The filename becomes the title.
func (a Asset) Song() Song {
	return Song{
		ID:               a.ID,
		Title:            a.Filename,
		URI:              a.URI,
		Duration:         a.Duration,
		ModificationTime: a.ModificationTime,
	}
}

// SortKey selects the ordering of a song listing
type SortKey string

const (
	SortTitleAsc  SortKey = "title(A-Z)"
	SortTitleDesc SortKey = "title(Z-A)"
	SortDuration  SortKey = "duration"
	SortDateAdded SortKey = "Date added"
)

// SortKeys lists the supported listing orders.
var SortKeys = []SortKey{SortTitleAsc, SortTitleDesc, SortDuration, SortDateAdded}

// ParseSortKey maps a user supplied value to a SortKey. Anything unknown
// sorts by date added.
func ParseSortKey(s string) SortKey {
	for _, k := range SortKeys {
		if strings.EqualFold(s, string(k)) {
			return k
		}
	}
	return SortDateAdded
}

// Folder is a directory derived from song URIs
type Folder struct {
	Path      string `json:"path"` // full folder path, "" for songs at the root
	Name      string `json:"name"` // display name
	SongCount int    `json:"songCount"`
}

// PlayEvent records that a song started playing
type PlayEvent struct {
	ID       int64     `json:"id"`
	SongID   string    `json:"songId"`
	PlayedAt time.Time `json:"playedAt"`
}

// SearchHistoryEntry is one submitted search query
type SearchHistoryEntry struct {
	ID         int64     `json:"id"`
	Query      string    `json:"query"`
	SearchedAt time.Time `json:"searchedAt"`
}

// PermissionRecord persists the last known status of an OS permission
type PermissionRecord struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

const (
	PermissionMedia   = "media"
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
)

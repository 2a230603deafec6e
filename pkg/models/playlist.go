package models

import "time"

// Playlist represents a user-created playlist
type Playlist struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	SongCount int       `json:"songCount"`
}

// PlaylistSong represents the relationship between playlists and songs
type PlaylistSong struct {
	PlaylistID int64     `json:"playlistId"`
	SongID     string    `json:"songId"`
	AddedAt    time.Time `json:"addedAt"`
}

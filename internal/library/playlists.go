package library

import (
	"context"

	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

// CreatePlaylist creates a playlist named by the trimmed name. Blank, overlong
// and multi-line names are rejected.
func (s *Service) CreatePlaylist(ctx context.Context, name string) (int64, bool) {
	name, verr := validatePlaylistName(name)
	if verr != nil {
		s.logger.WithField("code", verr.Code).Debug("Rejected playlist name")
		return 0, false
	}

	id, err := s.store.CreatePlaylist(ctx, name, s.clock.Now())
	if err != nil {
		s.logger.WithError(err).WithField("name", name).Error("Failed to create playlist")
		return 0, false
	}
	s.logger.WithFields(logrus.Fields{"playlist_id": id, "name": name}).Info("Created playlist")
	return id, true
}

// ListPlaylists returns every playlist with its song count, newest first.
func (s *Service) ListPlaylists(ctx context.Context) []models.Playlist {
	playlists, err := s.store.GetAllPlaylists(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list playlists")
		return []models.Playlist{}
	}
	return playlists
}

// Playlist returns one playlist, or false if it does not exist.
func (s *Service) Playlist(ctx context.Context, playlistID int64) (models.Playlist, bool) {
	playlist, err := s.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		s.logger.WithError(err).WithField("playlist_id", playlistID).Warn("Failed to get playlist")
		return models.Playlist{}, false
	}
	return *playlist, true
}

// PlaylistSongs returns a playlist's songs, most recently added first.
func (s *Service) PlaylistSongs(ctx context.Context, playlistID int64) []models.Song {
	songs, err := s.store.GetPlaylistSongs(ctx, playlistID)
	if err != nil {
		s.logger.WithError(err).WithField("playlist_id", playlistID).Error("Failed to list playlist songs")
		return []models.Song{}
	}
	return songs
}

// AddSongToPlaylist adds a song. Adding a song that is already present
// succeeds without creating a second membership.
func (s *Service) AddSongToPlaylist(ctx context.Context, playlistID int64, songID string) bool {
	if _, err := s.store.AddSongToPlaylist(ctx, playlistID, songID, s.clock.Now()); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"playlist_id": playlistID,
			"song_id":     songID,
		}).Error("Failed to add song to playlist")
		return false
	}
	return true
}

// RemoveSongFromPlaylist removes a song. Removing an absent song succeeds.
func (s *Service) RemoveSongFromPlaylist(ctx context.Context, playlistID int64, songID string) bool {
	if _, err := s.store.RemoveSongFromPlaylist(ctx, playlistID, songID); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"playlist_id": playlistID,
			"song_id":     songID,
		}).Error("Failed to remove song from playlist")
		return false
	}
	return true
}

// IsSongInPlaylist reports membership. Errors read as "not a member".
func (s *Service) IsSongInPlaylist(ctx context.Context, playlistID int64, songID string) bool {
	in, err := s.store.IsSongInPlaylist(ctx, playlistID, songID)
	if err != nil {
		s.logger.WithError(err).WithField("playlist_id", playlistID).Warn("Failed to check playlist membership")
		return false
	}
	return in
}

// DeletePlaylist deletes a playlist and its memberships.
func (s *Service) DeletePlaylist(ctx context.Context, playlistID int64) bool {
	if err := s.store.DeletePlaylist(ctx, playlistID); err != nil {
		s.logger.WithError(err).WithField("playlist_id", playlistID).Error("Failed to delete playlist")
		return false
	}
	return true
}

// RenamePlaylist renames a playlist. Names are checked as in CreatePlaylist.
func (s *Service) RenamePlaylist(ctx context.Context, playlistID int64, name string) bool {
	name, verr := validatePlaylistName(name)
	if verr != nil {
		s.logger.WithField("code", verr.Code).Debug("Rejected playlist name")
		return false
	}
	if err := s.store.RenamePlaylist(ctx, playlistID, name); err != nil {
		s.logger.WithError(err).WithField("playlist_id", playlistID).Error("Failed to rename playlist")
		return false
	}
	return true
}

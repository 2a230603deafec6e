package library

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxPlaylistNameLength = 255
	maxSearchQueryLength  = 1000
)

// ValidationError describes why user input was refused.
type ValidationError struct {
	Field   string
	Message string
	Code    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// sanitizeInput drops NUL bytes and surrounding whitespace.
func sanitizeInput(input string) string {
	return strings.TrimSpace(strings.ReplaceAll(input, "\x00", ""))
}

// validatePlaylistName returns the cleaned name, or why it cannot be used.
func validatePlaylistName(name string) (string, *ValidationError) {
	name = sanitizeInput(name)
	if name == "" {
		return "", &ValidationError{
			Field:   "name",
			Message: "Playlist name is required",
			Code:    "MISSING_PLAYLIST_NAME",
		}
	}

	if utf8.RuneCountInString(name) > maxPlaylistNameLength {
		return "", &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("Playlist name too long (max %d characters)", maxPlaylistNameLength),
			Code:    "PLAYLIST_NAME_TOO_LONG",
		}
	}

	if strings.ContainsAny(name, "\n\r") {
		return "", &ValidationError{
			Field:   "name",
			Message: "Playlist name contains invalid characters",
			Code:    "INVALID_PLAYLIST_NAME_CHARACTERS",
		}
	}

	return name, nil
}

// validateSearchQuery returns the cleaned query. An empty result is not an
// error; callers treat it as "nothing to search".
func validateSearchQuery(query string) (string, *ValidationError) {
	query = sanitizeInput(query)
	if utf8.RuneCountInString(query) > maxSearchQueryLength {
		return "", &ValidationError{
			Field:   "search",
			Message: fmt.Sprintf("Search query too long (max %d characters)", maxSearchQueryLength),
			Code:    "SEARCH_QUERY_TOO_LONG",
		}
	}
	return query, nil
}

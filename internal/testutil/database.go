package testutil

import (
	"context"
	"io"
	"testing"

	"legato/internal/config"
	"legato/internal/database"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger that discards output.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// NewTestDatabase opens an in-memory catalog with the schema applied and
// closes it when the test ends.
func NewTestDatabase(t *testing.T) *database.Database {
	t.Helper()

	db, err := database.NewDatabase(context.Background(), config.DatabaseConfig{
		Path:   ":memory:",
		Driver: "sqlite3",
	}, NewLogger())
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

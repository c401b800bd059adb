package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repoMigrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")
	// cmd/migrate -> repo root
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "db", "migrations")
}

func TestCollectMigrations_ParsesMigrationsDir(t *testing.T) {
	migrations, err := goose.CollectMigrations(repoMigrationsDir(t), 0, goose.MaxVersion)
	require.NoError(t, err)
	assert.Len(t, migrations, 6)
}

func TestSQLMigrations_HaveGooseDirectives(t *testing.T) {
	dir := repoMigrationsDir(t)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		assert.Contains(t, string(b), "-- +goose Up", e.Name())
		assert.Contains(t, string(b), "-- +goose Down", e.Name())
	}
}

func TestCirculationMigrations_GuardInvariants(t *testing.T) {
	dir := repoMigrationsDir(t)
	read := func(name string) string {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return string(b)
	}

	assert.Contains(t, read("00002_create_books.sql"), "available_quantity <= quantity")
	assert.Contains(t, read("00003_create_reservations.sql"), "WHERE status = 'active'")
	assert.Contains(t, read("00004_create_loans.sql"), "WHERE status IN ('active', 'overdue')")
}

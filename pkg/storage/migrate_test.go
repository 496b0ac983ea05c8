package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLegacyFile writes a file in the old naming scheme with the given row
// spacing, using the legacy timestamp layout.
func writeLegacyFile(t *testing.T, dir, name string, rows int, step time.Duration) {
	t.Helper()
	var b strings.Builder
	b.WriteString("Time,Open,High,Low,Close,Volume\n")
	ts := time.Date(2020, time.March, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%s,10,11,9,10.5,100\n", ts.Format(time.RFC3339))
		ts = ts.Add(step)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644))
}

func TestMigrateLegacy(t *testing.T) {
	dir := t.TempDir()
	writeLegacyFile(t, dir, "GOLD_20200600.csv", 40, 24*time.Hour)
	writeLegacyFile(t, dir, "AUD_20210300.csv", 40, time.Hour)
	writeLegacyFile(t, dir, "WHEAT_20200900.csv", 5, 24*time.Hour) // too short to classify

	store, err := NewStore(dir)
	require.NoError(t, err)

	results, err := store.MigrateLegacy(false)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byFrom := make(map[string]MigrateResult)
	for _, r := range results {
		byFrom[r.From] = r
	}
	assert.Equal(t, "Day_GOLD_20200600.csv", byFrom["GOLD_20200600.csv"].To)
	assert.Equal(t, "Hour_AUD_20210300.csv", byFrom["AUD_20210300.csv"].To)
	assert.Empty(t, byFrom["WHEAT_20200900.csv"].To)
	assert.NotEmpty(t, byFrom["WHEAT_20200900.csv"].Reason)

	// Renames actually happened
	assert.FileExists(t, filepath.Join(dir, "Day_GOLD_20200600.csv"))
	assert.FileExists(t, filepath.Join(dir, "Hour_AUD_20210300.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "GOLD_20200600.csv"))
	assert.FileExists(t, filepath.Join(dir, "WHEAT_20200900.csv"))
}

func TestMigrateLegacyUnderscoreCodes(t *testing.T) {
	dir := t.TempDir()
	writeLegacyFile(t, dir, "GOLD_20200600.csv", 60, 24*time.Hour)
	writeLegacyFile(t, dir, "CRUDE_W_20200600.csv", 60, 24*time.Hour)
	writeLegacyFile(t, dir, "GAS_US_20210300.csv", 60, time.Hour)

	store, err := NewStore(dir)
	require.NoError(t, err)

	results, err := store.MigrateLegacy(false)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byFrom := make(map[string]MigrateResult)
	for _, r := range results {
		byFrom[r.From] = r
	}
	assert.Equal(t, "Day_CRUDE_W_20200600.csv", byFrom["CRUDE_W_20200600.csv"].To)
	assert.Equal(t, "Hour_GAS_US_20210300.csv", byFrom["GAS_US_20210300.csv"].To)
	assert.FileExists(t, filepath.Join(dir, "Day_CRUDE_W_20200600.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "CRUDE_W_20200600.csv"))
}

func TestMigrateLegacyDryRun(t *testing.T) {
	dir := t.TempDir()
	writeLegacyFile(t, dir, "GOLD_20200600.csv", 40, 24*time.Hour)

	store, err := NewStore(dir)
	require.NoError(t, err)

	results, err := store.MigrateLegacy(true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Day_GOLD_20200600.csv", results[0].To)

	// Nothing moved
	assert.FileExists(t, filepath.Join(dir, "GOLD_20200600.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "Day_GOLD_20200600.csv"))
}

func TestMigrateLegacyIgnoresCurrentNames(t *testing.T) {
	dir := t.TempDir()
	writeLegacyFile(t, dir, "Day_GOLD_20200600.csv", 40, 24*time.Hour)

	store, err := NewStore(dir)
	require.NoError(t, err)

	results, err := store.MigrateLegacy(false)
	require.NoError(t, err)
	assert.Empty(t, results)
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "integrations.yaml"), []byte(body), 0o644))
	return dir
}

const newYorkConfig = `
location:
  timezone: America/New_York
  latitude: 40.7128
  longitude: -74.0060
`

func TestParseAt(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	got, err := parseAt("2025-06-01 13:22", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 6, 1, 13, 22, 0, 0, loc)))

	got, err = parseAt("2025-06-01T11:22:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 6, 1, 13, 22, 0, 0, loc)))

	_, err = parseAt("yesterday", loc)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version: dev")
}

func TestNextRefresh_OMIE(t *testing.T) {
	out, err := execute(t, "next-refresh", "omie", "--at", "2025-06-01T13:22:00+02:00")
	require.NoError(t, err)
	assert.Contains(t, out, "boundary: 2025-06-01T13:30:00+02:00")
	assert.Contains(t, out, "refresh:  2025-06-01T13:30:01+02:00 (in 8m1s)")

	// Past the cutoff the quarter hour wins again
	out, err = execute(t, "next-refresh", "omie", "--at", "2025-06-01T13:31:00+02:00")
	require.NoError(t, err)
	assert.Contains(t, out, "boundary: 2025-06-01T13:45:00+02:00")
}

func TestNextRefresh_Errors(t *testing.T) {
	_, err := execute(t, "next-refresh", "garmin_connect")
	assert.Error(t, err)

	_, err = execute(t, "next-refresh")
	assert.Error(t, err)
}

func TestHebrewDate(t *testing.T) {
	dir := writeConfig(t, newYorkConfig)

	// Evening of 2 October 2024 is after sunset on Erev Rosh Hashana
	out, err := execute(t, "hebrew-date", "--config-dir", dir, "--at", "2024-10-02 21:00")
	require.NoError(t, err)
	assert.Contains(t, out, "1 Tishrei 5785")
	assert.Contains(t, out, "issur melacha:      true")

	out, err = execute(t, "hebrew-date", "--config-dir", dir, "--at", "2024-10-02 12:00")
	require.NoError(t, err)
	assert.Contains(t, out, "29 Elul 5784")
	assert.Contains(t, out, "issur melacha:      false")
}

func TestHebrewDate_MissingConfig(t *testing.T) {
	_, err := execute(t, "hebrew-date", "--config-dir", t.TempDir())
	assert.Error(t, err)
}

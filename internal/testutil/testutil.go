// Package testutil provides shared test helpers for creating config files and journal fixtures.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/dreamjournal/internal/datasync"
	"github.com/at-ishikawa/dreamjournal/internal/dream"
)

// ConfigOption configures optional fields when creating a config fixture.
type ConfigOption func(*testConfig)

type testConfig struct {
	logLevel string
	port     int
}

// WithLogLevel sets logging.level in the generated config.
func WithLogLevel(level string) ConfigOption {
	return func(cfg *testConfig) {
		cfg.logLevel = level
	}
}

// WithPort sets server.port in the generated config.
func WithPort(port int) ConfigOption {
	return func(cfg *testConfig) {
		cfg.port = port
	}
}

// SetupTestConfig creates a config file whose database lives in tmpDir.
// Returns the path to the generated config file and to the database.
func SetupTestConfig(t *testing.T, tmpDir string, opts ...ConfigOption) (cfgPath string, dbPath string) {
	t.Helper()

	cfg := testConfig{
		logLevel: "debug",
		port:     8000,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	dbPath = filepath.Join(tmpDir, "dream.db")
	configContent := fmt.Sprintf(`server:
  port: %d
database:
  path: %s
logging:
  level: %s
  format: console
`, cfg.port, dbPath, cfg.logLevel)

	cfgPath = filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	return cfgPath, dbPath
}

// NewRecord builds a journal record dated in UTC with the given emotions.
func NewRecord(name string, date time.Time, emotions ...string) dream.Record {
	return dream.Record{
		Dream: dream.Dream{
			Name:        name,
			Description: name + " dream",
			DreamDate:   dream.NewDate(date.Year(), date.Month(), date.Day()),
		},
		Emotions: emotions,
	}
}

// CreateJournalFile writes records as a YAML journal into dir and returns its path.
func CreateJournalFile(t *testing.T, dir, name string, records ...dream.Record) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, f.Close())
	}()
	require.NoError(t, datasync.WriteJournal(f, &datasync.Journal{Dreams: records}))
	return path
}

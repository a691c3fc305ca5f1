package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		verbose bool
		want    zerolog.Level
	}{
		{"", false, zerolog.InfoLevel},
		{"debug", false, zerolog.DebugLevel},
		{"WARN", false, zerolog.WarnLevel},
		{"warning", false, zerolog.WarnLevel},
		{" error ", false, zerolog.ErrorLevel},
		{"bogus", false, zerolog.InfoLevel},
		{"error", true, zerolog.DebugLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in, tt.verbose), "level %q verbose=%v", tt.in, tt.verbose)
	}
}

func TestInit_File(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "logs", "run.log")
	closer, err := Init(Options{Level: "info", File: path})
	require.NoError(t, err)

	log.Info().Str("session", "session_1_abc").Msg("started")
	log.Debug().Msg("hidden")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session":"session_1_abc"`)
	assert.Contains(t, string(data), `"message":"started"`)
	assert.NotContains(t, string(data), "hidden")
}

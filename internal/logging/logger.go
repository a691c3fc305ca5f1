package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"scrapewatch/internal/dirs"
	"scrapewatch/internal/util"
)

// DefaultFileName is the log file used when logs must stay off the terminal.
const DefaultFileName = "scrapewatch.log"

// Options selects the level and sink of the global logger.
type Options struct {
	Level   string // debug, info, warn, error; default info
	Verbose bool   // forces debug
	File    string // write JSON lines here instead of the console
	ToFile  bool   // use File, or the state dir default when File is empty
}

// Init configures the global zerolog logger. The returned closer releases
// the log file, if one was opened, and is always safe to call.
func Init(opts Options) (io.Closer, error) {
	zerolog.SetGlobalLevel(ParseLevel(opts.Level, opts.Verbose))

	if !opts.ToFile && opts.File == "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return nopCloser{}, nil
	}

	path := opts.File
	if path == "" {
		state, err := dirs.StateDir()
		if err != nil {
			return nopCloser{}, fmt.Errorf("resolve state dir: %w", err)
		}
		path = filepath.Join(state, DefaultFileName)
	}
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nopCloser{}, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nopCloser{}, fmt.Errorf("open log file: %w", err)
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return f, nil
}

// ParseLevel maps a level name to a zerolog level. Unknown names are info.
func ParseLevel(level string, verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

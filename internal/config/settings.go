package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"scrapewatch/internal/dirs"
	"scrapewatch/internal/util"
)

// Settings is the effective configuration of one invocation.
type Settings struct {
	APIURL         string
	MaxPages       int
	Out            string
	RequestTimeout time.Duration
	IdleTimeout    time.Duration // 0 disables
	DemoStep       time.Duration
	Retries        int
	LogLevel       string
	LogFile        string
	Verbose        bool
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		APIURL:         "http://localhost:5001",
		MaxPages:       5,
		Out:            "equipment-trader-listings.csv",
		RequestTimeout: 30 * time.Second,
		IdleTimeout:    0,
		DemoStep:       time.Second,
		Retries:        1,
		LogLevel:       "info",
	}
}

// Validate checks ranges and URL shape.
func (s Settings) Validate() error {
	u, err := url.Parse(s.APIURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid api_url %q: must be an http(s) URL", s.APIURL)
	}
	if s.MaxPages < 1 || s.MaxPages > 50 {
		return fmt.Errorf("invalid max_pages %d: must be between 1 and 50", s.MaxPages)
	}
	if s.RequestTimeout < 0 || s.IdleTimeout < 0 || s.DemoStep < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if s.Retries < 0 || s.Retries > 10 {
		return fmt.Errorf("invalid retries %d: must be between 0 and 10", s.Retries)
	}
	return nil
}

// fileView is the TOML shape of Settings. Durations are written as
// strings such as "30s" so the file reads back through Viper unchanged.
type fileView struct {
	APIURL         string `toml:"api_url"`
	MaxPages       int    `toml:"max_pages"`
	Out            string `toml:"out"`
	RequestTimeout string `toml:"request_timeout"`
	IdleTimeout    string `toml:"idle_timeout"`
	DemoStep       string `toml:"demo_step"`
	Retries        int    `toml:"retries"`
	LogLevel       string `toml:"log_level"`
	LogFile        string `toml:"log_file,omitempty"`
	Verbose        bool   `toml:"verbose"`
}

// TOML renders s as a config.toml document.
func (s Settings) TOML() ([]byte, error) {
	data, err := toml.Marshal(fileView{
		APIURL:         s.APIURL,
		MaxPages:       s.MaxPages,
		Out:            s.Out,
		RequestTimeout: s.RequestTimeout.String(),
		IdleTimeout:    s.IdleTimeout.String(),
		DemoStep:       s.DemoStep.String(),
		Retries:        s.Retries,
		LogLevel:       s.LogLevel,
		LogFile:        s.LogFile,
		Verbose:        s.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// ParseTOML reads a config.toml document written by TOML.
func ParseTOML(data []byte) (Settings, error) {
	var v fileView
	if err := toml.Unmarshal(data, &v); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config: %w", err)
	}
	s := Settings{
		APIURL:   v.APIURL,
		MaxPages: v.MaxPages,
		Out:      v.Out,
		Retries:  v.Retries,
		LogLevel: v.LogLevel,
		LogFile:  v.LogFile,
		Verbose:  v.Verbose,
	}
	var err error
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{v.RequestTimeout, &s.RequestTimeout},
		{v.IdleTimeout, &s.IdleTimeout},
		{v.DemoStep, &s.DemoStep},
	} {
		if d.raw == "" {
			continue
		}
		if *d.dst, err = time.ParseDuration(d.raw); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return s, nil
}

// DefaultPath is config.toml inside the per-OS config directory.
func DefaultPath() (string, error) {
	dir, err := dirs.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Save writes s as TOML to path, creating parent directories.
func Save(s Settings, path string) error {
	data, err := s.TOML()
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

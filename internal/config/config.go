package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"scrapewatch/internal/dirs"
)

// Keys recognised in config files and SCRAPEWATCH_* environment variables.
const (
	KeyAPIURL         = "api_url"
	KeyMaxPages       = "max_pages"
	KeyOut            = "out"
	KeyRequestTimeout = "request_timeout"
	KeyIdleTimeout    = "idle_timeout"
	KeyDemoStep       = "demo_step"
	KeyRetries        = "retries"
	KeyLogLevel       = "log_level"
	KeyLogFile        = "log_file"
	KeyVerbose        = "verbose"
)

const envPrefix = "SCRAPEWATCH"

// SetDefaults registers default values for every key.
func SetDefaults() {
	d := Defaults()
	viper.SetDefault(KeyAPIURL, d.APIURL)
	viper.SetDefault(KeyMaxPages, d.MaxPages)
	viper.SetDefault(KeyOut, d.Out)
	viper.SetDefault(KeyRequestTimeout, d.RequestTimeout)
	viper.SetDefault(KeyIdleTimeout, d.IdleTimeout)
	viper.SetDefault(KeyDemoStep, d.DemoStep)
	viper.SetDefault(KeyRetries, d.Retries)
	viper.SetDefault(KeyLogLevel, d.LogLevel)
	viper.SetDefault(KeyLogFile, d.LogFile)
	viper.SetDefault(KeyVerbose, d.Verbose)
}

// Init wires Viper with config paths, env, defaults, and flag bindings.
// It is non-fatal: a missing config file is not an error, a malformed one is.
func Init(root *cobra.Command) error {
	_ = dirs.EnsureAll()

	if cfgDir, err := dirs.ConfigDir(); err == nil {
		viper.AddConfigPath(cfgDir)
	}
	viper.SetConfigName("config") // config.{yaml|yml|json|toml}

	// Environment variables: SCRAPEWATCH_*
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	SetDefaults()

	pf := root.PersistentFlags()
	_ = viper.BindPFlag(KeyAPIURL, pf.Lookup("api-url"))
	_ = viper.BindPFlag(KeyVerbose, pf.Lookup("verbose"))
	_ = viper.BindPFlag(KeyLogLevel, pf.Lookup("log-level"))
	_ = viper.BindPFlag(KeyLogFile, pf.Lookup("log-file"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// BindRunFlags binds the flags of the command being executed. Called from
// PreRunE so only the active command's flags win over config and env.
func BindRunFlags(fs *pflag.FlagSet) {
	if f := fs.Lookup("max-pages"); f != nil {
		_ = viper.BindPFlag(KeyMaxPages, f)
	}
	if f := fs.Lookup("out"); f != nil {
		_ = viper.BindPFlag(KeyOut, f)
	}
}

// Load returns the merged settings: flag > env > config file > default.
func Load() Settings {
	return Settings{
		APIURL:         viper.GetString(KeyAPIURL),
		MaxPages:       viper.GetInt(KeyMaxPages),
		Out:            viper.GetString(KeyOut),
		RequestTimeout: viper.GetDuration(KeyRequestTimeout),
		IdleTimeout:    viper.GetDuration(KeyIdleTimeout),
		DemoStep:       viper.GetDuration(KeyDemoStep),
		Retries:        viper.GetInt(KeyRetries),
		LogLevel:       viper.GetString(KeyLogLevel),
		LogFile:        viper.GetString(KeyLogFile),
		Verbose:        viper.GetBool(KeyVerbose),
	}
}

// UsedFile returns the config file Viper read, or "" when none was found.
func UsedFile() string {
	return viper.ConfigFileUsed()
}

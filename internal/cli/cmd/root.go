package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"scrapewatch/internal/config"
	"scrapewatch/internal/launcher"
	"scrapewatch/internal/logging"
)

const (
	ExitOK                 = 0
	ExitCLIError           = 1
	ExitBackendUnavailable = 2
	ExitJobFailed          = 3
	ExitExportFailed       = 4
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// logCloser releases the log file opened by the pre-run hook.
var logCloser io.Closer

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scrapewatch [url]",
		Short: "Launch an Equipment Trader scrape and watch it live",
		Long: "scrapewatch starts a scraping job on the job API, follows its progress stream, " +
			"and exports the collected listings as CSV. When the API is unreachable it replays demo data.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: preRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd, args, runMode{})
		},
	}

	// Persistent flags available to all subcommands
	root.PersistentFlags().String("api-url", "", "Job API root (default http://localhost:5001)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Debug logging")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("log-file", "", "Write logs to this file instead of stderr")

	// Also bind run flags on root, so `scrapewatch <url>` works.
	bindRunFlags(root.Flags())

	// Subcommands
	root.AddCommand(newRunCmd())
	root.AddCommand(newTuiCmd())
	root.AddCommand(newDemoCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newCompletionCmd())

	return root
}

func bindRunFlags(fs *pflag.FlagSet) {
	d := config.Defaults()
	fs.Int("max-pages", d.MaxPages, "Result pages to walk (1-50)")
	fs.String("out", d.Out, "CSV file written when the job ends; empty disables export")
	fs.Bool("no-ui", false, "Disable TUI; use plain textual output")
}

// preRun loads configuration and sets up logging for every command.
func preRun(cmd *cobra.Command, _ []string) error {
	if err := config.Init(cmd.Root()); err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	config.BindRunFlags(cmd.Flags())

	s := config.Load()
	closer, err := logging.Init(logging.Options{
		Level:   s.LogLevel,
		Verbose: s.Verbose,
		File:    s.LogFile,
		ToFile:  wantsTUI(cmd),
	})
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	logCloser = closer
	return nil
}

// wantsTUI reports whether cmd will take over the terminal.
func wantsTUI(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "tui":
		return true
	case "plan", "doctor", "config", "completion":
		return false
	}
	noUI, _ := cmd.Flags().GetBool("no-ui")
	return !noUI && isTerminal()
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	if logCloser != nil {
		_ = logCloser.Close()
	}
	return err
}

// exitFor maps a launcher error to an exit code.
func exitFor(err error) *ExitError {
	if launcher.IsKind(err, launcher.KindValidation) {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	return &ExitError{Code: ExitJobFailed, Err: err}
}

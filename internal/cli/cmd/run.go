package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"scrapewatch/internal/backend"
	"scrapewatch/internal/config"
	"scrapewatch/internal/jobstate"
	"scrapewatch/internal/launcher"
	"scrapewatch/internal/model"
	"scrapewatch/internal/stream"
	"scrapewatch/internal/ui"
	"scrapewatch/internal/util/format"
)

// retryWait is the pause between health check attempts.
const retryWait = 200 * time.Millisecond

type runMode struct {
	ForceTUI bool
	Demo     bool
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "run [url]",
		Short:         "Launch a scrape job and watch its progress",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd, args, runMode{})
		},
	}
	bindRunFlags(cmd.Flags())
	return cmd
}

func assembleRunInputs(cmd *cobra.Command, args []string, mode runMode) (model.CLIOptions, error) {
	s := config.Load()
	if err := s.Validate(); err != nil {
		return model.CLIOptions{}, err
	}
	target := model.DefaultTargetURL
	if len(args) > 0 {
		target = strings.TrimSpace(args[0])
	}
	noUI, _ := cmd.Flags().GetBool("no-ui")

	return model.CLIOptions{
		URL:            target,
		MaxPages:       launcher.ClampMaxPages(s.MaxPages),
		Out:            s.Out,
		APIURL:         s.APIURL,
		RequestTimeout: s.RequestTimeout,
		IdleTimeout:    s.IdleTimeout,
		DemoStep:       s.DemoStep,
		Retries:        s.Retries,
		Demo:           mode.Demo,
		NoUI:           noUI,
		Verbose:        s.Verbose,
	}, nil
}

// newLauncher wires the production backend, stream, and demo source.
func newLauncher(opts model.CLIOptions, reporters ...launcher.Reporter) *launcher.Launcher {
	api := backend.New(opts.APIURL,
		backend.WithTimeout(opts.RequestTimeout),
		backend.WithRetry(opts.Retries, retryWait))
	lopts := []launcher.Option{
		launcher.WithBackend(api),
		launcher.WithStreamFactory(func(baseURL string) launcher.Stream {
			return stream.New(baseURL, stream.WithIdleTimeout(opts.IdleTimeout))
		}),
		launcher.WithDemoStep(opts.DemoStep),
	}
	for _, r := range reporters {
		lopts = append(lopts, launcher.WithReporter(r))
	}
	return launcher.New(lopts...)
}

func runExecute(cmd *cobra.Command, args []string, mode runMode) error {
	opts, err := assembleRunInputs(cmd, args, mode)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}

	// TUI path (forced or auto if TTY and not disabled)
	if mode.ForceTUI || (!opts.NoUI && isTerminal()) {
		return runTUI(cmd.Context(), cmd.OutOrStdout(), opts)
	}
	return runPlain(cmd.Context(), cmd.OutOrStdout(), opts)
}

func runTUI(ctx context.Context, out io.Writer, opts model.CLIOptions) error {
	res, err := ui.Run(ctx, opts, func(r launcher.Reporter) ui.Launcher {
		return newLauncher(opts, r)
	})
	if err != nil {
		if ctx.Err() != nil {
			return &ExitError{Code: ExitCLIError, Err: errors.New("interrupted")}
		}
		return &ExitError{Code: ExitCLIError, Err: err}
	}

	if res.StartErr != nil {
		return exitFor(res.StartErr)
	}
	if res.ExportPath != "" {
		fmt.Fprintf(out, "Saved: %s (%s)\n", res.ExportPath, format.HumanizeBytes(res.ExportBytes))
	}
	if res.ExportErr != nil {
		return &ExitError{Code: ExitExportFailed, Err: fmt.Errorf("export failed: %w", res.ExportErr)}
	}
	if res.Finished && res.State.Outcome == jobstate.OutcomeFailed {
		return &ExitError{Code: ExitJobFailed, Err: errors.New(res.State.Failure)}
	}
	return nil
}

func runPlain(ctx context.Context, out io.Writer, opts model.CLIOptions) error {
	l := newLauncher(opts, launcher.NewPlainReporter(out))
	defer l.Close()

	var (
		sess launcher.Session
		err  error
	)
	if opts.Demo {
		sess, err = l.StartDemo(ctx, opts.URL)
	} else {
		sess, err = l.Start(ctx, opts.URL, opts.MaxPages)
	}
	if err != nil {
		return exitFor(err)
	}
	log.Debug().Stringer("session", sess).Msg("session started")

	_, waitErr := l.Wait(ctx)
	if waitErr != nil && ctx.Err() != nil {
		return &ExitError{Code: ExitCLIError, Err: errors.New("interrupted")}
	}

	// Partial results are still exported when the job fails.
	if opts.Out != "" {
		path, n, xerr := l.Export(opts.Out)
		switch {
		case errors.Is(xerr, launcher.ErrNoRecords):
			fmt.Fprintln(out, "No listings to export")
		case xerr != nil:
			return &ExitError{Code: ExitExportFailed, Err: fmt.Errorf("export failed: %w", xerr)}
		default:
			fmt.Fprintf(out, "Saved: %s (%s)\n", path, format.HumanizeBytes(n))
		}
	}

	if waitErr != nil {
		return exitFor(waitErr)
	}
	return nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

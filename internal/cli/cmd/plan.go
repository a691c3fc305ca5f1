package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"scrapewatch/internal/backend"
	"scrapewatch/internal/session"
	"scrapewatch/internal/util"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plan [url]",
		Short:         "Show the requests a run would issue, without network access",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := assembleRunInputs(cmd, args, runMode{})
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			target, err := util.NormalizeTargetURL(opts.URL)
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("invalid URL %q: %w", opts.URL, err)}
			}

			api := backend.New(opts.APIURL)
			id := session.NewID()
			body, err := json.Marshal(backend.StartRequest{URL: target, SessionID: id, MaxPages: opts.MaxPages})
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Plan:")
			fmt.Fprintf(out, "- Target URL:     %s\n", target)
			fmt.Fprintf(out, "- Max pages:      %d\n", opts.MaxPages)
			fmt.Fprintf(out, "- Session:        %s\n", id)
			fmt.Fprintf(out, "- Health check:   GET %s\n", api.HealthURL())
			fmt.Fprintf(out, "- Progress:       GET %s\n", api.ProgressURL(id))
			fmt.Fprintf(out, "- Start:          POST %s %s\n", api.StartURL(), body)
			if opts.Out != "" {
				fmt.Fprintf(out, "- Export:         %s\n", opts.Out)
			} else {
				fmt.Fprintln(out, "- Export:         disabled")
			}
			fmt.Fprintln(out, "- Fallback:       demo data when the health check fails")
			return nil
		},
	}
	bindRunFlags(cmd.Flags())
	if f := cmd.Flags().Lookup("no-ui"); f != nil {
		f.Hidden = true
	}
	return cmd
}

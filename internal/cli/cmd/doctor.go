package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"scrapewatch/internal/backend"
	"scrapewatch/internal/config"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "doctor",
		Short:         "Check that the job API is reachable",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := config.Load()
			if err := s.Validate(); err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			api := backend.New(s.APIURL,
				backend.WithTimeout(s.RequestTimeout),
				backend.WithRetry(s.Retries, retryWait))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API:       %s\n", api.BaseURL())
			if f := config.UsedFile(); f != "" {
				fmt.Fprintf(out, "Config:    %s\n", f)
			}
			if err := api.Health(cmd.Context()); err != nil {
				if cmd.Context().Err() != nil {
					return &ExitError{Code: ExitCLIError, Err: err}
				}
				fmt.Fprintf(out, "Health:    unavailable (%s)\n", backend.Reason(err))
				return &ExitError{Code: ExitBackendUnavailable, Err: err}
			}
			fmt.Fprintln(out, "Health:    ok")
			return nil
		},
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"scrapewatch/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "config",
		Short:         "Print the effective settings as TOML",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := config.Load()
			if err := s.Validate(); err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			out := cmd.OutOrStdout()

			if write, _ := cmd.Flags().GetBool("write"); write {
				path, err := config.DefaultPath()
				if err != nil {
					return &ExitError{Code: ExitCLIError, Err: err}
				}
				if err := config.Save(s, path); err != nil {
					return &ExitError{Code: ExitCLIError, Err: err}
				}
				fmt.Fprintf(out, "Wrote %s\n", path)
				return nil
			}

			data, err := s.TOML()
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			if f := config.UsedFile(); f != "" {
				fmt.Fprintf(out, "# from %s\n", f)
			}
			_, err = out.Write(data)
			return err
		},
	}
	cmd.Flags().Bool("write", false, "Save the effective settings to the default config file")
	return cmd
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/playht/playht-go-sdk/pkg/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Check a configuration file without calling the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			//nolint:gosec // G304: path comes from the command line
			doc, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			found, err := config.Violations(doc)
			if err != nil {
				return err
			}
			for _, v := range found {
				fmt.Fprintln(cmd.ErrOrStderr(), "  -", v.String())
			}
			if len(found) > 0 {
				return fmt.Errorf("%s: %d schema violation(s)", args[0], len(found))
			}
			if _, err := config.Load(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
}

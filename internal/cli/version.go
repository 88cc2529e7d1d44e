package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fmueller/chunkscribe/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		// Printing the version never depends on the environment being valid.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "chunkscribe v%s\n", info)
			if info.GoVersion != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "built with %s\n", info.GoVersion)
			}
			return nil
		},
	}
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCmd reports the build version.
func NewVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blockingd %s\n", version)
		},
	}
}

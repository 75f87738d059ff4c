package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sidkik/sandboxsync/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of sandboxsync.",
		Long: "Print the version of sandboxsync as a git commit hash, and the\n" +
			"version of the protocol it speaks to other contexts.",
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("local version:    %s\n", version.Version)
			fmt.Printf("protocol version: %s\n", version.ProtocolVersion)
		},
	}
}

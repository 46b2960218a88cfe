package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdfkb/pdfkb-search/internal/storage"
)

func newVersionCmd(rt *globals) *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print version and build information",
		Args:              cobra.NoArgs,
		PersistentPreRunE: skipLoad,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pdfkb %s\n", rt.build.Version)
			fmt.Fprintf(out, "Build Time: %s\n", rt.build.BuildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
			fmt.Fprintf(out, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
		},
	}
}

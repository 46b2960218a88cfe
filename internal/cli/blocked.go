package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdfkb/pdfkb-search/internal/app"
)

func newBlockedCmd(rt *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "blocked",
		Short: "List deleted files that ingestion skips",
		Long: `List deleted files that ingestion skips.

Deleting a document whose content came from a file keeps that file out of
directory runs and the watcher until its content changes or it is passed
to "pdfkb reprocess".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd, func(a *app.App) error {
				sources, err := a.BlockedSources(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), sources)
				}
				if len(sources) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No blocked files.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "PATH\tSIZE\tDELETED")
				for _, b := range sources {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", b.SourcePath, b.SizeBytes, b.BlockedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the blocked files as JSON")
	return cmd
}

func newReprocessCmd(rt *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess [path]...",
		Short: "Unblock deleted files and index them again",
		Long: `Unblock deleted files and index them again.

With no paths every blocked file is unblocked. Files that no longer exist
are only unblocked.`,
		Example: `  pdfkb reprocess ~/papers/draft.pdf
  pdfkb reprocess`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := make([]string, 0, len(args))
			for _, p := range args {
				abs, err := filepath.Abs(p)
				if err != nil {
					return err
				}
				paths = append(paths, abs)
			}
			return rt.withApp(cmd, func(a *app.App) error {
				results, err := a.ReprocessDeleted(cmd.Context(), paths)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintln(out, "No blocked files.")
					return nil
				}
				for _, r := range results {
					switch {
					case r.Error != "":
						fmt.Fprintf(out, "%s: %s (%s)\n", r.SourcePath, r.Status, r.Error)
					case r.DocumentID != "":
						fmt.Fprintf(out, "%s: %s, %d chunks (%s)\n", r.SourcePath, r.Status, r.Chunks, r.DocumentID)
					default:
						fmt.Fprintf(out, "%s: %s\n", r.SourcePath, r.Status)
					}
				}
				return nil
			})
		},
	}
}

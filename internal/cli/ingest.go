package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdfkb/pdfkb-search/internal/app"
	"github.com/pdfkb/pdfkb-search/internal/indexer"
)

func newIngestCmd(rt *globals) *cobra.Command {
	var (
		name  string
		title string
	)

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Add files or directories to the knowledge base",
		Long: `Add files or directories to the knowledge base.

Files are indexed once and skipped while their content is unchanged.
Directories are walked recursively and documents whose files are gone are
removed. A path of "-" reads the content from stdin.`,
		Example: `  pdfkb ingest ~/papers
  pdfkb ingest notes.md report.html
  pbpaste | pdfkb ingest --name clipboard.md -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd, func(a *app.App) error {
				out := cmd.OutOrStdout()
				for _, path := range args {
					if path == "-" {
						if err := ingestStdin(cmd, a, name, title); err != nil {
							return err
						}
						continue
					}
					if err := ingestPath(cmd, a, path); err != nil {
						return err
					}
				}
				fmt.Fprintln(out, "Done.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "stdin.txt", "filename for content read from stdin; its extension selects the format")
	cmd.Flags().StringVar(&title, "title", "", "title for content read from stdin")
	return cmd
}

func ingestPath(cmd *cobra.Command, a *app.App, path string) error {
	out := cmd.OutOrStdout()
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}

	if info.IsDir() {
		stats, err := a.IndexDirectory(cmd.Context(), abs)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d indexed, %d unchanged, %d blocked, %d failed, %d removed, %d chunks (%s)\n",
			abs, stats.FilesIndexed, stats.FilesSkipped-stats.FilesBlocked, stats.FilesBlocked, stats.FilesFailed,
			stats.FilesRemoved, stats.ChunksCreated, stats.Duration.Round(time.Millisecond))
		for _, msg := range stats.ErrorMessages {
			fmt.Fprintf(out, "  error: %s\n", msg)
		}
		return nil
	}

	res, err := a.IngestFile(cmd.Context(), abs)
	if errors.Is(err, indexer.ErrSourceBlocked) {
		fmt.Fprintf(out, "%s: deleted earlier, run \"pdfkb reprocess %s\" to index it again\n", abs, abs)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", abs, err)
	}
	printIngest(out, abs, res)
	return nil
}

func ingestStdin(cmd *cobra.Command, a *app.App, name, title string) error {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	res, err := a.IngestText(cmd.Context(), indexer.IngestRequest{
		Filename: name,
		Content:  string(data),
		Title:    title,
	})
	if err != nil {
		return err
	}
	printIngest(cmd.OutOrStdout(), name, res)
	return nil
}

func printIngest(w io.Writer, label string, res *indexer.Result) {
	if res.Skipped {
		fmt.Fprintf(w, "%s: unchanged (%s)\n", label, res.Document.ID)
		return
	}
	fmt.Fprintf(w, "%s: %d chunks (%s)\n", label, res.ChunksCreated, res.Document.ID)
}

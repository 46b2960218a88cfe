package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pdfkb/pdfkb-search/internal/app"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

func newStatusCmd(rt *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show knowledge base statistics and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd, func(a *app.App) error {
				st, err := a.Status(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), st)
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func printStatus(w io.Writer, st *app.Status) {
	fmt.Fprintf(w, "Documents:   %d (completed %d, failed %d)\n", st.Documents,
		st.DocumentsByStatus[types.StatusCompleted], st.DocumentsByStatus[types.StatusFailed])
	fmt.Fprintf(w, "Chunks:      %d (%d indexed, %d terms)\n", st.Chunks, st.Index.ChunkCount, st.Index.TermCount)
	fmt.Fprintf(w, "Embeddings:  %d\n", st.Embeddings)
	if st.BlockedSources > 0 {
		fmt.Fprintf(w, "Blocked:     %d deleted files (see pdfkb blocked)\n", st.BlockedSources)
	}
	fmt.Fprintf(w, "Database:    %.2f MB, schema %s\n", st.IndexSizeMB, st.SchemaVersion)
	fmt.Fprintf(w, "Embedder:    %s %s (%d dims)\n", st.Embedder.Provider, st.Embedder.Model, st.Embedder.Dimension)
	if st.LastProcessedAt != nil {
		fmt.Fprintf(w, "Last ingest: %s\n", st.LastProcessedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "Health:      database=%s embeddings=%s index=%s\n",
		okString(st.Health.DatabaseAccessible),
		okString(st.Health.EmbeddingsAvailable),
		okString(st.Health.IndexConsistent))
}

func okString(ok bool) string {
	if ok {
		return "ok"
	}
	return "degraded"
}

package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdfkb/pdfkb-search/internal/app"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

func newDocumentsCmd(rt *globals) *cobra.Command {
	var (
		status string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs", "ls"},
		Short:   "List the documents in the knowledge base",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			want := types.DocumentStatus(status)
			if status != "" && !want.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			return rt.withApp(cmd, func(a *app.App) error {
				docs, err := a.ListDocuments(cmd.Context())
				if err != nil {
					return err
				}
				if status != "" {
					kept := docs[:0]
					for _, d := range docs {
						if d.Status == want {
							kept = append(kept, d)
						}
					}
					docs = kept
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), docs)
				}
				if len(docs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No documents.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tFILENAME\tSTATUS\tPAGES\tCHUNKS\tUPLOADED")
				for _, d := range docs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
						d.ID, d.Filename, d.Status, d.NumPages, d.NumChunks, d.UploadedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only documents in this state: pending, processing, completed or failed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the documents as JSON")
	return cmd
}

func newDeleteCmd(rt *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <document-id>...",
		Aliases: []string{"rm"},
		Short:   "Remove documents and their chunks",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd, func(a *app.App) error {
				for _, id := range args {
					removed, err := a.DeleteDocument(cmd.Context(), id)
					if err != nil {
						return fmt.Errorf("%s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%d chunks)\n", id, len(removed))
				}
				return nil
			})
		},
	}
}

func newRebuildCmd(rt *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the keyword index from storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd, func(a *app.App) error {
				stats, err := a.RebuildIndex(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Index rebuilt: %d chunks, %d terms, average length %.1f\n",
					stats.ChunkCount, stats.TermCount, stats.AvgLength)
				return nil
			})
		},
	}
}

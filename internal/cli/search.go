package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdfkb/pdfkb-search/internal/app"
	"github.com/pdfkb/pdfkb-search/pkg/types"
)

const snippetLength = 160

func newSearchCmd(rt *globals) *cobra.Command {
	var (
		req    app.SearchRequest
		weight float64
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search the knowledge base and print the ranked chunks.

Modes: hybrid (default) fuses vector similarity with BM25, semantic uses
vectors only, keyword uses BM25 only.`,
		Example: `  pdfkb search "quarterly revenue"
  pdfkb search --mode keyword --top-k 10 "error budget"
  pdfkb search --exclude draft --from 2024-01-01 --json "hiring plan"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = strings.Join(args, " ")
			if cmd.Flags().Changed("weight") {
				req.SemanticWeight = &weight
			}
			return rt.withApp(cmd, func(a *app.App) error {
				resp, err := a.RunSearch(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				printResults(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.IntVarP(&req.TopK, "top-k", "k", 0, "maximum number of results (default from config)")
	f.StringVarP(&req.SearchMode, "mode", "m", "hybrid", "search mode: hybrid, semantic or keyword")
	f.Float64Var(&weight, "weight", 0.5, "semantic weight in hybrid mode (0-1)")
	f.StringVar(&req.Fusion, "fusion", "", "hybrid fusion: weighted or rrf")
	f.StringSliceVar(&req.DocumentIDs, "doc", nil, "only chunks of these document IDs")
	f.StringVar(&req.DateFrom, "from", "", "earliest upload date (RFC 3339 or YYYY-MM-DD)")
	f.StringVar(&req.DateTo, "to", "", "latest upload date, a bare date includes the whole day")
	f.StringSliceVar(&req.MustInclude, "include", nil, "terms every result must contain")
	f.StringSliceVar(&req.MustExclude, "exclude", nil, "terms no result may contain")
	f.StringSliceVar(&req.AnyOf, "any", nil, "terms of which a result must contain at least one")
	f.BoolVar(&asJSON, "json", false, "print the response as JSON")
	return cmd
}

func printResults(w io.Writer, resp *types.SearchResponse) {
	if resp.Degraded {
		fmt.Fprintf(w, "warning: ran in %s mode (%s)\n", resp.SearchMode, resp.DegradedReason)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%d results (%s, %s)\n\n", resp.TotalResults, resp.SearchMode, resp.Duration.Round(time.Microsecond))
	for _, r := range resp.Results {
		location := r.Metadata.Source
		if r.Metadata.PageNumber != nil {
			location = fmt.Sprintf("%s p.%d", location, *r.Metadata.PageNumber)
		}
		fmt.Fprintf(w, "%d. [%.4f] %s\n", r.Rank, r.Score, location)
		fmt.Fprintf(w, "   %s\n", snippet(r.Content, snippetLength))
		fmt.Fprintf(w, "   chunk %s\n\n", r.ChunkID)
	}
}

// snippet collapses whitespace and cuts s to at most n runes
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdfkb/pdfkb-search/internal/app"
	"github.com/pdfkb/pdfkb-search/internal/httpapi"
	"github.com/pdfkb/pdfkb-search/internal/mcp"
	"github.com/pdfkb/pdfkb-search/internal/storage"
)

func newServeCmd(rt *globals) *cobra.Command {
	var watchDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run the Model Context Protocol server on stdin/stdout.

Logs go to stderr because stdout carries the protocol. With --watch (or
watch.dir in the config file) the directory is indexed on startup and kept
in sync while the server runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd, func(a *app.App) error {
				rt.logger.Info("starting pdfkb MCP server",
					zap.String("version", rt.build.Version),
					zap.String("build_mode", storage.BuildMode),
					zap.String("driver", storage.DriverName),
					zap.Bool("vector_extension", storage.VectorExtensionAvailable))

				srv := mcp.NewServer(a, rt.build.Version, rt.logger.Named("mcp"))
				return runWithWatcher(cmd.Context(), a, watchDir, srv.Serve)
			})
		},
	}

	cmd.Flags().StringVarP(&watchDir, "watch", "w", "", "directory to index and keep in sync")
	return cmd
}

func newHTTPCmd(rt *globals) *cobra.Command {
	var (
		addr     string
		watchDir string
	)

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Run the JSON HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = rt.cfg.HTTP.Addr
			}
			return rt.withApp(cmd, func(a *app.App) error {
				srv := httpapi.New(a, rt.logger.Named("http"))
				return runWithWatcher(cmd.Context(), a, watchDir, func(ctx context.Context) error {
					return srv.ListenAndServe(ctx, addr)
				})
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVarP(&watchDir, "watch", "w", "", "directory to index and keep in sync")
	return cmd
}

// runWithWatcher runs serve, and alongside it indexes and watches dir when
// one is configured. The watcher stops when serve returns.
func runWithWatcher(ctx context.Context, a *app.App, dir string, serve func(context.Context) error) error {
	if dir == "" {
		dir = a.Config().Watch.Dir
	}
	if dir == "" {
		return serve(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := a.IndexDirectory(gctx, dir)
		if err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return err
		}
		a.Logger().Info("initial directory index complete",
			zap.String("dir", dir),
			zap.Int("indexed", stats.FilesIndexed),
			zap.Int("skipped", stats.FilesSkipped),
			zap.Int("failed", stats.FilesFailed),
			zap.Int("removed", stats.FilesRemoved))
		return a.Watch(gctx, dir)
	})
	g.Go(func() error {
		defer cancel()
		return serve(gctx)
	})
	return g.Wait()
}

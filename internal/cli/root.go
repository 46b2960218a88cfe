// Package cli implements the pdfkb command line: the MCP and HTTP servers
// plus one-shot commands for ingesting, searching and maintaining the
// knowledge base.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdfkb/pdfkb-search/internal/app"
	"github.com/pdfkb/pdfkb-search/internal/config"
	"github.com/pdfkb/pdfkb-search/internal/logging"
)

// BuildInfo is stamped into the binary at link time
type BuildInfo struct {
	Version   string
	BuildTime string
}

// globals carries the global flags and what PersistentPreRunE resolved
type globals struct {
	build      BuildInfo
	configPath string
	dataDir    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd builds the full command tree
func NewRootCmd(build BuildInfo) *cobra.Command {
	rt := &globals{build: build}

	root := &cobra.Command{
		Use:   "pdfkb",
		Short: "Hybrid semantic and keyword search over a document knowledge base",
		Long: `pdfkb indexes text, Markdown and HTML documents into a local SQLite
knowledge base and ranks them with BM25 keyword scoring, vector similarity,
or a fusion of both. It serves the knowledge base to AI assistants over MCP
and to other programs over a JSON HTTP API.`,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return rt.load() },
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&rt.configPath, "config", "", "config file (default ~/.pdfkb/config.toml)")
	pf.StringVar(&rt.dataDir, "data-dir", "", "data directory, overrides the config file")
	pf.BoolVarP(&rt.verbose, "verbose", "v", false, "debug logging in console format")

	root.AddCommand(
		newServeCmd(rt),
		newHTTPCmd(rt),
		newSearchCmd(rt),
		newIngestCmd(rt),
		newDeleteCmd(rt),
		newDocumentsCmd(rt),
		newBlockedCmd(rt),
		newReprocessCmd(rt),
		newRebuildCmd(rt),
		newStatusCmd(rt),
		newVersionCmd(rt),
		newConfigCmd(rt),
	)
	return root
}

// Execute runs the command line until ctx is cancelled
func Execute(ctx context.Context, build BuildInfo) error {
	return NewRootCmd(build).ExecuteContext(ctx)
}

// load reads the configuration and builds the logger
func (rt *globals) load() error {
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	if rt.dataDir != "" {
		cfg.DataDir = rt.dataDir
	}

	logCfg := logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development}
	if rt.verbose {
		logCfg = logging.Config{Level: "debug", Development: true}
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}

	rt.cfg = cfg
	rt.logger = logger
	return nil
}

// open starts the application on the loaded configuration
func (rt *globals) open(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, rt.cfg, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	return a, nil
}

// withApp opens the application for one command and closes it afterwards
func (rt *globals) withApp(cmd *cobra.Command, fn func(a *app.App) error) (err error) {
	a, err := rt.open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

// skipLoad replaces the root pre-run for commands that need no configuration
func skipLoad(*cobra.Command, []string) error { return nil }

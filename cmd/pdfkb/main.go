package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pdfkb/pdfkb-search/internal/cli"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, cli.BuildInfo{Version: version, BuildTime: buildTime}); err != nil {
		stop()
		os.Exit(1)
	}
}

package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// embeddedConfig is the application configuration bundled into the binary.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}

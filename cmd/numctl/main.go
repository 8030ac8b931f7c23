package main

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/targc/numbervault/cmd/numctl/cmd"
	"github.com/targc/numbervault/pkg/config"
	"github.com/targc/numbervault/pkg/logging"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadCLIConfig(ctx)

	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	if err := cmd.RootCmd(cfg).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

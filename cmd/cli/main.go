package main

import (
	"os"
	"strings"

	"github.com/nimasrn/train-reservation/internal/config"
	"github.com/nimasrn/train-reservation/pkg/logger"
	"github.com/nimasrn/train-reservation/pkg/pg"
)

// cli --env=.env --dir=./migrations --cmd=up|down|status
func main() {
	envPath := config.EnvPathFromArgs(os.Args)
	if envPath == "" {
		if _, err := os.Stat(".env"); err == nil {
			envPath = ".env"
		}
	}
	if err := config.Load(envPath); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dir := argValue("--dir=", "./migrations")
	if _, err := os.Stat(dir); err != nil {
		logger.Error("migration directory not found", "dir", dir, "error", err)
		os.Exit(1)
	}

	if err := pg.Migrate(config.Get().PostgresWrite(), dir, argValue("--cmd=", "up")); err != nil {
		logger.Error("migration: error running migrations", "error", err)
		os.Exit(1)
	}
}

func argValue(prefix, def string) string {
	for _, v := range os.Args[1:] {
		if value, ok := strings.CutPrefix(v, prefix); ok && value != "" {
			return value
		}
	}
	return def
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"resumind/internal/bootstrap"
	"resumind/internal/cli"
	"resumind/internal/shared/config"
	"resumind/internal/shared/storage/db"
	"resumind/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	if err := telemetry.InitStderr("console", envOr("LOG_LEVEL", "warn")); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	defer telemetry.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := bootstrap.BuildService(ctx, cfg, db.DefaultCLIOptions())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	err = cli.Execute(ctx, app.Resumes, os.Args[1:], os.Stdout)
	app.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

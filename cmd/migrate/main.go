package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"meteo-server/internal/config"
	"meteo-server/internal/db"
	"meteo-server/internal/logging"
	"meteo-server/internal/migrate"
)

const usage = `usage: %s <command>
  migrate  apply pending schema migrations to SQLITE_PATH (or DB_DSN)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg, logging.DevVersion, "meteo-migrate"))

	switch os.Args[1] {
	case "migrate":
		if err := runMigrate(context.Background(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migrations applied")
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(2)
	}
}

func runMigrate(ctx context.Context, cfg config.Config) error {
	conn, err := db.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()
	return migrate.Run(ctx, conn)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/semaj-12/7M-Quote-sub001/internal/adapter/postgres"
	"github.com/semaj-12/7M-Quote-sub001/internal/config"
)

// runMigrate dispatches migration subcommands (up, down, version).
func runMigrate(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printMigrateHelp()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
		fmt.Println("migrations applied")
		return nil
	case "down":
		fs := flag.NewFlagSet("down", flag.ExitOnError)
		steps := fs.Int("steps", 1, "number of migrations to roll back")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return err
		}
		fmt.Printf("rolled back %d migration(s)\n", *steps)
		return nil
	case "version":
		v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		fmt.Printf("migration version: %d\n", v)
		return nil
	default:
		printMigrateHelp()
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}
}

func printMigrateHelp() {
	fmt.Fprintf(os.Stderr, `Usage: fusiond migrate <command> [options]

Commands:
  up        Apply all pending migrations
  down      Roll back migrations (--steps N, default 1)
  version   Print the current migration version
  help      Show this help message
`)
}

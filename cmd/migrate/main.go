// Command migrate manages the PetPals accounts and documents schema.
//
//	migrate up [-dry-run]     apply pending SQL migrations
//	migrate auto              GORM AutoMigrate of the persistent models
//	migrate status            applied/pending migrations and document counts
//	migrate down -yes <ver>   roll back the latest migration
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"petpals/internal/config"
	"petpals/internal/database"

	"gorm.io/gorm"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: migrate <up [-dry-run]|auto|status|down -yes <version>>")
}

func run(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usage()
	}
	cmd := strings.ToLower(strings.TrimSpace(args[0]))

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "list pending migrations without applying them")
	yes := fs.Bool("yes", false, "confirm a rollback, which drops tables and their documents")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	switch cmd {
	case "up":
		if *dryRun {
			return printStatus(ctx, db, cfg)
		}
		if err := database.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
		log.Println("sql migrations applied")
	case "auto":
		if err := db.WithContext(ctx).AutoMigrate(database.PersistentModels()...); err != nil {
			return fmt.Errorf("auto schema apply failed: %w", err)
		}
		log.Println("accounts and documents tables migrated")
	case "status":
		return printStatus(ctx, db, cfg)
	case "down":
		if fs.NArg() < 1 {
			return usage()
		}
		version, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", fs.Arg(0), err)
		}
		if !*yes {
			return fmt.Errorf("rolling back %06d drops stored posts, profiles and comments; rerun with -yes", version)
		}
		if err := database.RollbackMigration(ctx, db, version); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		log.Printf("rolled back migration %06d", version)
	default:
		return usage()
	}
	return nil
}

func printStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	status, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return fmt.Errorf("schema status failed: %w", err)
	}
	log.Printf("mode=%s env=%s applied=%d pending=%d",
		status.Mode, status.Environment, len(status.AppliedVersions), len(status.PendingMigrations))
	for _, m := range status.PendingMigrations {
		log.Printf("pending: %s", m.String())
	}

	kinds := make([]string, 0, len(status.Documents))
	for kind := range status.Documents {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		log.Printf("documents: %s=%d", kind, status.Documents[kind])
	}
	return nil
}

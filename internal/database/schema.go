package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"petpals/internal/config"
	"petpals/internal/middleware"

	"gorm.io/gorm"
)

const (
	SchemaModeSQL  = "sql"
	SchemaModeAuto = "auto"
)

// SchemaStatus describes what ApplySchema will do for a configuration.
type SchemaStatus struct {
	Mode              string
	Environment       string
	AppliedVersions   []int
	PendingMigrations []Migration
	// Documents maps a collection kind ("posts", "users", "comments") to
	// its document count.
	Documents map[string]int64
}

// SchemaMode picks versioned SQL for production PostgreSQL and GORM
// AutoMigrate everywhere else.
func SchemaMode(cfg *config.Config) string {
	if cfg.IsProduction() && cfg.DBDriver != "sqlite" {
		return SchemaModeSQL
	}
	return SchemaModeAuto
}

func runAutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(PersistentModels()...)
}

// ApplySchema brings the accounts and documents tables up to date.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	mode := SchemaMode(cfg)
	switch mode {
	case SchemaModeSQL:
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	default:
		middleware.Logger.Info("Running GORM AutoMigrate", slog.String("mode", mode), slog.String("env", cfg.Env))
		if err := runAutoMigrate(db.WithContext(ctx)); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return nil
}

// GetSchemaStatus reports applied and pending SQL migrations and how many
// documents each collection kind holds.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	status := &SchemaStatus{
		Mode:        SchemaMode(cfg),
		Environment: cfg.Env,
	}

	applied, err := NewMigrationStore(db).AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	status.AppliedVersions = make([]int, 0, len(applied))
	for _, l := range applied {
		status.AppliedVersions = append(status.AppliedVersions, l.Version)
	}

	all, err := GetMigrations()
	if err != nil {
		return nil, err
	}
	done := appliedVersions(applied)
	for _, m := range all {
		if !done[m.Version] {
			status.PendingMigrations = append(status.PendingMigrations, m)
		}
	}

	if status.Documents, err = DocumentCounts(ctx, db); err != nil {
		return nil, err
	}
	return status, nil
}

// DocumentCounts tallies stored documents by collection kind: the last
// segment of the collection path, so every posts/{id}/comments subcollection
// counts toward "comments". A missing documents table yields no counts.
func DocumentCounts(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Collection string
		N          int64
	}
	err := db.WithContext(ctx).Table("documents").
		Select("collection, COUNT(*) AS n").
		Group("collection").
		Scan(&rows).Error
	if err != nil {
		if isMissingTableError(err) {
			return map[string]int64{}, nil
		}
		return nil, fmt.Errorf("count documents: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		kind := r.Collection
		if i := strings.LastIndex(kind, "/"); i >= 0 {
			kind = kind[i+1:]
		}
		counts[kind] += r.N
	}
	return counts, nil
}

package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"petpals/internal/middleware"
	"petpals/internal/observability"

	"gorm.io/gorm"
)

// MigrationLog records an applied migration. Checksum is the SHA-256 of the
// up script that ran, so a shipped migration edited afterwards is detected.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	Checksum  string    `gorm:"size:64"`
	AppliedAt time.Time `gorm:"autoCreateTime;index"`
}

func (MigrationLog) TableName() string {
	return "migration_logs"
}

// Checksum hashes the up script.
func (m *Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpScript))
	return hex.EncodeToString(sum[:])
}

// MigrationStore applies and reverts migrations against the accounts and
// documents schema. Each script runs in the same transaction as its log row.
type MigrationStore interface {
	AppliedMigrations(ctx context.Context) ([]MigrationLog, error)
	Apply(ctx context.Context, m Migration) error
	Revert(ctx context.Context, m Migration) error
}

type migrationStore struct {
	db *gorm.DB
}

func NewMigrationStore(db *gorm.DB) MigrationStore {
	return &migrationStore{db: db}
}

func (s *migrationStore) AppliedMigrations(ctx context.Context) ([]MigrationLog, error) {
	var logs []MigrationLog
	if err := s.db.WithContext(ctx).Order("version ASC").Find(&logs).Error; err != nil {
		if isMissingTableError(err) {
			return []MigrationLog{}, nil
		}
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	return logs, nil
}

func isMissingTableError(err error) bool {
	msg := err.Error()
	return (strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) ||
		strings.Contains(msg, "no such table")
}

func (s *migrationStore) Apply(ctx context.Context, m Migration) error {
	ctx, span := observability.GetTraceLayer().TraceStoreOperation(ctx, "sql", "migrate_up", m.String())
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.UpScript).Error; err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.String(), err)
		}
		log := MigrationLog{Version: m.Version, Name: m.Name, Checksum: m.Checksum()}
		if err := tx.Create(&log).Error; err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.String(), err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	middleware.Logger.InfoContext(ctx, "Migration applied", slog.String("migration", m.String()))
	return nil
}

func (s *migrationStore) Revert(ctx context.Context, m Migration) error {
	ctx, span := observability.GetTraceLayer().TraceStoreOperation(ctx, "sql", "migrate_down", m.String())
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.DownScript).Error; err != nil {
			return fmt.Errorf("failed to run rollback SQL for migration %s: %w", m.String(), err)
		}
		if err := tx.Where("version = ?", m.Version).Delete(&MigrationLog{}).Error; err != nil {
			return fmt.Errorf("failed to remove migration record %s: %w", m.String(), err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	middleware.Logger.InfoContext(ctx, "Migration rolled back", slog.String("migration", m.String()))
	return nil
}

// RunMigrations applies every pending migration in version order. It refuses
// to run when the database has versions this binary does not know or when an
// applied script has changed since it ran.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&MigrationLog{}); err != nil {
		return fmt.Errorf("failed to ensure migration logs table: %w", err)
	}
	migrations, err := GetMigrations()
	if err != nil {
		return err
	}

	store := NewMigrationStore(db)
	applied, err := store.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if err := validateApplied(applied, migrations); err != nil {
		return err
	}

	done := appliedVersions(applied)
	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		if err := store.Apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(logs []MigrationLog) map[int]bool {
	set := make(map[int]bool, len(logs))
	for _, l := range logs {
		set[l.Version] = true
	}
	return set
}

// validateApplied reports applied versions missing from registered, then
// applied scripts whose checksum no longer matches. Rows without a checksum
// predate checksum tracking and are accepted.
func validateApplied(applied []MigrationLog, registered []Migration) error {
	known := make(map[int]Migration, len(registered))
	for _, m := range registered {
		known[m.Version] = m
	}

	var unknown, edited []string
	for _, l := range applied {
		m, ok := known[l.Version]
		if !ok {
			unknown = append(unknown, fmt.Sprintf("%06d", l.Version))
			continue
		}
		if l.Checksum != "" && l.Checksum != m.Checksum() {
			edited = append(edited, m.String())
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("migration_logs contains unknown versions not present in code: %s", strings.Join(unknown, ", "))
	}
	if len(edited) > 0 {
		return fmt.Errorf("applied migrations were edited after they ran: %s", strings.Join(edited, ", "))
	}
	return nil
}

// ErrNotLatestMigration is returned when rolling back anything but the most
// recently applied migration.
var ErrNotLatestMigration = errors.New("only the latest applied migration can be rolled back")

// RollbackMigration reverts version, which must be the latest applied one.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m := GetMigrationByVersion(version)
	if m == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	store := NewMigrationStore(db)
	applied, err := store.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if !appliedVersions(applied)[version] {
		return fmt.Errorf("migration %s has not been applied", m.String())
	}
	if latest := applied[len(applied)-1].Version; latest != version {
		return fmt.Errorf("%w: %06d is newer than %s", ErrNotLatestMigration, latest, m.String())
	}
	return store.Revert(ctx, *m)
}

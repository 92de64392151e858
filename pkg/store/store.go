// Package store provides durable persistence for the entities the Message
// Store exclusively owns: Interaction, ProcessingCursor, RecoveryOperation,
// ProtocolState, Commitment, Quarantine, and User. It follows the teacher's
// pgx + golang-migrate + go:embed wiring, without the ent runtime layer
// (unavailable in the retrieval pack — see DESIGN.md).
package store

import (
	"context"
	"embed"
	stdsql "database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver for golang-migrate

	"github.com/hitlbot/warden/pkg/config"
)

//go:embed migrations
var migrationsFS embed.FS

// Store wraps a pgx connection pool and exposes one repository per entity
// family owned by the Message Store.
type Store struct {
	pool *pgxpool.Pool

	Users       *UserRepo
	Interactions *InteractionRepo
	Cursors     *CursorRepo
	Recoveries  *RecoveryRepo
	Quarantine  *QuarantineRepo
	Protocol    *ProtocolRepo
	Commitments *CommitmentRepo
	Coherence   *CoherenceRepo
}

// Pool returns the underlying connection pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Open creates a connection pool, runs pending migrations, and returns a
// ready Store.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, maxConns(cfg),
	)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dsn, cfg.Database); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		pool:         pool,
		Users:        &UserRepo{pool: pool},
		Interactions: &InteractionRepo{pool: pool},
		Cursors:      &CursorRepo{pool: pool},
		Recoveries:   &RecoveryRepo{pool: pool},
		Quarantine:   &QuarantineRepo{pool: pool},
		Protocol:     &ProtocolRepo{pool: pool},
		Commitments:  &CommitmentRepo{pool: pool},
		Coherence:    &CoherenceRepo{pool: pool},
	}, nil
}

func maxConns(cfg config.DatabaseConfig) int {
	if cfg.MaxOpenConns > 0 {
		return cfg.MaxOpenConns
	}
	return 20
}

// runMigrations applies embedded SQL migrations using golang-migrate,
// opening its own database/sql handle against the pgx stdlib driver rather
// than sharing the pgxpool connection — migrate's Postgres driver expects a
// *sql.DB.
func runMigrations(dsn, dbName string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return err
	}
	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return false, fmt.Errorf("read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && len(entry.Name()) > 4 && entry.Name()[len(entry.Name())-4:] == ".sql" {
			return true, nil
		}
	}
	return false, nil
}

package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrSchemaTooNew means the file was written by a newer release whose
// migrations this binary does not know.
var ErrSchemaTooNew = errors.New("database schema is newer than this binary")

func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(conn *sql.DB, version int) error {
	// PRAGMA does not take bind parameters.
	_, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
	return err
}

// isLegacyDB reports whether an unversioned database already holds the
// profile table. Files written by the earlier pod-discover tool look like
// this and match migration 1 exactly.
func isLegacyDB(conn *sql.DB) (bool, error) {
	var count int
	err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='taste_profile'",
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking for legacy tables: %w", err)
	}
	return count > 0, nil
}

// migrate applies every pending migration in order and records progress in
// PRAGMA user_version.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	latest := latestVersion()

	switch {
	case current > latest:
		return fmt.Errorf("%w: file is at version %d, binary knows %d", ErrSchemaTooNew, current, latest)
	case current == 0:
		legacy, err := isLegacyDB(conn)
		if err != nil {
			return err
		}
		if legacy {
			log.Info().Msg("Adopting unversioned pod-discover database as schema version 1")
			if err := setSchemaVersion(conn, 1); err != nil {
				return fmt.Errorf("stamping legacy version: %w", err)
			}
			current = 1
		}
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		start := time.Now()
		if err := apply(conn, m); err != nil {
			return err
		}
		log.Info().
			Int("version", m.Version).
			Str("description", m.Description).
			Dur("took", time.Since(start)).
			Msg("Applied migration")
	}
	return nil
}

// apply runs one migration in a transaction and then bumps the version.
// modernc/sqlite cannot change user_version inside the transaction; the DDL
// is idempotent so a crash between commit and bump re-runs the step.
func apply(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	if err := setSchemaVersion(conn, m.Version); err != nil {
		return fmt.Errorf("setting version %d: %w", m.Version, err)
	}
	return nil
}

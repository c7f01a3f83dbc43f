package telemetry

import (
	"database/sql"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
)

const SchemaVersion = 1

func initSchema(db *sql.DB) error {
	errFactory := errors.New()

	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS snapshots (
            timestamp INTEGER PRIMARY KEY,
            fps REAL,
            memory_mb REAL,
            level TEXT,
            target_level TEXT,
            transitioning INTEGER,
            optimizations INTEGER,
            strategy TEXT
        )
    `)
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS schema_versions (
            version INTEGER PRIMARY KEY,
            applied_at INTEGER
        )
    `)
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	_, err = db.Exec(
		"INSERT OR IGNORE INTO schema_versions (version, applied_at) VALUES (?, strftime('%s','now'))",
		SchemaVersion,
	)
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	return nil
}

func getSchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_versions'",
	).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

// validateAndUpdateSchema recreates the schema when the stored version
// does not match. Snapshot data is diagnostic, so a mismatched schema is
// dropped rather than migrated.
func validateAndUpdateSchema(db *sql.DB) error {
	errFactory := errors.New()

	version, err := getSchemaVersion(db)
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if version == SchemaVersion {
		logger.Debug().Int("version", version).Msg("Telemetry schema is current")
		return nil
	}

	if version != 0 {
		logger.Info().
			Int("stored", version).
			Int("expected", SchemaVersion).
			Msg("Telemetry schema version mismatch, recreating")

		for _, table := range []string{"snapshots", "schema_versions"} {
			if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return errFactory.Wrap(ErrSchemaInitFailed, err)
			}
		}
	}

	return initSchema(db)
}

package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/thermoctl/internal/errors"
	"codeberg.org/mutker/thermoctl/internal/logger"
)

// migrations are the forward steps of the journal schema, keyed by the
// version each one produces. Version 1 predates the humidity column.
var migrations = map[int]string{
	2: `ALTER TABLE telemetry_attempts ADD COLUMN humidity REAL`,
}

// archiveTableName is where attempts recorded under a schema that cannot be
// migrated forward are kept.
func archiveTableName(version int) string {
	return fmt.Sprintf("telemetry_attempts_v%d", version)
}

// ValidateAndUpdateSchema brings the journal to SchemaVersion. A new
// database gets the current schema. An older one is backed up and migrated
// forward step by step. One without a forward path (newer, or missing a
// step) is backed up and its attempts are moved to an archive table before
// the current schema is created. Recorded attempts are never dropped.
func ValidateAndUpdateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(db)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to get schema version")
		return errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	log.Debug().
		Int("version", version).
		Bool("init_db", version == 0).
		Msg("Current schema version")

	switch version {
	case SchemaVersion:
		log.Debug().Int("version", version).Msg("Schema version is current")
		return nil
	case 0:
		return InitSchema(db, log)
	}

	backupPath, err := backupDatabase(db, backupDir, version, log)
	if err != nil {
		return errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Error string
			Path  string
		}{
			Phase: "backup",
			Error: err.Error(),
			Path:  backupPath,
		})
	}

	if canMigrate(version) {
		return migrateForward(db, version, log)
	}
	return archiveAttempts(db, version, log)
}

func canMigrate(from int) bool {
	if from > SchemaVersion {
		return false
	}
	for v := from + 1; v <= SchemaVersion; v++ {
		if _, ok := migrations[v]; !ok {
			return false
		}
	}
	return true
}

func migrateForward(db *sql.DB, from int, log logger.Logger) error {
	err := withTx(db, log, ErrSchemaMigrationFailed, func(tx *sql.Tx) error {
		for v := from + 1; v <= SchemaVersion; v++ {
			log.Debug().Int("version", v).Str("sql", migrations[v]).Msg("Applying migration")
			if _, err := tx.Exec(migrations[v]); err != nil {
				return errors.New().WithData(ErrSchemaMigrationFailed, struct {
					Phase   string
					Version int
					Error   string
				}{
					Phase:   "migrate",
					Version: v,
					Error:   err.Error(),
				})
			}
			if err := recordVersion(tx, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Int("from", from).
		Int("to", SchemaVersion).
		Msg("Schema migrated")

	return nil
}

func archiveAttempts(db *sql.DB, version int, log logger.Logger) error {
	archive := archiveTableName(version)

	err := withTx(db, log, ErrSchemaMigrationFailed, func(tx *sql.Tx) error {
		exists, err := TableExists(tx, "telemetry_attempts")
		if err != nil {
			return err
		}

		// The index keeps its name across a rename and would shadow the new one.
		stmts := []string{"DROP INDEX IF EXISTS idx_telemetry_attempts_timestamp"}
		if exists {
			stmts = append(stmts, "ALTER TABLE telemetry_attempts RENAME TO "+archive)
		}
		stmts = append(stmts, "DELETE FROM schema_versions")

		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return errors.New().WithData(ErrSchemaMigrationFailed, struct {
					Phase string
					SQL   string
					Error string
				}{
					Phase: "archive",
					SQL:   stmt,
					Error: err.Error(),
				})
			}
		}

		return createSchema(tx, log)
	})
	if err != nil {
		return err
	}

	log.Warn().
		Int("version", version).
		Str("archive", archive).
		Msg("Schema has no forward migration, previous attempts archived")

	return nil
}

func backupDatabase(db *sql.DB, backupDir string, version int, log logger.Logger) (string, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(backupDir, defaultDirPerm); err != nil {
		return "", errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup_dir",
			Path:  backupDir,
			Error: err.Error(),
		})
	}

	timestamp := time.Now().UTC().Format("20060102T150405Z")
	backupPath := filepath.Join(backupDir,
		fmt.Sprintf("metrics_v%d_%s.db", version, timestamp))

	// VACUUM INTO requires no active transaction
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		return "", errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup",
			Path:  backupPath,
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", backupPath).
		Int("version", version).
		Msg("Database backup created")

	return backupPath, nil
}

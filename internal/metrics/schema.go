package metrics

import (
	"database/sql"

	"codeberg.org/mutker/thermoctl/internal/errors"
	"codeberg.org/mutker/thermoctl/internal/logger"
)

const (
	SchemaVersion = 2

	// SQL statements derived from schema
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS telemetry_attempts (
	       id             INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp      INTEGER NOT NULL,
	       serial         TEXT NOT NULL,
	       temperature    REAL NOT NULL,
	       humidity       REAL,
	       connected      INTEGER NOT NULL CHECK (connected IN (0, 1)),
	       upload_enabled INTEGER NOT NULL CHECK (upload_enabled IN (0, 1)),
	       result         TEXT NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_telemetry_attempts_timestamp
	       ON telemetry_attempts (timestamp);`

	insertAttemptSQL = `
    INSERT INTO telemetry_attempts (
        timestamp, serial,
        temperature, humidity,
        connected, upload_enabled,
        result
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	log.Debug().Msg("Creating database...")

	if err := withTx(db, log, ErrSchemaInitFailed, func(tx *sql.Tx) error {
		return createSchema(tx, log)
	}); err != nil {
		return err
	}

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

func createSchema(tx *sql.Tx, log logger.Logger) error {
	log.Debug().Str("sql", createTablesSQL).Msg("Executing SQL statement")
	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errors.New().WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	return recordVersion(tx, SchemaVersion)
}

func recordVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, version); err != nil {
		return errors.New().WithData(ErrSchemaInitFailed, struct {
			Error   string
			Phase   string
			Version int
		}{
			Error:   err.Error(),
			Phase:   "record_version",
			Version: version,
		})
	}
	return nil
}

// withTx runs fn in a transaction and commits it when fn succeeds.
func withTx(db *sql.DB, log logger.Logger, code errors.ErrorCode, fn func(tx *sql.Tx) error) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(code, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	log.Debug().Msg("Committing transaction...")
	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(code, err)
	}
	committed = true

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db queryer, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}

// SQL getters for consistent schema usage
func GetCreateTablesSQL() string {
	return createTablesSQL
}

// GetInsertAttemptSQL returns the SQL to insert a telemetry attempt
func GetInsertAttemptSQL() string {
	return insertAttemptSQL
}

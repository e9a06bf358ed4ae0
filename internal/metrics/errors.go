package metrics

import "codeberg.org/mutker/thermoctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig       = errors.ErrInvalidConfig
	ErrInvalidDBPath       = errors.ErrorCode("metrics_invalid_db_path")
	ErrInvalidBackend      = errors.ErrorCode("metrics_invalid_backend")
	ErrInvalidInfluxConfig = errors.ErrorCode("metrics_invalid_influx_config")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("metrics_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("metrics_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("metrics_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("metrics_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed

	// Service Errors
	ErrServiceShutdown = errors.ErrShutdownFailed

	// Collection Errors
	ErrMetricsCollection = errors.ErrorCode("metrics_collection_failed")
	ErrInvalidMetrics    = errors.ErrorCode("metrics_invalid_metrics")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)

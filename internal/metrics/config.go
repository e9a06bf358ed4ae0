package metrics

import (
	"path/filepath"

	"codeberg.org/mutker/thermoctl/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/thermoctl/metrics.db"

	BackendSQLite   = "sqlite"
	BackendInfluxDB = "influxdb"
)

type Config struct {
	Enabled      bool
	Backend      string
	DBPath       string
	BackupDir    string
	BatchSize    int
	BatchTimeout int

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

func DefaultConfig() Config {
	return Config{
		Backend:      BackendSQLite,
		DBPath:       defaultDBPath,
		BatchSize:    12,
		BatchTimeout: 60,
		Enabled:      false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}

	switch c.Backend {
	case BackendSQLite:
		if c.DBPath == "" {
			return errFactory.New(ErrInvalidDBPath)
		}
	case BackendInfluxDB:
		if c.InfluxURL == "" || c.InfluxBucket == "" {
			return errFactory.New(ErrInvalidInfluxConfig)
		}
	default:
		return errFactory.WithData(ErrInvalidBackend, c.Backend)
	}

	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			BatchSize    int
			BatchTimeout int
		}{
			BatchSize:    c.BatchSize,
			BatchTimeout: c.BatchTimeout,
		})
	}

	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

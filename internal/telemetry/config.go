package telemetry

import "codeberg.org/mutker/perfctl/internal/errors"

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/perfctl/telemetry.db"

	defaultBatchSize    = 32
	defaultBatchTimeout = 10 // seconds
)

type Config struct {
	DBPath       string
	BatchSize    int
	BatchTimeout int // seconds between forced flushes
	Enabled      bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Enabled:      false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate storage settings when telemetry is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

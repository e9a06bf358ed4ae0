package sensor

import "codeberg.org/mutker/thermoctl/internal/errors"

const (
	ErrInvalidMode  = errors.ErrorCode("sensor_invalid_mode")
	ErrInvalidScale = errors.ErrorCode("sensor_invalid_scale")
	ErrConnect      = errors.ErrorCode("sensor_connect_failed")
	ErrNotOpen      = errors.ErrorCode("sensor_not_open")
	ErrRead         = errors.ErrorCode("sensor_read_failed")
	ErrShortRead    = errors.ErrorCode("sensor_short_read")
	ErrClose        = errors.ErrShutdownFailed
)

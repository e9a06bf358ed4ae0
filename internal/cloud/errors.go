package cloud

import "codeberg.org/mutker/thermoctl/internal/errors"

const (
	ErrInvalidBroker = errors.ErrorCode("cloud_invalid_broker")
	ErrInvalidQoS    = errors.ErrorCode("cloud_invalid_qos")
	ErrLoadCA        = errors.ErrorCode("cloud_load_ca_failed")
	ErrSubscribe     = errors.ErrorCode("cloud_subscribe_failed")
	ErrClose         = errors.ErrShutdownFailed
)

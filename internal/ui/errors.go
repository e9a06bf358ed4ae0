package ui

import "codeberg.org/mutker/thermoctl/internal/errors"

const (
	ErrOpenChip       = errors.ErrorCode("ui_open_chip_failed")
	ErrInitButtonA    = errors.ErrorCode("ui_init_button_a_failed")
	ErrInitButtonB    = errors.ErrorCode("ui_init_button_b_failed")
	ErrInitStatusLED  = errors.ErrorCode("ui_init_status_led_failed")
	ErrSetStatus      = errors.ErrorCode("ui_set_status_failed")
	ErrUnexpectedEdge = errors.ErrorCode("ui_unexpected_edge")
	ErrClose          = errors.ErrShutdownFailed
)

package controller

import (
	"codeberg.org/mutker/thermoctl/internal/exitcode"
	"codeberg.org/mutker/thermoctl/internal/ui"
)

// Expiration is a delivered timer tick that must be acknowledged once.
type Expiration interface {
	Consume() error
}

type TickEvent struct {
	Timer Expiration
}

type ButtonEvent struct {
	Button ui.Button
}

type ConnectionEvent struct {
	Connected bool
}

type PropertyEvent struct {
	UploadEnabled bool
}

type CommandEvent struct {
	Message string
}

type FatalEvent struct {
	Reason exitcode.Code
}

package ui

import "codeberg.org/mutker/thermoctl/internal/logger"

type headless struct {
	log    logger.Logger
	status bool
}

// NewHeadless returns a UI without buttons. The indicator is only logged.
func NewHeadless(log logger.Logger) Interface {
	return &headless{log: log}
}

func (h *headless) SetStatus(on bool) error {
	h.status = on
	h.log.Info().Bool("on", on).Msg("Status indicator")
	return nil
}

func (h *headless) Close() error {
	return nil
}

package ui

import (
	"sync"
	"time"

	"codeberg.org/mutker/thermoctl/internal/errors"
	"codeberg.org/mutker/thermoctl/internal/logger"
	gpiod "github.com/warthog618/go-gpiocdev"
)

const defaultDebounce = 50 * time.Millisecond

type GPIOConfig struct {
	Chip      string
	ButtonA   int
	ButtonB   int
	StatusLED int
	ActiveLow bool
	Debounce  time.Duration
}

type line interface {
	SetValue(value int) error
	Close() error
}

// lineRequester is the subset of a GPIO chip the driver needs.
type lineRequester interface {
	RequestInput(offset int, pullUp bool, handler func(gpiod.LineEvent)) (line, error)
	RequestOutput(offset int, value int) (line, error)
	Close() error
}

type chipRequester struct {
	chip *gpiod.Chip
}

func (c chipRequester) RequestInput(offset int, pullUp bool, handler func(gpiod.LineEvent)) (line, error) {
	opts := []gpiod.LineReqOption{
		gpiod.AsInput,
		gpiod.WithBothEdges,
		gpiod.WithEventHandler(handler),
	}
	if pullUp {
		opts = append(opts, gpiod.WithPullUp)
	}
	return c.chip.RequestLine(offset, opts...)
}

func (c chipRequester) RequestOutput(offset int, value int) (line, error) {
	return c.chip.RequestLine(offset, gpiod.AsOutput(value))
}

func (c chipRequester) Close() error {
	return c.chip.Close()
}

type gpioUI struct {
	mu      sync.Mutex
	chip    lineRequester
	buttons []line
	led     line
	log     logger.Logger
}

// NewGPIO requests both button lines and the status LED line on the
// configured chip. On failure everything already requested is released and
// the error carries the code of the failing resource.
func NewGPIO(cfg GPIOConfig, h Handlers, log logger.Logger) (Interface, error) {
	chip, err := gpiod.NewChip(cfg.Chip, gpiod.WithConsumer("thermoctl"))
	if err != nil {
		return nil, errors.New().Wrap(ErrOpenChip, err)
	}

	return newGPIO(chipRequester{chip: chip}, cfg, h, log)
}

func newGPIO(chip lineRequester, cfg GPIOConfig, h Handlers, log logger.Logger) (Interface, error) {
	errFactory := errors.New()
	g := &gpioUI{chip: chip, log: log}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	inputs := []struct {
		button Button
		offset int
		code   errors.ErrorCode
	}{
		{ButtonA, cfg.ButtonA, ErrInitButtonA},
		{ButtonB, cfg.ButtonB, ErrInitButtonB},
	}

	for _, in := range inputs {
		handler := newButtonHandler(in.button, cfg.ActiveLow, debounce, h)
		l, err := chip.RequestInput(in.offset, cfg.ActiveLow, handler.handle)
		if err != nil {
			g.release()
			return nil, errFactory.WithData(in.code, struct {
				Offset int
				Error  string
			}{
				Offset: in.offset,
				Error:  err.Error(),
			})
		}
		g.buttons = append(g.buttons, l)
	}

	led, err := chip.RequestOutput(cfg.StatusLED, 0)
	if err != nil {
		g.release()
		return nil, errFactory.WithData(ErrInitStatusLED, struct {
			Offset int
			Error  string
		}{
			Offset: cfg.StatusLED,
			Error:  err.Error(),
		})
	}
	g.led = led

	log.Debug().
		Str("chip", cfg.Chip).
		Int("button_a", cfg.ButtonA).
		Int("button_b", cfg.ButtonB).
		Int("status_led", cfg.StatusLED).
		Msg("GPIO user interface initialized")

	return g, nil
}

func (g *gpioUI) SetStatus(on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.led == nil {
		return errors.New().WithMessage(ErrSetStatus, "status LED released")
	}

	value := 0
	if on {
		value = 1
	}
	if err := g.led.SetValue(value); err != nil {
		return errors.New().Wrap(ErrSetStatus, err)
	}
	return nil
}

func (g *gpioUI) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.release(); err != nil {
		return errors.New().Wrap(ErrClose, err)
	}
	return nil
}

// release closes every requested line and then the chip. Callers hold mu
// or own g exclusively.
func (g *gpioUI) release() error {
	var errs []error

	for _, l := range g.buttons {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	g.buttons = nil

	if g.led != nil {
		if err := g.led.Close(); err != nil {
			errs = append(errs, err)
		}
		g.led = nil
	}

	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, err)
		}
		g.chip = nil
	}

	return errors.Join(errs...)
}

// buttonHandler turns raw edges into debounced presses. gpiocdev delivers
// the events of one line request from a single goroutine. The raw level is
// always tracked; only presses are subject to the debounce window.
type buttonHandler struct {
	button    Button
	activeLow bool
	debounce  time.Duration
	handlers  Handlers
	now       func() time.Time
	pressed   bool
	lastPress time.Time
}

func newButtonHandler(b Button, activeLow bool, debounce time.Duration, h Handlers) *buttonHandler {
	return &buttonHandler{
		button:    b,
		activeLow: activeLow,
		debounce:  debounce,
		handlers:  h,
		now:       time.Now,
	}
}

func (b *buttonHandler) handle(evt gpiod.LineEvent) {
	if evt.Type != gpiod.LineEventRisingEdge && evt.Type != gpiod.LineEventFallingEdge {
		b.handlers.fail(b.button, errors.New().WithData(ErrUnexpectedEdge, struct {
			Offset int
			Type   int
		}{
			Offset: evt.Offset,
			Type:   int(evt.Type),
		}))
		return
	}

	pressed := isPressedFromEdge(evt.Type, b.activeLow)
	if pressed == b.pressed {
		return
	}
	b.pressed = pressed

	if !pressed {
		return
	}

	now := b.now()
	if now.Sub(b.lastPress) < b.debounce {
		return
	}
	b.lastPress = now

	b.handlers.press(b.button)
}

func isPressedFromEdge(t gpiod.LineEventType, activeLow bool) bool {
	if activeLow {
		return t == gpiod.LineEventFallingEdge
	}
	return t == gpiod.LineEventRisingEdge
}

// Package app sequences the lifecycle of thermoctl: ordered acquisition of
// every source, the reactive run loop, and release in reverse order.
package app

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/thermoctl/internal/cloud"
	"codeberg.org/mutker/thermoctl/internal/config"
	"codeberg.org/mutker/thermoctl/internal/controller"
	"codeberg.org/mutker/thermoctl/internal/errors"
	"codeberg.org/mutker/thermoctl/internal/eventloop"
	"codeberg.org/mutker/thermoctl/internal/exitcode"
	"codeberg.org/mutker/thermoctl/internal/logger"
	"codeberg.org/mutker/thermoctl/internal/metrics"
	"codeberg.org/mutker/thermoctl/internal/pid"
	"codeberg.org/mutker/thermoctl/internal/sensor"
	"codeberg.org/mutker/thermoctl/internal/ui"
)

type Option func(*App)

// WithFactories replaces the constructors of the external collaborators.
func WithFactories(f Factories) Option {
	return func(a *App) {
		a.factories = f
	}
}

// WithSignals feeds signals from ch instead of the operating system.
func WithSignals(ch <-chan os.Signal) Option {
	return func(a *App) {
		a.signals = ch
	}
}

func WithLogger(log logger.Logger) Option {
	return func(a *App) {
		a.log = log
	}
}

type App struct {
	cfg       *config.Config
	factories Factories
	log       logger.Logger
	exit      exitcode.Reason

	// Cancelled when shutdown starts so blocked posts give up.
	ctx    context.Context
	cancel context.CancelFunc

	signals      <-chan os.Signal
	stopNotify   func()
	signalDone   chan struct{}
	signalExited chan struct{}

	pidFile string
	metrics metrics.MetricsCollector
	loop    *eventloop.Loop
	loopRef atomic.Pointer[eventloop.Loop]
	timer   *eventloop.Timer
	ui      ui.Interface
	sensor  sensor.Source
	cloud   cloud.Channel
	ctrl    *controller.Controller
}

func New(cfg *config.Config, opts ...Option) *App {
	a := &App{
		cfg:       cfg,
		factories: DefaultFactories(),
		log:       logger.New().With("app"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	return a
}

// Run starts every source, runs the loop until an exit reason is recorded
// and releases everything. The returned code is the process exit status.
func (a *App) Run() exitcode.Code {
	code := a.start()
	if code == exitcode.Success {
		a.run()
		code = a.exit.Get()
	}

	if err := a.shutdown(); err != nil {
		a.log.Error().Err(err).Msg("Failed to release one or more sources")
	}

	a.log.Info().Str("reason", code.String()).Int("code", code.Int()).Msg("Exiting")

	return code
}

func (a *App) fail(code exitcode.Code, err error, msg string) exitcode.Code {
	a.log.Error().Err(err).Str("exit", code.String()).Msg(msg)
	return code
}

func (a *App) start() exitcode.Code {
	cfg := a.cfg

	// Termination requests are honoured from here on, even before the loop
	// exists; the reason is picked up once startup completes.
	a.installSignals()

	pidFile := cfg.PIDFile
	if pidFile == "" {
		pidFile = pid.DefaultPath()
	}
	if err := pid.Write(pidFile); err != nil {
		if errors.HasCode(err, errors.ErrAlreadyRunning) {
			return a.fail(exitcode.AlreadyRunning, err, "Another instance is already running")
		}
		return a.fail(exitcode.InitPIDFile, err, "Failed to write PID file")
	}
	a.pidFile = pidFile

	collector, err := a.factories.NewMetrics(metricsConfig(cfg.Metrics), a.log.With("metrics"))
	if err != nil {
		return a.fail(exitcode.InitMetrics, err, "Failed to initialize metrics")
	}
	a.metrics = collector

	loop, err := eventloop.New(cfg.QueueSize)
	if err != nil {
		return a.fail(exitcode.InitEventLoop, err, "Failed to create event loop")
	}
	a.loop = loop
	a.loopRef.Store(loop)

	interval := time.Duration(cfg.Interval) * time.Second
	timer, err := eventloop.NewPeriodicTimer(loop, interval, func(t *eventloop.Timer) eventloop.Event {
		return controller.TickEvent{Timer: t}
	})
	if err != nil {
		return a.fail(exitcode.InitTelemetryTimer, err, "Failed to arm telemetry timer")
	}
	a.timer = timer

	u, err := a.factories.NewUI(cfg.UI, ui.Handlers{
		OnPress: func(b ui.Button) { a.post(controller.ButtonEvent{Button: b}) },
		OnError: func(b ui.Button, err error) {
			a.log.Error().Err(err).Str("button", b.String()).Msg("Button read failed")
			a.post(controller.FatalEvent{Reason: exitcode.ButtonRead})
		},
	}, a.log.With("ui"))
	if err != nil {
		return a.fail(uiExitCode(err), err, "Failed to initialize user interface")
	}
	a.ui = u

	if err := u.SetStatus(false); err != nil {
		return a.fail(exitcode.InitStatusLED, err, "Failed to set initial status indicator")
	}

	src, err := a.factories.NewSensor(cfg.Sensor, a.log.With("sensor"))
	if err != nil {
		return a.fail(exitcode.InitSensor, err, "Failed to create sensor")
	}
	if err := src.Open(); err != nil {
		return a.fail(exitcode.InitSensor, err, "Failed to open sensor")
	}
	a.sensor = src

	ch, err := a.factories.NewCloud(cloudConfig(cfg.MQTT), cloud.Callbacks{
		OnConnectionChanged:    func(c bool) { a.post(controller.ConnectionEvent{Connected: c}) },
		OnUploadEnabledChanged: func(v bool) { a.post(controller.PropertyEvent{UploadEnabled: v}) },
		OnDisplayAlert:         func(m string) { a.post(controller.CommandEvent{Message: m}) },
		OnFatal:                func(c exitcode.Code) { a.post(controller.FatalEvent{Reason: c}) },
	}, a.log.With("cloud"))
	if err != nil {
		return a.fail(exitcode.InitCloud, err, "Failed to initialize cloud channel")
	}
	a.cloud = ch

	if !ch.IsConnected() {
		a.log.Warn().Str("broker", cfg.MQTT.Broker).Msg("Network is not ready, telemetry starts once the broker connects")
	}

	ctrl, err := controller.New(controller.Options{
		SerialNumber:       cfg.SerialNumber,
		InitialTemperature: cfg.Sensor.InitialTemperature,
		Cloud:              ch,
		UI:                 u,
		Sampler:            src,
		Recorder:           collector,
		Exit:               &a.exit,
		Logger:             a.log.With("controller"),
	})
	if err != nil {
		return a.fail(exitcode.Config, err, "Failed to create controller")
	}
	a.ctrl = ctrl

	a.log.Info().
		Int("interval", cfg.Interval).
		Str("serial_number", cfg.SerialNumber).
		Str("ui", cfg.UI.Driver).
		Str("sensor", cfg.Sensor.Driver).
		Msg("Started")

	return exitcode.Success
}

// post hands an event from a source goroutine to the loop.
func (a *App) post(ev eventloop.Event) {
	loop := a.loopRef.Load()
	if loop == nil {
		return
	}

	if err := loop.Post(a.ctx, ev); err != nil && !errors.Is(err, eventloop.ErrClosed) && !errors.Is(err, context.Canceled) {
		a.log.Warn().Err(err).Msg("Failed to post event")
	}
}

func (a *App) run() {
	for !a.exit.IsSet() {
		err := a.loop.RunOnce(a.ctrl)
		if err == nil || errors.Is(err, eventloop.ErrInterrupted) {
			continue
		}

		a.log.Error().Err(err).Msg("Event loop failed")
		a.exit.Set(exitcode.MainEventLoopFail)
	}
}

// shutdown releases whatever start acquired. Every release is attempted.
func (a *App) shutdown() error {
	var errs []error
	release := func(name string, fn func() error) {
		if err := fn(); err != nil {
			a.log.Warn().Err(err).Str("source", name).Msg("Release failed")
			errs = append(errs, err)
		}
	}

	a.cancel()
	a.ctrl = nil

	if a.timer != nil {
		release("timer", a.timer.Dispose)
	}
	if a.cloud != nil {
		release("cloud", a.cloud.Close)
	}
	if a.ui != nil {
		release("ui", a.ui.Close)
	}
	if a.loop != nil {
		release("loop", a.loop.Close)
	}
	if a.sensor != nil {
		release("sensor", a.sensor.Close)
	}
	if a.metrics != nil {
		release("metrics", a.metrics.Close)
	}
	a.stopSignals()
	if a.pidFile != "" {
		release("pid", func() error { return pid.Remove(a.pidFile) })
	}

	if len(errs) > 0 {
		return errors.New().Wrap(errors.ErrReleaseSources, errors.Join(errs...))
	}
	return nil
}

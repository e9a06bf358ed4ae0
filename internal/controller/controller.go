// Package controller owns the device state and reconciles it with the
// local UI and the remote channel. Every handler runs on the dispatch loop,
// one at a time, and makes at most one call to the remote channel.
package controller

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/thermoctl/internal/cloud"
	"codeberg.org/mutker/thermoctl/internal/errors"
	"codeberg.org/mutker/thermoctl/internal/exitcode"
	"codeberg.org/mutker/thermoctl/internal/logger"
	"codeberg.org/mutker/thermoctl/internal/metrics"
	"codeberg.org/mutker/thermoctl/internal/sensor"
	"codeberg.org/mutker/thermoctl/internal/ui"
)

const recordTimeout = time.Second

// Cloud is the outbound side of the remote channel.
type Cloud interface {
	SendTelemetry(t cloud.Telemetry, at time.Time) cloud.Result
	SendDeviceMoved(at time.Time) cloud.Result
	SendUploadEnabledChanged(enabled bool) cloud.Result
	SendDeviceDetails(serial string) cloud.Result
}

// Indicator shows whether telemetry upload is enabled.
type Indicator interface {
	SetStatus(on bool) error
}

// Sampler yields the next temperature measurement.
type Sampler interface {
	Read() (sensor.Reading, error)
}

// Recorder journals telemetry attempts.
type Recorder interface {
	Record(ctx context.Context, snapshot *metrics.MetricsSnapshot) error
}

type Options struct {
	SerialNumber       string
	InitialTemperature float64

	Cloud    Cloud
	UI       Indicator
	Sampler  Sampler
	Recorder Recorder
	Exit     *exitcode.Reason
	Logger   logger.Logger
}

type Controller struct {
	state    DeviceState
	exit     *exitcode.Reason
	cloud    Cloud
	ui       Indicator
	sampler  Sampler
	recorder Recorder
	log      logger.Logger
	now      func() time.Time
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, *metrics.MetricsSnapshot) error {
	return nil
}

func New(opts Options) (*Controller, error) {
	errFactory := errors.New()

	if opts.SerialNumber == "" {
		return nil, errFactory.New(errors.ErrInvalidSerialNumber)
	}
	if opts.Cloud == nil || opts.UI == nil || opts.Sampler == nil || opts.Exit == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "controller requires cloud, ui, sampler and exit reason")
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.New()
	}

	return &Controller{
		state: DeviceState{
			Connection:      Disconnected,
			SerialNumber:    opts.SerialNumber,
			LastMeasurement: opts.InitialTemperature,
		},
		exit:     opts.Exit,
		cloud:    opts.Cloud,
		ui:       opts.UI,
		sampler:  opts.Sampler,
		recorder: recorder,
		log:      log,
		now:      time.Now,
	}, nil
}

// State returns a copy of the current device state.
func (c *Controller) State() DeviceState {
	return c.state
}

// Dispatch routes one loop event to its handler.
func (c *Controller) Dispatch(ev any) {
	switch e := ev.(type) {
	case TickEvent:
		c.OnTimerTick(e.Timer)
	case ButtonEvent:
		c.OnButtonPress(e.Button)
	case ConnectionEvent:
		c.OnRemoteConnectionChanged(e.Connected)
	case PropertyEvent:
		c.OnRemotePropertyChanged(e.UploadEnabled)
	case CommandEvent:
		c.OnRemoteCommandInvoked(e.Message)
	case FatalEvent:
		c.OnFatalCondition(e.Reason)
	default:
		c.log.Warn().Str("type", fmt.Sprintf("%T", ev)).Msg("Ignoring unknown event")
	}
}

func (c *Controller) OnTimerTick(timer Expiration) {
	if err := timer.Consume(); err != nil {
		c.log.Error().Err(err).Msg("Failed to consume telemetry timer expiration")
		c.OnFatalCondition(exitcode.TelemetryTimerConsume)
		return
	}

	if c.state.Connection != Connected {
		return
	}

	if !c.state.UploadEnabled {
		c.log.Info().Msg("Telemetry upload disabled, skipping")
		return
	}

	reading, err := c.sampler.Read()
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to read sensor")
		return
	}
	c.state.LastMeasurement = reading.Temperature

	telemetry := cloud.Telemetry{Temperature: reading.Temperature}
	if reading.HasHumidity {
		humidity := reading.Humidity
		telemetry.Humidity = &humidity
	}

	at := c.now()
	result := c.cloud.SendTelemetry(telemetry, at)
	if result != cloud.ResultOK {
		c.log.Warn().Str("result", result.String()).Msg("Failed to send telemetry")
	} else {
		c.log.Debug().Float64("temperature", reading.Temperature).Msg("Telemetry sent")
	}

	c.record(at, telemetry, result)
}

func (c *Controller) record(at time.Time, t cloud.Telemetry, result cloud.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := c.recorder.Record(ctx, &metrics.MetricsSnapshot{
		Timestamp: at,
		Serial:    c.state.SerialNumber,
		Reading: metrics.ReadingMetrics{
			Temperature: t.Temperature,
			Humidity:    t.Humidity,
		},
		State: metrics.StateMetrics{
			Connected:     c.state.Connection == Connected,
			UploadEnabled: c.state.UploadEnabled,
		},
		Result: result.String(),
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to record telemetry attempt")
	}
}

func (c *Controller) OnButtonPress(b ui.Button) {
	switch b {
	case ui.ButtonA:
		c.setUploadEnabled(!c.state.UploadEnabled)
	case ui.ButtonB:
		if result := c.cloud.SendDeviceMoved(c.now()); result != cloud.ResultOK {
			c.log.Warn().Str("result", result.String()).Msg("Failed to send device moved event")
		}
	default:
		c.log.Warn().Int("button", int(b)).Msg("Ignoring unknown button")
	}
}

func (c *Controller) OnRemoteConnectionChanged(connected bool) {
	status := Disconnected
	if connected {
		status = Connected
	}

	if status != c.state.Connection {
		c.log.Info().Str("status", status.String()).Msg("Connection status changed")
	}
	c.state.Connection = status

	if !connected {
		return
	}

	if result := c.cloud.SendDeviceDetails(c.state.SerialNumber); result != cloud.ResultOK {
		c.log.Warn().Str("result", result.String()).Msg("Failed to send device details")
	}
}

func (c *Controller) OnRemotePropertyChanged(enabled bool) {
	c.setUploadEnabled(enabled)
}

func (c *Controller) OnRemoteCommandInvoked(message string) {
	c.log.Warn().Str("message", message).Msg("ALERT")
}

func (c *Controller) OnFatalCondition(reason exitcode.Code) {
	if !c.exit.Set(reason) {
		c.log.Warn().
			Str("reason", reason.String()).
			Str("kept", c.exit.Get().String()).
			Msg("Exit reason already set, discarding")
		return
	}
	c.log.Error().Str("reason", reason.String()).Msg("Fatal condition, stopping")
}

// setUploadEnabled is the only writer of UploadEnabled. The indicator and
// the reported property follow every change; their failures are logged and
// do not roll back the local value.
func (c *Controller) setUploadEnabled(enabled bool) {
	c.state.UploadEnabled = enabled
	c.log.Info().Bool("enabled", enabled).Msg("Telemetry upload toggled")

	if err := c.ui.SetStatus(enabled); err != nil {
		c.log.Warn().Err(err).Msg("Failed to update status indicator")
	}

	if result := c.cloud.SendUploadEnabledChanged(enabled); result != cloud.ResultOK {
		c.log.Warn().Str("result", result.String()).Msg("Failed to report telemetry upload state")
	}
}

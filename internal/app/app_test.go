package app

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"codeberg.org/mutker/thermoctl/internal/cloud"
	"codeberg.org/mutker/thermoctl/internal/config"
	"codeberg.org/mutker/thermoctl/internal/errors"
	"codeberg.org/mutker/thermoctl/internal/exitcode"
	"codeberg.org/mutker/thermoctl/internal/logger"
	"codeberg.org/mutker/thermoctl/internal/metrics"
	"codeberg.org/mutker/thermoctl/internal/sensor"
	"codeberg.org/mutker/thermoctl/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeUI struct {
	j   *journal
	err error
}

func (f *fakeUI) SetStatus(on bool) error {
	f.j.add("ui.status=" + strconv.FormatBool(on))
	return f.err
}

func (f *fakeUI) Close() error {
	f.j.add("ui.close")
	return nil
}

type fakeSensor struct {
	j       *journal
	openErr error
}

func (f *fakeSensor) Open() error {
	f.j.add("sensor.open")
	return f.openErr
}

func (f *fakeSensor) Read() (sensor.Reading, error) {
	return sensor.Reading{Temperature: 20}, nil
}

func (f *fakeSensor) Close() error {
	f.j.add("sensor.close")
	return nil
}

type fakeChannel struct {
	j         *journal
	closeErr  error
	connected bool
}

func (f *fakeChannel) IsConnected() bool {
	return f.connected
}

func (f *fakeChannel) SendTelemetry(cloud.Telemetry, time.Time) cloud.Result {
	f.j.add("cloud.telemetry")
	return cloud.ResultOK
}

func (f *fakeChannel) SendDeviceMoved(time.Time) cloud.Result {
	f.j.add("cloud.moved")
	return cloud.ResultOK
}

func (f *fakeChannel) SendUploadEnabledChanged(enabled bool) cloud.Result {
	f.j.add("cloud.echo=" + strconv.FormatBool(enabled))
	return cloud.ResultOK
}

func (f *fakeChannel) SendDeviceDetails(serial string) cloud.Result {
	f.j.add("cloud.details=" + serial)
	return cloud.ResultOK
}

func (f *fakeChannel) Close() error {
	f.j.add("cloud.close")
	return f.closeErr
}

type harness struct {
	j         *journal
	cfg       *config.Config
	factories Factories
	signals   chan os.Signal

	uiErr        error
	statusErr    error
	sensorErr    error
	sensorOpen   error
	cloudErr     error
	cloudClose   error
	cloudOnline  bool
	uiHandlers   chan ui.Handlers
	cloudHandler chan cloud.Callbacks
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		j: &journal{},
		cfg: &config.Config{
			Interval:     3600,
			SerialNumber: "TEMPMON-01234",
			QueueSize:    8,
			PIDFile:      filepath.Join(t.TempDir(), "thermoctl.pid"),
			UI:           config.UIConfig{Driver: config.UIDriverNone},
			Sensor:       config.SensorConfig{Driver: config.SensorDriverSimulated, InitialTemperature: 50},
			MQTT:         config.MQTTConfig{Broker: "tcp://localhost:1883", QoS: 1},
		},
		signals:      make(chan os.Signal, 1),
		uiHandlers:   make(chan ui.Handlers, 1),
		cloudHandler: make(chan cloud.Callbacks, 1),
	}

	h.factories = Factories{
		NewMetrics: func(cfg metrics.Config, log logger.Logger) (metrics.MetricsCollector, error) {
			h.j.add("metrics.open")
			return metrics.NewService(cfg, log)
		},
		NewUI: func(_ config.UIConfig, hs ui.Handlers, _ logger.Logger) (ui.Interface, error) {
			h.j.add("ui.open")
			if h.uiErr != nil {
				return nil, h.uiErr
			}
			h.uiHandlers <- hs
			return &fakeUI{j: h.j, err: h.statusErr}, nil
		},
		NewSensor: func(_ config.SensorConfig, _ logger.Logger) (sensor.Source, error) {
			if h.sensorErr != nil {
				return nil, h.sensorErr
			}
			return &fakeSensor{j: h.j, openErr: h.sensorOpen}, nil
		},
		NewCloud: func(_ cloud.Config, cb cloud.Callbacks, _ logger.Logger) (cloud.Channel, error) {
			h.j.add("cloud.open")
			if h.cloudErr != nil {
				return nil, h.cloudErr
			}
			h.cloudHandler <- cb
			return &fakeChannel{j: h.j, closeErr: h.cloudClose, connected: h.cloudOnline}, nil
		},
	}

	return h
}

func (h *harness) app() *App {
	return New(h.cfg, WithFactories(h.factories), WithSignals(h.signals), WithLogger(logger.New()))
}

// start runs the app in the background and returns its exit code channel.
func (h *harness) start(t *testing.T) <-chan exitcode.Code {
	t.Helper()

	done := make(chan exitcode.Code, 1)
	a := h.app()
	go func() { done <- a.Run() }()

	return done
}

func wait(t *testing.T, done <-chan exitcode.Code) exitcode.Code {
	t.Helper()

	select {
	case code := <-done:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
		return exitcode.Success
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()

	var buf syncBuffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(io.Discard) })

	return &buf
}

func TestNetworkNotReadyWarning(t *testing.T) {
	tests := []struct {
		name   string
		online bool
		warned bool
	}{
		{"offline at startup", false, true},
		{"online at startup", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureLogs(t)

			h := newHarness(t)
			h.cloudOnline = tt.online
			done := h.start(t)
			<-h.cloudHandler

			h.signals <- syscall.SIGTERM
			assert.Equal(t, exitcode.TermHandlerSigTerm, wait(t, done))

			assert.Equal(t, tt.warned, strings.Contains(logs.String(), "Network is not ready"))
		})
	}
}

func TestSigTermDuringStartup(t *testing.T) {
	h := newHarness(t)
	a := h.app()

	openMetrics := a.factories.NewMetrics
	a.factories.NewMetrics = func(cfg metrics.Config, log logger.Logger) (metrics.MetricsCollector, error) {
		h.signals <- syscall.SIGTERM
		assert.Eventually(t, a.exit.IsSet, time.Second, time.Millisecond)
		return openMetrics(cfg, log)
	}

	assert.Equal(t, exitcode.TermHandlerSigTerm, a.Run())
	assert.NoFileExists(t, h.cfg.PIDFile)
	assert.Contains(t, h.j.list(), "cloud.close")
}

func TestSigTermStopsAndReleasesInOrder(t *testing.T) {
	h := newHarness(t)
	done := h.start(t)

	cb := <-h.cloudHandler
	cb.OnConnectionChanged(true)
	require.Eventually(t, func() bool {
		return contains(h.j.list(), "cloud.details=TEMPMON-01234")
	}, time.Second, 5*time.Millisecond)

	h.signals <- syscall.SIGTERM
	assert.Equal(t, exitcode.TermHandlerSigTerm, wait(t, done))

	assert.Equal(t, []string{
		"metrics.open",
		"ui.open",
		"ui.status=false",
		"sensor.open",
		"cloud.open",
		"cloud.details=TEMPMON-01234",
		"cloud.close",
		"ui.close",
		"sensor.close",
	}, h.j.list())

	_, err := os.Stat(h.cfg.PIDFile)
	assert.True(t, os.IsNotExist(err))
}

func TestSigHupDoesNotStop(t *testing.T) {
	h := newHarness(t)
	done := h.start(t)
	<-h.cloudHandler

	h.signals <- syscall.SIGHUP

	select {
	case code := <-done:
		t.Fatalf("app stopped on SIGHUP with %s", code)
	case <-time.After(50 * time.Millisecond):
	}

	h.signals <- syscall.SIGINT
	assert.Equal(t, exitcode.TermHandlerSigTerm, wait(t, done))
}

func TestEventsReachController(t *testing.T) {
	h := newHarness(t)
	done := h.start(t)

	handlers := <-h.uiHandlers
	cb := <-h.cloudHandler

	handlers.OnPress(ui.ButtonA)
	cb.OnUploadEnabledChanged(false)
	handlers.OnPress(ui.ButtonB)

	require.Eventually(t, func() bool {
		return contains(h.j.list(), "cloud.moved")
	}, time.Second, 5*time.Millisecond)

	h.signals <- syscall.SIGTERM
	wait(t, done)

	entries := h.j.list()
	assert.Equal(t, []string{
		"ui.status=true", "cloud.echo=true",
		"ui.status=false", "cloud.echo=false",
		"cloud.moved",
	}, entries[5:10])
}

func TestRuntimeFatalFromCloud(t *testing.T) {
	h := newHarness(t)
	done := h.start(t)

	cb := <-h.cloudHandler
	cb.OnFatal(exitcode.CloudSubscribe)

	assert.Equal(t, exitcode.CloudSubscribe, wait(t, done))
}

func TestButtonReadFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	done := h.start(t)

	handlers := <-h.uiHandlers
	<-h.cloudHandler
	handlers.OnError(ui.ButtonA, stderrors.New("edge read failed"))

	assert.Equal(t, exitcode.ButtonRead, wait(t, done))
}

func TestStartupFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		code    exitcode.Code
		journal []string
	}{
		{
			name:    "queue size",
			setup:   func(h *harness) { h.cfg.QueueSize = 0 },
			code:    exitcode.InitEventLoop,
			journal: []string{"metrics.open"},
		},
		{
			name:    "interval",
			setup:   func(h *harness) { h.cfg.Interval = 0 },
			code:    exitcode.InitTelemetryTimer,
			journal: []string{"metrics.open"},
		},
		{
			name: "metrics",
			setup: func(h *harness) {
				h.cfg.Metrics = config.MetricsConfig{Enabled: true, Backend: "prometheus"}
			},
			code:    exitcode.InitMetrics,
			journal: []string{"metrics.open"},
		},
		{
			name:    "ui chip",
			setup:   func(h *harness) { h.uiErr = errors.New().New(ui.ErrOpenChip) },
			code:    exitcode.InitUIChip,
			journal: []string{"metrics.open", "ui.open"},
		},
		{
			name:    "button B",
			setup:   func(h *harness) { h.uiErr = errors.New().New(ui.ErrInitButtonB) },
			code:    exitcode.InitButtonB,
			journal: []string{"metrics.open", "ui.open"},
		},
		{
			name:    "status LED",
			setup:   func(h *harness) { h.statusErr = stderrors.New("led") },
			code:    exitcode.InitStatusLED,
			journal: []string{"metrics.open", "ui.open", "ui.status=false", "ui.close"},
		},
		{
			name:    "sensor",
			setup:   func(h *harness) { h.sensorOpen = stderrors.New("no device") },
			code:    exitcode.InitSensor,
			journal: []string{"metrics.open", "ui.open", "ui.status=false", "sensor.open", "ui.close"},
		},
		{
			name:  "cloud",
			setup: func(h *harness) { h.cloudErr = errors.New().New(cloud.ErrInvalidBroker) },
			code:  exitcode.InitCloud,
			journal: []string{
				"metrics.open", "ui.open", "ui.status=false", "sensor.open", "cloud.open",
				"ui.close", "sensor.close",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			assert.Equal(t, tt.code, h.app().Run())
			assert.Equal(t, tt.journal, h.j.list())

			_, err := os.Stat(h.cfg.PIDFile)
			assert.True(t, os.IsNotExist(err), "PID file left behind")
		})
	}
}

func TestAlreadyRunning(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.cfg.PIDFile, []byte(strconv.Itoa(os.Getppid())), 0o600))

	assert.Equal(t, exitcode.AlreadyRunning, h.app().Run())
	assert.Empty(t, h.j.list())

	// The other instance's PID file is left alone.
	_, err := os.Stat(h.cfg.PIDFile)
	assert.NoError(t, err)
}

func TestShutdownCollectsReleaseFailures(t *testing.T) {
	h := newHarness(t)
	h.cloudClose = stderrors.New("disconnect failed")
	done := h.start(t)
	<-h.cloudHandler

	h.signals <- syscall.SIGTERM
	assert.Equal(t, exitcode.TermHandlerSigTerm, wait(t, done))

	entries := h.j.list()
	assert.Contains(t, entries, "ui.close")
	assert.Contains(t, entries, "sensor.close")
}

func TestUIExitCode(t *testing.T) {
	assert.Equal(t, exitcode.InitButtonA, uiExitCode(errors.New().New(ui.ErrInitButtonA)))
	assert.Equal(t, exitcode.InitStatusLED, uiExitCode(errors.New().New(ui.ErrInitStatusLED)))
	assert.Equal(t, exitcode.InitUIChip, uiExitCode(stderrors.New("boom")))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

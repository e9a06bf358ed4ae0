package app

import (
	"time"

	"codeberg.org/mutker/thermoctl/internal/cloud"
	"codeberg.org/mutker/thermoctl/internal/config"
	"codeberg.org/mutker/thermoctl/internal/errors"
	"codeberg.org/mutker/thermoctl/internal/exitcode"
	"codeberg.org/mutker/thermoctl/internal/logger"
	"codeberg.org/mutker/thermoctl/internal/metrics"
	"codeberg.org/mutker/thermoctl/internal/sensor"
	"codeberg.org/mutker/thermoctl/internal/ui"
)

// Factories create the external collaborators. Tests replace them.
type Factories struct {
	NewMetrics func(cfg metrics.Config, log logger.Logger) (metrics.MetricsCollector, error)
	NewUI      func(cfg config.UIConfig, h ui.Handlers, log logger.Logger) (ui.Interface, error)
	NewSensor  func(cfg config.SensorConfig, log logger.Logger) (sensor.Source, error)
	NewCloud   func(cfg cloud.Config, cb cloud.Callbacks, log logger.Logger) (cloud.Channel, error)
}

func DefaultFactories() Factories {
	return Factories{
		NewMetrics: metrics.NewService,
		NewUI:      newUI,
		NewSensor:  newSensor,
		NewCloud:   newCloud,
	}
}

func newCloud(cfg cloud.Config, cb cloud.Callbacks, log logger.Logger) (cloud.Channel, error) {
	m, err := cloud.NewMQTT(cfg, cb, log)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func newUI(cfg config.UIConfig, h ui.Handlers, log logger.Logger) (ui.Interface, error) {
	if cfg.Driver == config.UIDriverGPIO {
		return ui.NewGPIO(ui.GPIOConfig{
			Chip:      cfg.Chip,
			ButtonA:   cfg.ButtonA,
			ButtonB:   cfg.ButtonB,
			StatusLED: cfg.StatusLED,
			ActiveLow: cfg.ActiveLow,
			Debounce:  time.Duration(cfg.DebounceMs) * time.Millisecond,
		}, h, log)
	}
	return ui.NewHeadless(log), nil
}

func newSensor(cfg config.SensorConfig, log logger.Logger) (sensor.Source, error) {
	if cfg.Driver == config.SensorDriverModbus {
		m, err := sensor.NewModbus(sensor.ModbusConfig{
			Mode:     cfg.Mode,
			Address:  cfg.Address,
			BaudRate: cfg.BaudRate,
			DataBits: cfg.DataBits,
			Parity:   cfg.Parity,
			StopBits: cfg.StopBits,
			SlaveID:  byte(cfg.SlaveID),
			Register: uint16(cfg.Register),
			Scale:    cfg.Scale,
			Timeout:  time.Duration(cfg.TimeoutMs) * time.Millisecond,
		}, log)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return sensor.NewSimulated(cfg.InitialTemperature), nil
}

func metricsConfig(cfg config.MetricsConfig) metrics.Config {
	return metrics.Config{
		Enabled:      cfg.Enabled,
		Backend:      cfg.Backend,
		DBPath:       cfg.DBPath,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		InfluxURL:    cfg.InfluxURL,
		InfluxToken:  cfg.InfluxToken,
		InfluxOrg:    cfg.InfluxOrg,
		InfluxBucket: cfg.InfluxBucket,
	}
}

func cloudConfig(cfg config.MQTTConfig) cloud.Config {
	return cloud.Config{
		Broker:               cfg.Broker,
		ClientID:             cfg.ClientID,
		Username:             cfg.Username,
		Password:             cfg.Password,
		TopicPrefix:          cfg.TopicPrefix,
		QoS:                  cfg.QoS,
		CAFile:               cfg.CAFile,
		KeepAlive:            time.Duration(cfg.KeepAlive) * time.Second,
		ConnectTimeout:       time.Duration(cfg.ConnectTimeout) * time.Second,
		MaxReconnectInterval: time.Duration(cfg.MaxReconnect) * time.Second,
	}
}

// uiExitCode maps a UI construction failure onto the resource that failed.
func uiExitCode(err error) exitcode.Code {
	switch {
	case errors.HasCode(err, ui.ErrInitButtonA):
		return exitcode.InitButtonA
	case errors.HasCode(err, ui.ErrInitButtonB):
		return exitcode.InitButtonB
	case errors.HasCode(err, ui.ErrInitStatusLED):
		return exitcode.InitStatusLED
	default:
		return exitcode.InitUIChip
	}
}

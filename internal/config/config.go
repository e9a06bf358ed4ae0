package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/mutker/thermoctl/internal/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix    = "THERMOCTL"
	DefaultConfigName   = "thermoctl"
	DefaultConfigDir    = "/etc/thermoctl"
	DefaultLogLevel     = "info"
	DefaultInterval     = 5
	DefaultSerialNumber = "TEMPMON-01234"
	DefaultDeviceID     = "thermoctl"
	DefaultQueueSize    = 64
)

const (
	maxModbusSlaveID  = 0xFF
	maxModbusRegister = 0xFFFF
)

// UI drivers
const (
	UIDriverNone = "none"
	UIDriverGPIO = "gpio"
)

// Sensor drivers
const (
	SensorDriverSimulated = "simulated"
	SensorDriverModbus    = "modbus"
)

// Metrics backends
const (
	MetricsBackendSQLite   = "sqlite"
	MetricsBackendInfluxDB = "influxdb"
)

type Config struct {
	Interval     int    `mapstructure:"interval"`
	SerialNumber string `mapstructure:"serial_number"`
	DeviceID     string `mapstructure:"device_id"`
	LogLevel     string `mapstructure:"log_level"`
	QueueSize    int    `mapstructure:"queue_size"`
	PIDFile      string `mapstructure:"pid_file"`

	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	UI      UIConfig      `mapstructure:"ui"`
	Sensor  SensorConfig  `mapstructure:"sensor"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MQTTConfig struct {
	Broker         string `mapstructure:"broker"`
	ClientID       string `mapstructure:"client_id"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	TopicPrefix    string `mapstructure:"topic_prefix"`
	QoS            int    `mapstructure:"qos"`
	CAFile         string `mapstructure:"ca_file"`
	KeepAlive      int    `mapstructure:"keepalive"`
	ConnectTimeout int    `mapstructure:"connect_timeout"`
	MaxReconnect   int    `mapstructure:"max_reconnect_interval"`
}

type UIConfig struct {
	Driver     string `mapstructure:"driver"`
	Chip       string `mapstructure:"chip"`
	ButtonA    int    `mapstructure:"button_a"`
	ButtonB    int    `mapstructure:"button_b"`
	StatusLED  int    `mapstructure:"status_led"`
	ActiveLow  bool   `mapstructure:"active_low"`
	DebounceMs int    `mapstructure:"debounce_ms"`
}

type SensorConfig struct {
	Driver             string  `mapstructure:"driver"`
	InitialTemperature float64 `mapstructure:"initial_temperature"`
	Mode               string  `mapstructure:"mode"`
	Address            string  `mapstructure:"address"`
	BaudRate           int     `mapstructure:"baud_rate"`
	DataBits           int     `mapstructure:"data_bits"`
	Parity             string  `mapstructure:"parity"`
	StopBits           int     `mapstructure:"stop_bits"`
	SlaveID            int     `mapstructure:"slave_id"`
	Register           int     `mapstructure:"register"`
	Scale              float64 `mapstructure:"scale"`
	TimeoutMs          int     `mapstructure:"timeout_ms"`
}

type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Backend      string `mapstructure:"backend"`
	DBPath       string `mapstructure:"db_path"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchTimeout int    `mapstructure:"batch_timeout"`
	InfluxURL    string `mapstructure:"influx_url"`
	InfluxToken  string `mapstructure:"influx_token"`
	InfluxOrg    string `mapstructure:"influx_org"`
	InfluxBucket string `mapstructure:"influx_bucket"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("serial_number", DefaultSerialNumber)
	v.SetDefault("device_id", DefaultDeviceID)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("queue_size", DefaultQueueSize)
	v.SetDefault("pid_file", filepath.Join(os.TempDir(), "thermoctl.pid"))

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.ca_file", "")
	v.SetDefault("mqtt.keepalive", 60)
	v.SetDefault("mqtt.connect_timeout", 10)
	v.SetDefault("mqtt.max_reconnect_interval", 60)

	v.SetDefault("ui.driver", UIDriverNone)
	v.SetDefault("ui.chip", "gpiochip0")
	v.SetDefault("ui.button_a", 12)
	v.SetDefault("ui.button_b", 13)
	v.SetDefault("ui.status_led", 16)
	v.SetDefault("ui.active_low", true)
	v.SetDefault("ui.debounce_ms", 50)

	v.SetDefault("sensor.driver", SensorDriverSimulated)
	v.SetDefault("sensor.initial_temperature", 50.0)
	v.SetDefault("sensor.mode", "rtu")
	v.SetDefault("sensor.address", "/dev/ttyUSB0")
	v.SetDefault("sensor.baud_rate", 9600)
	v.SetDefault("sensor.data_bits", 8)
	v.SetDefault("sensor.parity", "N")
	v.SetDefault("sensor.stop_bits", 1)
	v.SetDefault("sensor.slave_id", 1)
	v.SetDefault("sensor.register", 1)
	v.SetDefault("sensor.scale", 10.0)
	v.SetDefault("sensor.timeout_ms", 500)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.backend", MetricsBackendSQLite)
	v.SetDefault("metrics.db_path", "/var/lib/thermoctl/metrics.db")
	v.SetDefault("metrics.batch_size", 12)
	v.SetDefault("metrics.batch_timeout", 60)
	v.SetDefault("metrics.influx_url", "http://localhost:8086")
	v.SetDefault("metrics.influx_token", "")
	v.SetDefault("metrics.influx_org", "")
	v.SetDefault("metrics.influx_bucket", "thermoctl")
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("thermoctl", pflag.ContinueOnError)
	flags.String("config", "", "Path to the configuration file")
	flags.Int("interval", DefaultInterval, "Telemetry interval in seconds")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.String("serial-number", DefaultSerialNumber, "Device serial number reported on connect")
	flags.String("device-id", DefaultDeviceID, "Device identifier used in MQTT topics")
	flags.String("mqtt-broker", "", "MQTT broker URL")
	flags.String("ui-driver", UIDriverNone, "User interface driver (none, gpio)")
	flags.String("sensor-driver", SensorDriverSimulated, "Sensor driver (simulated, modbus)")
	flags.Bool("metrics", false, "Record telemetry attempts")

	return flags
}

var flagKeys = map[string]string{
	"interval":      "interval",
	"log-level":     "log_level",
	"serial-number": "serial_number",
	"device-id":     "device_id",
	"mqtt-broker":   "mqtt.broker",
	"ui-driver":     "ui.driver",
	"sensor-driver": "sensor.driver",
	"metrics":       "metrics.enabled",
}

func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		envPrefix: DefaultEnvPrefix,
		envFile:   ".env",
		args:      os.Args[1:],
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read env file: "+err.Error())
	}

	flags := newFlagSet()
	if err := flags.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	if err := readConfigFile(v, o, flags); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if config.MQTT.ClientID == "" {
		config.MQTT.ClientID = config.DeviceID
	}
	if config.MQTT.TopicPrefix == "" {
		config.MQTT.TopicPrefix = "thermoctl/" + config.DeviceID
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func readConfigFile(v *viper.Viper, o *options, flags *pflag.FlagSet) error {
	errFactory := errors.New()

	path := o.configPath
	if p, _ := flags.GetString("config"); p != "" {
		path = p
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(DefaultConfigDir)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file: "+err.Error())
	}

	return nil
}

// Validate checks values that no later startup step owns. The telemetry
// interval and queue size are validated by the event loop itself.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if strings.TrimSpace(c.SerialNumber) == "" {
		return errFactory.New(errors.ErrInvalidSerialNumber)
	}

	switch c.UI.Driver {
	case UIDriverNone, UIDriverGPIO:
	default:
		return errFactory.WithData(errors.ErrInvalidDriver, "ui: "+c.UI.Driver)
	}

	switch c.Sensor.Driver {
	case SensorDriverSimulated, SensorDriverModbus:
	default:
		return errFactory.WithData(errors.ErrInvalidDriver, "sensor: "+c.Sensor.Driver)
	}

	if c.Metrics.Enabled {
		switch c.Metrics.Backend {
		case MetricsBackendSQLite, MetricsBackendInfluxDB:
		default:
			return errFactory.WithData(errors.ErrInvalidDriver, "metrics: "+c.Metrics.Backend)
		}
	}

	if c.Sensor.Driver == SensorDriverModbus {
		if c.Sensor.SlaveID < 0 || c.Sensor.SlaveID > maxModbusSlaveID {
			return errFactory.WithData(errors.ErrInvalidConfig, "sensor.slave_id must be between 0 and 255")
		}
		// Temperature and humidity occupy two consecutive registers.
		if c.Sensor.Register < 0 || c.Sensor.Register > maxModbusRegister-1 {
			return errFactory.WithData(errors.ErrInvalidConfig, "sensor.register must be between 0 and 65534")
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return errFactory.WithData(errors.ErrInvalidConfig, "mqtt.qos must be 0, 1 or 2")
	}

	return nil
}

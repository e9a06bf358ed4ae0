package sensor

import (
	"encoding/binary"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/thermoctl/internal/errors"
	"codeberg.org/mutker/thermoctl/internal/logger"
	"github.com/goburrow/modbus"
)

const (
	ModeRTU = "rtu"
	ModeTCP = "tcp"

	defaultTimeout = 500 * time.Millisecond
)

type ModbusConfig struct {
	Mode     string
	Address  string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	SlaveID  byte
	Register uint16
	Scale    float64
	Timeout  time.Duration
}

type registerReader interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

type connector interface {
	Connect() error
	Close() error
}

// Modbus reads a transmitter exposing temperature as a signed input
// register and relative humidity in the register after it, both scaled.
type Modbus struct {
	cfg  ModbusConfig
	log  logger.Logger
	dial func(cfg ModbusConfig) (connector, registerReader)

	mu      sync.Mutex
	handler connector
	client  registerReader
}

func NewModbus(cfg ModbusConfig, log logger.Logger) (*Modbus, error) {
	errFactory := errors.New()

	cfg.Mode = strings.ToLower(cfg.Mode)
	if cfg.Mode != ModeRTU && cfg.Mode != ModeTCP {
		return nil, errFactory.WithData(ErrInvalidMode, cfg.Mode)
	}
	if cfg.Scale <= 0 {
		return nil, errFactory.WithData(ErrInvalidScale, cfg.Scale)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Modbus{cfg: cfg, log: log, dial: dialModbus}, nil
}

func dialModbus(cfg ModbusConfig) (connector, registerReader) {
	if cfg.Mode == ModeTCP {
		h := modbus.NewTCPClientHandler(cfg.Address)
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.SlaveID
		return h, modbus.NewClient(h)
	}

	h := modbus.NewRTUClientHandler(cfg.Address)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.Parity = cfg.Parity
	h.StopBits = cfg.StopBits
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.SlaveID
	return h, modbus.NewClient(h)
}

func (m *Modbus) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	handler, client := m.dial(m.cfg)
	if err := handler.Connect(); err != nil {
		return errors.New().WithData(ErrConnect, struct {
			Mode    string
			Address string
			Error   string
		}{
			Mode:    m.cfg.Mode,
			Address: m.cfg.Address,
			Error:   err.Error(),
		})
	}

	m.handler = handler
	m.client = client

	m.log.Info().
		Str("mode", m.cfg.Mode).
		Str("address", m.cfg.Address).
		Uint8("slave_id", m.cfg.SlaveID).
		Uint16("register", m.cfg.Register).
		Msg("Modbus sensor connected")

	return nil
}

func (m *Modbus) Read() (Reading, error) {
	errFactory := errors.New()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return Reading{}, errFactory.New(ErrNotOpen)
	}

	data, err := m.client.ReadInputRegisters(m.cfg.Register, 2)
	if err != nil {
		return Reading{}, errFactory.Wrap(ErrRead, err)
	}
	if len(data) < 4 {
		return Reading{}, errFactory.WithData(ErrShortRead, len(data))
	}

	raw := int16(binary.BigEndian.Uint16(data[0:2]))
	humidity := binary.BigEndian.Uint16(data[2:4])

	return Reading{
		Temperature: float64(raw) / m.cfg.Scale,
		Humidity:    float64(humidity) / m.cfg.Scale,
		HasHumidity: true,
	}, nil
}

func (m *Modbus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handler == nil {
		return nil
	}

	err := m.handler.Close()
	m.handler = nil
	m.client = nil
	if err != nil {
		return errors.New().Wrap(ErrClose, err)
	}
	return nil
}

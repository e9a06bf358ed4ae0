// Package sensor provides temperature sources: a simulated random walk and
// a Modbus temperature/humidity transmitter.
package sensor

// Reading is one sample. Humidity is only meaningful when HasHumidity is set.
type Reading struct {
	Temperature float64
	Humidity    float64
	HasHumidity bool
}

// Source is a temperature sensor.
type Source interface {
	Open() error
	Read() (Reading, error)
	Close() error
}

// Package cloud connects the device to its remote counterpart over MQTT.
//
// Inbound traffic (connectivity changes, desired properties and method
// invocations) is reported through Callbacks from paho goroutines. Outbound
// sends never wait for a broker acknowledgement; the returned Result only
// reflects what is known at the time of the call.
package cloud

import (
	"time"

	"codeberg.org/mutker/thermoctl/internal/exitcode"
)

// Result is the outcome of an outbound send.
type Result int

const (
	ResultOK Result = iota
	ResultNoNetwork
	ResultOtherFailure
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultNoNetwork:
		return "no_network"
	case ResultOtherFailure:
		return "other_failure"
	default:
		return "unknown"
	}
}

// Telemetry is one measurement sent upstream. Humidity is optional.
type Telemetry struct {
	Temperature float64
	Humidity    *float64
}

// Callbacks are invoked from MQTT client goroutines.
type Callbacks struct {
	OnConnectionChanged    func(connected bool)
	OnUploadEnabledChanged func(enabled bool)
	OnDisplayAlert         func(message string)
	OnFatal                func(code exitcode.Code)
}

func (c Callbacks) connectionChanged(connected bool) {
	if c.OnConnectionChanged != nil {
		c.OnConnectionChanged(connected)
	}
}

func (c Callbacks) uploadEnabledChanged(enabled bool) {
	if c.OnUploadEnabledChanged != nil {
		c.OnUploadEnabledChanged(enabled)
	}
}

func (c Callbacks) displayAlert(message string) {
	if c.OnDisplayAlert != nil {
		c.OnDisplayAlert(message)
	}
}

func (c Callbacks) fatal(code exitcode.Code) {
	if c.OnFatal != nil {
		c.OnFatal(code)
	}
}

// Channel is the outbound side of the remote sync channel.
type Channel interface {
	SendTelemetry(t Telemetry, at time.Time) Result
	SendDeviceMoved(at time.Time) Result
	SendUploadEnabledChanged(enabled bool) Result
	SendDeviceDetails(serial string) Result
	IsConnected() bool
	Close() error
}

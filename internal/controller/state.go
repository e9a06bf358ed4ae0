package controller

type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connected
)

func (s ConnectionStatus) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// DeviceState is the canonical runtime state. Only the controller writes it.
type DeviceState struct {
	Connection      ConnectionStatus
	UploadEnabled   bool
	SerialNumber    string
	LastMeasurement float64
}

package ui

// Button identifies one of the two physical push buttons.
type Button int

const (
	ButtonA Button = iota + 1
	ButtonB
)

func (b Button) String() string {
	switch b {
	case ButtonA:
		return "A"
	case ButtonB:
		return "B"
	default:
		return "unknown"
	}
}

// Interface is the device's local user interface: a status indicator plus
// the button sources it owns.
type Interface interface {
	SetStatus(on bool) error
	Close() error
}

// Handlers receive button activity. They are called from driver goroutines
// and must not block.
type Handlers struct {
	OnPress func(b Button)
	OnError func(b Button, err error)
}

func (h Handlers) press(b Button) {
	if h.OnPress != nil {
		h.OnPress(b)
	}
}

func (h Handlers) fail(b Button, err error) {
	if h.OnError != nil {
		h.OnError(b, err)
	}
}

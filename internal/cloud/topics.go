package cloud

import "strings"

// Topics builds every topic used by the device below a common prefix.
type Topics struct {
	prefix string
}

func NewTopics(prefix string) Topics {
	return Topics{prefix: strings.TrimSuffix(prefix, "/")}
}

func (t Topics) join(parts ...string) string {
	return t.prefix + "/" + strings.Join(parts, "/")
}

// Status carries the retained online/offline marker and the last will.
func (t Topics) Status() string {
	return t.join("status")
}

func (t Topics) Telemetry() string {
	return t.join("telemetry")
}

func (t Topics) DeviceMoved() string {
	return t.join("events", "moved")
}

func (t Topics) ReportedUploadEnabled() string {
	return t.join("properties", "reported", "telemetryUploadEnabled")
}

func (t Topics) ReportedSerialNumber() string {
	return t.join("properties", "reported", "serialNumber")
}

func (t Topics) Desired() string {
	return t.join("properties", "desired")
}

// Methods is the wildcard filter for method invocations.
func (t Topics) Methods() string {
	return t.join("methods", "+")
}

func (t Topics) MethodResponse(name string) string {
	return t.join("methods", name, "response")
}

// MethodName extracts the method name from an invocation topic.
func (t Topics) MethodName(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, t.join("methods")+"/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

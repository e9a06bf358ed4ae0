package cloud

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"

	methodDisplayAlert = "displayAlert"
)

type telemetryMessage struct {
	Temperature float64  `json:"temperature"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Timestamp   string   `json:"ts"`
}

type eventMessage struct {
	Event     string `json:"event"`
	Timestamp string `json:"ts"`
}

type reportedProperty struct {
	Value any `json:"value"`
}

type desiredProperties struct {
	TelemetryUploadEnabled *bool `json:"telemetryUploadEnabled"`
}

type methodResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func timestamp(at time.Time) string {
	return at.UTC().Format(time.RFC3339)
}

// alertText accepts either a JSON string or raw text.
func alertText(payload []byte) string {
	var text string
	if err := json.Unmarshal(payload, &text); err == nil {
		return text
	}
	return strings.TrimSpace(string(payload))
}

package cloud

import (
	"encoding/json"
	"sync"
	"time"

	"codeberg.org/mutker/thermoctl/internal/errors"
	"codeberg.org/mutker/thermoctl/internal/exitcode"
	"codeberg.org/mutker/thermoctl/internal/logger"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// subAckFailure is the SUBACK return code for a rejected filter.
const subAckFailure = 0x80

// MQTT is the Channel implementation backed by paho.
type MQTT struct {
	client  pahomqtt.Client
	topics  Topics
	qos     byte
	timeout time.Duration
	cb      Callbacks
	log     logger.Logger

	closeOnce sync.Once
	watchers  sync.WaitGroup
}

var _ Channel = (*MQTT)(nil)

// NewMQTT validates cfg, creates the paho client and starts connecting.
// Connection progress is reported through cb.OnConnectionChanged.
func NewMQTT(cfg Config, cb Callbacks, log logger.Logger) (*MQTT, error) {
	topics := NewTopics(cfg.TopicPrefix)

	opts, err := buildClientOptions(cfg, topics)
	if err != nil {
		return nil, err
	}

	m := newMQTT(nil, cfg, topics, cb, log)

	opts.SetOnConnectHandler(m.handleConnect)
	opts.SetConnectionLostHandler(m.handleConnectionLost)
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		log.Debug().Str("broker", cfg.Broker).Msg("Reconnecting to MQTT broker")
	})

	m.client = pahomqtt.NewClient(opts)
	m.client.Connect()

	log.Info().
		Str("broker", cfg.Broker).
		Str("client_id", cfg.ClientID).
		Str("topic_prefix", cfg.TopicPrefix).
		Msg("MQTT channel started")

	return m, nil
}

func newMQTT(client pahomqtt.Client, cfg Config, topics Topics, cb Callbacks, log logger.Logger) *MQTT {
	return &MQTT{
		client:  client,
		topics:  topics,
		qos:     byte(cfg.QoS),
		timeout: durationOr(cfg.ConnectTimeout, defaultConnectTimeout),
		cb:      cb,
		log:     log,
	}
}

// handleConnect runs on every (re)connect, in its own paho goroutine.
func (m *MQTT) handleConnect(client pahomqtt.Client) {
	if err := m.subscribe(client); err != nil {
		m.log.ErrorWithCode(err).Msg("MQTT subscription failed")
		m.cb.fatal(exitcode.CloudSubscribe)
		return
	}

	client.Publish(m.topics.Status(), m.qos, true, statusOnline)

	m.log.Info().Msg("Connected to MQTT broker")
	m.cb.connectionChanged(true)
}

func (m *MQTT) subscribe(client pahomqtt.Client) errors.Error {
	errFactory := errors.New()

	filters := map[string]byte{
		m.topics.Desired(): m.qos,
		m.topics.Methods(): m.qos,
	}

	token := client.SubscribeMultiple(filters, m.route)
	if !token.WaitTimeout(m.timeout) {
		return errFactory.WithMessage(ErrSubscribe, "timed out waiting for SUBACK")
	}
	if err := token.Error(); err != nil {
		return errFactory.Wrap(ErrSubscribe, err)
	}

	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		for topic, code := range st.Result() {
			if code == subAckFailure {
				return errFactory.WithData(ErrSubscribe, struct {
					Topic string
				}{
					Topic: topic,
				})
			}
		}
	}

	return nil
}

func (m *MQTT) handleConnectionLost(_ pahomqtt.Client, err error) {
	m.log.Warn().Err(err).Msg("Lost connection to MQTT broker")
	m.cb.connectionChanged(false)
}

// route dispatches inbound messages on the subscribed filters.
func (m *MQTT) route(client pahomqtt.Client, msg pahomqtt.Message) {
	topic := msg.Topic()

	if topic == m.topics.Desired() {
		m.handleDesired(msg.Payload())
		return
	}

	if name, ok := m.topics.MethodName(topic); ok {
		m.handleMethod(client, name, msg.Payload())
		return
	}

	m.log.Debug().Str("topic", topic).Msg("Ignoring message on unexpected topic")
}

func (m *MQTT) handleDesired(payload []byte) {
	var desired desiredProperties
	if err := json.Unmarshal(payload, &desired); err != nil {
		m.log.Warn().Err(err).Msg("Malformed desired properties")
		return
	}

	if desired.TelemetryUploadEnabled == nil {
		m.log.Debug().Msg("Desired properties without telemetryUploadEnabled")
		return
	}

	m.cb.uploadEnabledChanged(*desired.TelemetryUploadEnabled)
}

func (m *MQTT) handleMethod(client pahomqtt.Client, name string, payload []byte) {
	resp := methodResponse{Status: 200, Message: "ok"}

	switch name {
	case methodDisplayAlert:
		m.cb.displayAlert(alertText(payload))
		resp.Message = "alert displayed"
	default:
		m.log.Warn().Str("method", name).Msg("Unknown method invoked")
		resp = methodResponse{Status: 404, Message: "method not found: " + name}
	}

	body, err := json.Marshal(resp)
	if err != nil {
		m.log.Error().Err(err).Str("method", name).Msg("Failed to encode method response")
		return
	}
	client.Publish(m.topics.MethodResponse(name), m.qos, false, body)
}

func (m *MQTT) SendTelemetry(t Telemetry, at time.Time) Result {
	return m.publish(m.topics.Telemetry(), false, telemetryMessage{
		Temperature: t.Temperature,
		Humidity:    t.Humidity,
		Timestamp:   timestamp(at),
	})
}

func (m *MQTT) SendDeviceMoved(at time.Time) Result {
	return m.publish(m.topics.DeviceMoved(), false, eventMessage{
		Event:     "moved",
		Timestamp: timestamp(at),
	})
}

func (m *MQTT) SendUploadEnabledChanged(enabled bool) Result {
	return m.publish(m.topics.ReportedUploadEnabled(), true, reportedProperty{Value: enabled})
}

func (m *MQTT) SendDeviceDetails(serial string) Result {
	return m.publish(m.topics.ReportedSerialNumber(), true, reportedProperty{Value: serial})
}

// IsConnected reports whether the broker connection is currently usable.
func (m *MQTT) IsConnected() bool {
	return m.client.IsConnectionOpen()
}

// publish hands the message to paho and returns without waiting for the
// broker. Late failures are only logged.
func (m *MQTT) publish(topic string, retained bool, v any) Result {
	payload, err := json.Marshal(v)
	if err != nil {
		m.log.Error().Err(err).Str("topic", topic).Msg("Failed to encode message")
		return ResultOtherFailure
	}

	if !m.client.IsConnectionOpen() {
		return ResultNoNetwork
	}

	token := m.client.Publish(topic, m.qos, retained, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			m.log.Warn().Err(err).Str("topic", topic).Msg("Publish rejected")
			return ResultOtherFailure
		}
		return ResultOK
	default:
	}

	m.watchers.Add(1)
	go m.watch(topic, token)

	return ResultOK
}

func (m *MQTT) watch(topic string, token pahomqtt.Token) {
	defer m.watchers.Done()

	if !token.WaitTimeout(defaultPublishTimeout) {
		m.log.Warn().Str("topic", topic).Msg("Publish not acknowledged in time")
		return
	}
	if err := token.Error(); err != nil {
		m.log.Warn().Err(err).Str("topic", topic).Msg("Publish failed")
	}
}

// Close publishes the graceful offline marker and disconnects.
func (m *MQTT) Close() error {
	m.closeOnce.Do(func() {
		if m.client.IsConnectionOpen() {
			token := m.client.Publish(m.topics.Status(), m.qos, true, statusOffline)
			if !token.WaitTimeout(defaultPublishTimeout) {
				m.log.Warn().Msg("Offline status not acknowledged")
			}
		}

		m.client.Disconnect(defaultDisconnectQuiesce)
		m.watchers.Wait()

		m.log.Info().Msg("Disconnected from MQTT broker")
	})
	return nil
}

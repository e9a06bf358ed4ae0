package cloud

import (
	"crypto/tls"
	"crypto/x509"
	"net/url"
	"os"
	"time"

	"codeberg.org/mutker/thermoctl/internal/errors"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultKeepAlive         = 60 * time.Second
	defaultMaxReconnect      = time.Minute
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	connectRetryInterval     = 5 * time.Second
	maxQoS                   = 2
	tlsMinVersion            = tls.VersionTLS12
)

type Config struct {
	Broker               string
	ClientID             string
	Username             string
	Password             string
	TopicPrefix          string
	QoS                  int
	CAFile               string
	KeepAlive            time.Duration
	ConnectTimeout       time.Duration
	MaxReconnectInterval time.Duration
}

var brokerSchemes = map[string]bool{
	"tcp": true, "mqtt": true, "ssl": true, "tls": true, "mqtts": true, "ws": true, "wss": true,
}

// buildClientOptions maps Config onto paho options. The client reconnects
// on its own, and the initial connect keeps retrying in the background so
// the device can start without network.
func buildClientOptions(cfg Config, topics Topics) (*pahomqtt.ClientOptions, error) {
	errFactory := errors.New()

	u, err := url.Parse(cfg.Broker)
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidBroker, err)
	}
	if !brokerSchemes[u.Scheme] || u.Host == "" {
		return nil, errFactory.WithMessage(ErrInvalidBroker, "unsupported broker URL "+cfg.Broker)
	}
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, errFactory.WithData(ErrInvalidQoS, cfg.QoS)
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(connectRetryInterval)
	opts.SetMaxReconnectInterval(durationOr(cfg.MaxReconnectInterval, defaultMaxReconnect))
	opts.SetConnectTimeout(durationOr(cfg.ConnectTimeout, defaultConnectTimeout))
	opts.SetKeepAlive(durationOr(cfg.KeepAlive, defaultKeepAlive))

	if cfg.CAFile != "" {
		tlsConfig, err := loadTLSConfig(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetWill(topics.Status(), statusOffline, byte(cfg.QoS), true)

	return opts, nil
}

func loadTLSConfig(caFile string) (*tls.Config, error) {
	errFactory := errors.New()

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, errFactory.Wrap(ErrLoadCA, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errFactory.WithMessage(ErrLoadCA, "no certificates found in "+caFile)
	}

	return &tls.Config{
		RootCAs:    pool,
		MinVersion: tlsMinVersion,
	}, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

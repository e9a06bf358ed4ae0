package metrics

import (
	"sync"

	"codeberg.org/mutker/thermoctl/internal/logger"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurementTelemetryAttempt = "telemetry_attempt"

	// millisecondsPerSecond converts seconds to milliseconds for the InfluxDB API.
	millisecondsPerSecond = 1000
)

type influxRepository struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   logger.Logger
	errDone  chan struct{}
	once     sync.Once
}

// NewInfluxRepository writes attempts through the non-blocking write API.
// Points are batched by the client; write failures are logged as they
// arrive.
func NewInfluxRepository(cfg Config, log logger.Logger) (MetricsRepository, error) {
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts = opts.SetBatchSize(uint(cfg.BatchSize))
	}
	if cfg.BatchTimeout > 0 {
		opts = opts.SetFlushInterval(uint(cfg.BatchTimeout) * millisecondsPerSecond)
	}

	client := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken, opts)

	return newInfluxRepository(client, client.WriteAPI(cfg.InfluxOrg, cfg.InfluxBucket), log), nil
}

func newInfluxRepository(client influxdb2.Client, writeAPI api.WriteAPI, log logger.Logger) *influxRepository {
	r := &influxRepository{
		client:   client,
		writeAPI: writeAPI,
		logger:   log,
		errDone:  make(chan struct{}),
	}

	go r.handleWriteErrors(writeAPI.Errors())

	log.Info().Msg("InfluxDB metrics repository initialized")

	return r
}

func (r *influxRepository) handleWriteErrors(errorsCh <-chan error) {
	defer close(r.errDone)

	for err := range errorsCh {
		r.logger.Warn().Err(err).Msg("InfluxDB write failed")
	}
}

func (r *influxRepository) Record(snapshot *MetricsSnapshot) error {
	r.writeAPI.WritePoint(newAttemptPoint(snapshot))
	return nil
}

func newAttemptPoint(snapshot *MetricsSnapshot) *write.Point {
	fields := map[string]interface{}{
		"temperature":    snapshot.Reading.Temperature,
		"upload_enabled": snapshot.State.UploadEnabled,
		"connected":      snapshot.State.Connected,
	}
	if snapshot.Reading.Humidity != nil {
		fields["humidity"] = *snapshot.Reading.Humidity
	}

	return write.NewPoint(
		measurementTelemetryAttempt,
		map[string]string{
			"serial": snapshot.Serial,
			"result": snapshot.Result,
		},
		fields,
		snapshot.Timestamp,
	)
}

func (r *influxRepository) Close() error {
	r.once.Do(func() {
		r.writeAPI.Flush()
		if r.client != nil {
			// Closing the client closes the write API error channel.
			r.client.Close()
			<-r.errDone
		}
		r.logger.Info().Msg("InfluxDB metrics repository closed")
	})
	return nil
}

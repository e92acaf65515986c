package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rzbill/bookq/internal/mq"
	pebblestore "github.com/rzbill/bookq/internal/storage/pebble"
	"github.com/rzbill/bookq/pkg/weight"
)

var (
	_ pebblestore.MetricsHook = (*StoreMetrics)(nil)
	_ mq.Events               = (*EngineEvents)(nil)
)

// StoreMetrics implements pebblestore.MetricsHook.
type StoreMetrics struct {
	writeLatency  prometheus.Histogram
	readLatency   prometheus.Histogram
	commitLatency prometheus.Histogram
	writeBytes    prometheus.Counter
	readBytes     prometheus.Counter
	commitBytes   prometheus.Counter
}

// NewStoreMetrics registers and returns storage metrics.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	f := promauto.With(reg)
	return &StoreMetrics{
		writeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name: "bookq_store_write_seconds", Help: "Latency of single-key writes.",
		}),
		readLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name: "bookq_store_read_seconds", Help: "Latency of point reads.",
		}),
		commitLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name: "bookq_store_commit_seconds", Help: "Latency of batch commits.",
		}),
		writeBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "bookq_store_write_bytes_total", Help: "Bytes written via single-key writes.",
		}),
		readBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "bookq_store_read_bytes_total", Help: "Bytes returned by point reads.",
		}),
		commitBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "bookq_store_commit_bytes_total", Help: "Batch bytes committed.",
		}),
	}
}

func (m *StoreMetrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.writeLatency.Observe(elapsed.Seconds())
	m.writeBytes.Add(float64(bytes))
}

func (m *StoreMetrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.readLatency.Observe(elapsed.Seconds())
	m.readBytes.Add(float64(bytes))
}

func (m *StoreMetrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	m.commitLatency.Observe(elapsed.Seconds())
	m.commitBytes.Add(float64(bytes))
}

// EngineEvents implements mq.Events with counters per outcome.
type EngineEvents struct {
	processed  *prometheus.CounterVec // success label
	failed     prometheus.Counter
	overweight prometheus.Counter
	reaped     prometheus.Counter
	weightUsed prometheus.Counter
}

// NewEngineEvents registers and returns an Events sink backed by counters.
func NewEngineEvents(reg prometheus.Registerer) *EngineEvents {
	f := promauto.With(reg)
	return &EngineEvents{
		processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bookq_messages_processed_total", Help: "Messages run to completion.",
		}, []string{"success"}),
		failed: f.NewCounter(prometheus.CounterOpts{
			Name: "bookq_messages_failed_total", Help: "Messages dropped with a permanent error.",
		}),
		overweight: f.NewCounter(prometheus.CounterOpts{
			Name: "bookq_messages_overweight_total", Help: "Messages quarantined as permanently overweight.",
		}),
		reaped: f.NewCounter(prometheus.CounterOpts{
			Name: "bookq_pages_reaped_total", Help: "Pages removed by reaping.",
		}),
		weightUsed: f.NewCounter(prometheus.CounterOpts{
			Name: "bookq_weight_consumed_total", Help: "Weight consumed by processed messages.",
		}),
	}
}

func (e *EngineEvents) Processed(_ mq.MessageID, _ mq.Origin, weightUsed weight.Weight, success bool) {
	label := "false"
	if success {
		label = "true"
	}
	e.processed.WithLabelValues(label).Inc()
	e.weightUsed.Add(float64(weightUsed))
}

func (e *EngineEvents) ProcessingFailed(mq.MessageID, mq.Origin, error) {
	e.failed.Inc()
}

func (e *EngineEvents) OverweightEnqueued(mq.MessageID, mq.Origin, uint32, uint32) {
	e.overweight.Inc()
}

func (e *EngineEvents) PageReaped(mq.Origin, uint32) {
	e.reaped.Inc()
}

package camera

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stream labels used on pipeline metrics.
const (
	StreamRaw  = "raw"
	StreamJPEG = "jpeg"
)

// Metrics exposes pipeline counters. A nil *Metrics is valid and records
// nothing, so the pipeline can run without a registry wired in.
type Metrics struct {
	framesPublished    *prometheus.CounterVec
	callbackErrors     *prometheus.CounterVec
	bufferSendFailures *prometheus.CounterVec
	spuriousCallbacks  prometheus.Counter
	poolQueueDepth     *prometheus.GaugeVec
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "camera",
			Name:      "frames_published_total",
			Help:      "Completed frames handed to the publishing sink.",
		}, []string{"stream"}),
		callbackErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "camera",
			Name:      "callback_errors_total",
			Help:      "Errors observed inside port callbacks.",
		}, []string{"stream"}),
		bufferSendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "camera",
			Name:      "buffer_send_failures_total",
			Help:      "Buffers that could not be returned to their port.",
		}, []string{"stream"}),
		spuriousCallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "camera",
			Name:      "spurious_callbacks_total",
			Help:      "Buffers delivered while the pipeline was not running.",
		}),
		poolQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "camera",
			Name:      "pool_queue_depth",
			Help:      "Buffers currently queued in each port's pool.",
		}, []string{"stream"}),
	}
	reg.MustRegister(m.framesPublished, m.callbackErrors, m.bufferSendFailures,
		m.spuriousCallbacks, m.poolQueueDepth)
	return m
}

func (m *Metrics) framePublished(stream string) {
	if m == nil {
		return
	}
	m.framesPublished.WithLabelValues(stream).Inc()
}

func (m *Metrics) callbackError(stream string) {
	if m == nil {
		return
	}
	m.callbackErrors.WithLabelValues(stream).Inc()
}

func (m *Metrics) bufferSendFailure(stream string) {
	if m == nil {
		return
	}
	m.bufferSendFailures.WithLabelValues(stream).Inc()
}

func (m *Metrics) spuriousCallback() {
	if m == nil {
		return
	}
	m.spuriousCallbacks.Inc()
}

func (m *Metrics) poolDepth(stream string, depth int) {
	if m == nil {
		return
	}
	m.poolQueueDepth.WithLabelValues(stream).Set(float64(depth))
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConsumerMetrics counts message outcomes per consumer.
type ConsumerMetrics struct {
	processed  *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	failures   *prometheus.CounterVec
}

// NewConsumerMetrics registers the consumer counters on the provided registerer.
func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	if reg == nil {
		return &ConsumerMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_messages_processed",
		Help: "Messages processed to completion per consumer.",
	}, []string{"consumer"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_messages_duplicate",
		Help: "Redelivered messages skipped by the inbox guard.",
	}, []string{"consumer"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_messages_failed",
		Help: "Messages nacked for broker redelivery.",
	}, []string{"consumer"})
	reg.MustRegister(processed, duplicates, failures)
	return &ConsumerMetrics{
		processed:  processed,
		duplicates: duplicates,
		failures:   failures,
	}
}

// IncProcessed increments the processed counter for the named consumer.
func (c *ConsumerMetrics) IncProcessed(consumer string) {
	if c == nil || c.processed == nil {
		return
	}
	c.processed.WithLabelValues(normalizeLabel(consumer)).Inc()
}

// IncDuplicate increments the duplicate counter for the named consumer.
func (c *ConsumerMetrics) IncDuplicate(consumer string) {
	if c == nil || c.duplicates == nil {
		return
	}
	c.duplicates.WithLabelValues(normalizeLabel(consumer)).Inc()
}

// IncFailure increments the failure counter for the named consumer.
func (c *ConsumerMetrics) IncFailure(consumer string) {
	if c == nil || c.failures == nil {
		return
	}
	c.failures.WithLabelValues(normalizeLabel(consumer)).Inc()
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerMetricsCountPerConsumer(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := NewConsumerMetrics(reg)

	metrics.IncProcessed("refund-executor")
	metrics.IncProcessed("refund-executor")
	metrics.IncDuplicate("refund-executor")
	metrics.IncFailure("order-analytics")

	families, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, float64(2), counterValue(t, families, "consumer_messages_processed", "refund-executor"))
	assert.Equal(t, float64(1), counterValue(t, families, "consumer_messages_duplicate", "refund-executor"))
	assert.Equal(t, float64(1), counterValue(t, families, "consumer_messages_failed", "order-analytics"))
}

func TestConsumerMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *ConsumerMetrics
	metrics.IncProcessed("x")
	metrics.IncDuplicate("x")
	metrics.IncFailure("x")

	unregistered := NewConsumerMetrics(nil)
	unregistered.IncProcessed("x")
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name, consumer string) float64 {
	t.Helper()

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "consumer" && label.GetValue() == consumer {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("no %s sample for consumer %q", name, consumer)
	return 0
}

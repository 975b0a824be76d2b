package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/psds-microservice/dispatch-service/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGathersDispatchMetrics(t *testing.T) {
	metrics.AssignmentsTotal.WithLabelValues("claim").Inc()
	metrics.QueueDepth.Set(4)
	metrics.AgentLoad.WithLabelValues("agent-x").Set(2)

	families, err := metrics.Registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["dispatch_assignments_total"])
	assert.True(t, names["dispatch_queue_depth"])
	assert.True(t, names["dispatch_agent_load"])
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.QueueDepth))
}

func TestForgetAgent(t *testing.T) {
	metrics.AgentLoad.WithLabelValues("agent-gone").Set(1)
	before := testutil.CollectAndCount(metrics.AgentLoad)

	metrics.ForgetAgent("agent-gone")
	assert.Equal(t, before-1, testutil.CollectAndCount(metrics.AgentLoad))
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveSubmission("accepted")
	c.ObservePoll(PollNotReady)
	c.ObservePoll(PollNotReady)
	c.ObservePoll(PollCompleted)
	c.ObserveRun("completed", 30*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Submissions.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Polls.WithLabelValues(PollNotReady)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Polls.WithLabelValues(PollCompleted)))
	assert.Equal(t, 1, testutil.CollectAndCount(c.RunDuration))

	// Registering twice on the same registry fails.
	_, err = NewCollector(reg)
	assert.Error(t, err)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveSubmission("accepted")
		c.ObservePoll(PollError)
		c.ObserveRun("failed", time.Second)
	})
}

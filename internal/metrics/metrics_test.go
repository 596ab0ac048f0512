package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("/api/v1/sessions", 201)
		ObserveBackend("lab", "fetch", "success", 120*time.Millisecond)
		IncCache(true)
		IncCache(false)
		SetOpenSessions(3)
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(actions.WithLabelValues("cake", "cancel", "succeeded"))
	IncAction("cake", "cancel", "succeeded")
	IncAction("cake", "cancel", "succeeded")
	assert.Equal(t, before+2, testutil.ToFloat64(actions.WithLabelValues("cake", "cancel", "succeeded")))

	staleBefore := testutil.ToFloat64(staleResults.WithLabelValues("petshop"))
	IncStale("petshop")
	assert.Equal(t, staleBefore+1, testutil.ToFloat64(staleResults.WithLabelValues("petshop")))

	SetOpenSessions(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(openSessions))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(200))
	assert.Equal(t, "3xx", statusClass(304))
	assert.Equal(t, "4xx", statusClass(422))
	assert.Equal(t, "5xx", statusClass(502))
}

package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()

	c.JobsCompleted.Inc()
	c.JobsRetried.Add(3)
	c.JobsInFlight.Inc()
	c.JobsInFlight.Dec()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.JobsCompleted))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.JobsRetried))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.JobsInFlight))
}

func TestCollector_RegistriesAreIndependent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()

	a.JobsDead.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.JobsDead))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.JobsDead))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.PointsWritten.Add(12)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "fieldlens_points_written_total 12")
}

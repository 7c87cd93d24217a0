package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SearchQueriesTotal.WithLabelValues(ResultHit).Inc()
	m.SearchQueriesTotal.WithLabelValues(ResultHit).Inc()
	m.SearchQueriesTotal.WithLabelValues(ResultZero).Inc()
	m.IndexOccurrences.Set(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(ResultHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(ResultZero)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.IndexOccurrences))

	// A second registry gets its own independent set.
	other := New(prometheus.NewRegistry())
	assert.Equal(t, 0.0, testutil.ToFloat64(other.IndexOccurrences))
}

func TestHandlerForServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IndexVocabulary.Set(42)

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "index_vocabulary_size 42")
}

// File: internal/metrics/metrics_test.go
package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.IncNavigation("ok")
	m.IncNavigation("ok")
	m.IncNavigation("error")
	m.IncRetry("navigate")
	m.IncField("title", true)
	m.IncField("title", false)
	m.IncProduct("valid")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NavigationsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NavigationsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("navigate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FieldsTotal.WithLabelValues("title", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FieldsTotal.WithLabelValues("title", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProductsTotal.WithLabelValues("valid")))
}

func TestSummary(t *testing.T) {
	m := New()
	m.IncNavigation("ok")
	m.IncProduct("partial")
	m.ObserveScrape(1500 * time.Millisecond)

	summary := m.Summary()
	require.NotEmpty(t, summary)
	assert.Contains(t, summary, `prodscout_navigations_total{outcome="ok"} 1`)
	assert.Contains(t, summary, `prodscout_products_total{outcome="partial"} 1`)
	assert.Contains(t, summary, "prodscout_scrape_duration_seconds count=1 sum=1.500s")
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.IncNavigation("ok")
	m.IncRetry("navigate")
	m.IncField("title", true)
	m.IncProduct("valid")
	m.ObserveScrape(time.Second)
	assert.Empty(t, m.Summary())
}

// File: internal/metrics/metrics.go

// Package metrics bundles the scrape run's Prometheus collectors on a
// dedicated registry, so batch summaries can be dumped at the end of a
// run without touching the global default registry.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	Registry         *prometheus.Registry
	NavigationsTotal *prometheus.CounterVec
	RetriesTotal     *prometheus.CounterVec
	FieldsTotal      *prometheus.CounterVec
	ProductsTotal    *prometheus.CounterVec
	ScrapeDuration   prometheus.Histogram
}

// New constructs and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	navigations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodscout_navigations_total",
			Help: "Page navigations by outcome.",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodscout_retries_total",
			Help: "Retry attempts by operation.",
		},
		[]string{"operation"},
	)
	fields := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodscout_fields_total",
			Help: "Field extraction outcomes by field and status.",
		},
		[]string{"field", "status"},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodscout_products_total",
			Help: "Scraped products by validation outcome.",
		},
		[]string{"outcome"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prodscout_scrape_duration_seconds",
			Help:    "End-to-end duration of one product scrape.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	registry.MustRegister(navigations, retries, fields, products, duration)

	return &Metrics{
		Registry:         registry,
		NavigationsTotal: navigations,
		RetriesTotal:     retries,
		FieldsTotal:      fields,
		ProductsTotal:    products,
		ScrapeDuration:   duration,
	}
}

// IncNavigation records a navigation outcome ("ok" or "error").
func (m *Metrics) IncNavigation(outcome string) {
	if m == nil {
		return
	}
	m.NavigationsTotal.WithLabelValues(outcome).Inc()
}

// IncRetry records a retry attempt for a named operation.
func (m *Metrics) IncRetry(operation string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

// IncField records one field extraction hit or miss.
func (m *Metrics) IncField(field string, ok bool) {
	if m == nil {
		return
	}
	status := "miss"
	if ok {
		status = "hit"
	}
	m.FieldsTotal.WithLabelValues(field, status).Inc()
}

// IncProduct records a finished product scrape ("valid", "partial" or
// "failed").
func (m *Metrics) IncProduct(outcome string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(outcome).Inc()
}

// ObserveScrape records one product scrape duration.
func (m *Metrics) ObserveScrape(d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapeDuration.Observe(d.Seconds())
}

// Summary gathers the registry and renders sorted "name{labels} value"
// lines for the end-of-run log. Histograms report sample count and sum.
func (m *Metrics) Summary() string {
	if m == nil {
		return ""
	}
	families, err := m.Registry.Gather()
	if err != nil {
		return ""
	}
	var lines []string
	for _, fam := range families {
		for _, metric := range fam.Metric {
			name := fam.GetName()
			var labels []string
			for _, pair := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", pair.GetName(), pair.GetValue()))
			}
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case metric.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, metric.GetCounter().GetValue()))
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%.3fs",
					name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

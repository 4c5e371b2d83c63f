package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apkupdater/apkupdaterd/api"
)

// Metrics holds the daemon's Prometheus collectors, on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	SourceLookups        *prometheus.CounterVec
	SourceLookupDuration *prometheus.HistogramVec
	Downloads            *prometheus.CounterVec
	DownloadBytes        prometheus.Counter
	DownloadDuration     prometheus.Histogram
	Installs             *prometheus.CounterVec
	UpdatesAvailable     prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		SourceLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apkupdater_source_lookups_total",
				Help: "Number of source lookups, by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		SourceLookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apkupdater_source_lookup_duration_seconds",
				Help:    "Source lookup duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source"},
		),
		Downloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apkupdater_downloads_total",
				Help: "Number of downloads, by outcome",
			},
			[]string{"outcome"},
		),
		DownloadBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apkupdater_download_bytes_total",
				Help: "Bytes written by completed downloads",
			},
		),
		DownloadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "apkupdater_download_duration_seconds",
				Help:    "Download duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		Installs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apkupdater_installs_total",
				Help: "Number of installs, by requested strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		UpdatesAvailable: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "apkupdater_updates_available",
				Help: "Number of updates currently listed",
			},
		),
	}
}

// ObserveLookup records the outcome of one source lookup.
func (m *Metrics) ObserveLookup(source api.SourceID, outcome string, duration time.Duration) {
	m.SourceLookups.WithLabelValues(string(source), outcome).Inc()
	m.SourceLookupDuration.WithLabelValues(string(source)).Observe(duration.Seconds())
}

// ObserveDownload records the outcome of one download.
func (m *Metrics) ObserveDownload(outcome string, bytes int64, duration time.Duration) {
	m.Downloads.WithLabelValues(outcome).Inc()
	m.DownloadDuration.Observe(duration.Seconds())

	if bytes > 0 {
		m.DownloadBytes.Add(float64(bytes))
	}
}

// ObserveInstall records the outcome of one install.
func (m *Metrics) ObserveInstall(strategy api.InstallStrategy, outcome string) {
	if strategy == "" {
		strategy = api.InstallStrategyAuto
	}

	m.Installs.WithLabelValues(string(strategy), outcome).Inc()
}

// SetUpdatesAvailable records the number of listed updates.
func (m *Metrics) SetUpdatesAvailable(count int) {
	m.UpdatesAvailable.Set(float64(count))
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Package metrics wires prometheus/client_golang counters and gauges for the
// queue, federation client, and NAT/UPnP manager, exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	// DownloadsTotal counts terminal download outcomes by status
	// (completed, failed, cancelled).
	DownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animedb_downloads_total",
		Help: "Total downloads by terminal status.",
	}, []string{"status"})

	// QueueDepth reports the current count of queued-or-downloading rows.
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "animedb_queue_depth",
		Help: "Number of downloads currently queued or downloading.",
	})

	// FederationPullBytesTotal counts bytes streamed in from each peer during
	// pull/replicate transfers.
	FederationPullBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animedb_federation_pull_bytes_total",
		Help: "Bytes received from federation peers during pull/replicate transfers.",
	}, []string{"peer"})

	// UpnpLeaseActive is 1 when the UPnP port mapping is active, 0 otherwise.
	UpnpLeaseActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "animedb_upnp_lease_active",
		Help: "1 if the UPnP port mapping lease is currently active, 0 otherwise.",
	})
)

func init() {
	prometheus.MustRegister(DownloadsTotal, QueueDepth, FederationPullBytesTotal, UpnpLeaseActive)
}

// Handler returns the HTTP handler to mount at GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

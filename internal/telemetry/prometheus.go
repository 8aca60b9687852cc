package telemetry

import "github.com/prometheus/client_golang/prometheus"

const coordNamespace string = "varcoord"

var (
	promPeersConnected prometheus.Gauge
	promMessages       *prometheus.CounterVec
	promClipDownloads  *prometheus.CounterVec
	promClipBytes      prometheus.Counter
)

func init() {
	promPeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: coordNamespace,
		Subsystem: "peers",
		Name:      "connected",
	})

	promMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: coordNamespace,
			Subsystem: "protocol",
			Name:      "messages_total",
		},
		[]string{"direction", "kind"},
	)

	promClipDownloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: coordNamespace,
			Subsystem: "clips",
			Name:      "downloads_total",
		},
		[]string{"status"},
	)

	promClipBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: coordNamespace,
		Subsystem: "clips",
		Name:      "downloaded_bytes_total",
	})

	prometheus.MustRegister(promPeersConnected)
	prometheus.MustRegister(promMessages)
	prometheus.MustRegister(promClipDownloads)
	prometheus.MustRegister(promClipBytes)
}

func PeerConnected() {
	promPeersConnected.Inc()
}

func PeerDisconnected() {
	promPeersConnected.Dec()
}

func MessageSent(kind string) {
	promMessages.WithLabelValues("out", kind).Inc()
}

func MessageReceived(kind string) {
	promMessages.WithLabelValues("in", kind).Inc()
}

func ClipDownloadFinished(status string) {
	promClipDownloads.WithLabelValues(status).Inc()
}

func ClipBytesDownloaded(n int64) {
	promClipBytes.Add(float64(n))
}

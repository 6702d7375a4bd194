package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// Frame flow
	FramesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfbridge_frames_decoded_total",
		Help: "Frames decoded from the serial stream",
	}, []string{"direction", "type"})

	FramesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfbridge_frames_forwarded_total",
		Help: "Frames forwarded verbatim to the opposite link",
	}, []string{"direction", "type"})

	BytesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfbridge_bytes_forwarded_total",
		Help: "Raw wire bytes forwarded",
	}, []string{"direction"})

	VideoDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfbridge_video_dropped_total",
		Help: "Video packets dropped by the rate limiter",
	}, []string{"direction"})

	// Failure paths
	LinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfbridge_link_failures_total",
		Help: "Fatal serial link failures terminating a pump",
	}, []string{"direction", "kind"})

	// Sinks
	SinkRecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sfbridge_sink_records_dropped_total",
		Help: "Sink records dropped because the queue was full",
	}, []string{"sink"})

	CaptureBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sfbridge_capture_bytes_total",
		Help: "Raw bytes appended to the capture file",
	})
)

// Serve exposes /metrics on addr in a background goroutine. A listen failure
// is logged, never fatal: metrics degrade, forwarding continues.
func Serve(addr string, logger *zap.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Serving metrics", zap.String("address", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

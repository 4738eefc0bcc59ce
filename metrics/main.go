package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	registerOnce sync.Once

	FetchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hlsgrab_fetch_requests_total", Help: "HTTP fetch attempts by outcome"},
		[]string{"result"},
	)
	FetchRetries  = prometheus.NewCounter(prometheus.CounterOpts{Name: "hlsgrab_fetch_retries_total", Help: "Total retry attempts"})
	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "hlsgrab_fetch_duration_seconds", Help: "Time spent per fetch attempt", Buckets: prometheus.DefBuckets})
	FetchInflight = prometheus.NewGauge(prometheus.GaugeOpts{Name: "hlsgrab_fetch_inflight", Help: "In-flight HTTP requests"})
	Segments      = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hlsgrab_segments_total", Help: "Resolved segments by result"},
		[]string{"result"},
	)
	BytesWritten = prometheus.NewCounter(prometheus.CounterOpts{Name: "hlsgrab_bytes_written_total", Help: "Decrypted bytes flushed to disk"})
	Downloads    = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hlsgrab_downloads_total", Help: "Finished downloads by status"},
		[]string{"status"},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			FetchRequests, FetchRetries, FetchDuration, FetchInflight,
			Segments, BytesWritten, Downloads,
		)
	})
}

func Handler() http.Handler {
	Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func Serve(port int) {
	go func() {
		addr := fmt.Sprintf(":%d", port)
		zap.S().Infof("serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, Handler()); err != nil {
			zap.S().Errorf("metrics server stopped: %v", err)
		}
	}()
}

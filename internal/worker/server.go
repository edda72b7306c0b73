package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc reports per-backend health, keyed by backend name.
type HealthFunc func(ctx context.Context) map[string]bool

// NewServer returns the worker's ops listener: /metrics from gatherer and
// /healthz from healthy.
func NewServer(addr string, gatherer prometheus.Gatherer, healthy HealthFunc) *http.Server {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(gc *gin.Context) {
		checks := healthy(gc.Request.Context())
		status := http.StatusOK
		for _, ok := range checks {
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		gc.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
	})

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Package metrics exposes Prometheus metrics for the storage control plane
// and a standalone metrics HTTP server.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce     sync.Once
	metricsInstance *ControlPlaneMetrics
)

// ControlPlaneMetrics holds all Prometheus metrics for the control plane.
type ControlPlaneMetrics struct {
	StoresTotal     *prometheus.CounterVec // storage_cp_stores_total{outcome}
	RetrievesTotal  *prometheus.CounterVec // storage_cp_retrieves_total{outcome}
	DedupHitsTotal  prometheus.Counter     // storage_cp_dedup_hits_total
	DedupBytesSaved prometheus.Counter     // storage_cp_dedup_bytes_saved_total

	QuotaAlertsTotal *prometheus.CounterVec // storage_cp_quota_alerts_total{level}
	QuotaUsedBytes   *prometheus.GaugeVec   // storage_cp_quota_used_bytes{tenant}

	PinsTotal        *prometheus.CounterVec // storage_cp_pins_total{outcome}
	ReplicationState *prometheus.GaugeVec   // storage_cp_replication_objects{health}

	GCSweepsTotal   prometheus.Counter     // storage_cp_gc_sweeps_total
	GCOutcomesTotal *prometheus.CounterVec // storage_cp_gc_outcomes_total{outcome}

	BackupVerifyDuration prometheus.Histogram // storage_cp_backup_verify_duration_seconds
	DRDrillsTotal        *prometheus.CounterVec
}

// New initializes the control-plane metric set. Metrics are registered once;
// subsequent calls return the same instance.
func New(registry prometheus.Registerer) *ControlPlaneMetrics {
	metricsOnce.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		metricsInstance = &ControlPlaneMetrics{
			StoresTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "storage_cp_stores_total",
				Help: "Store requests by outcome",
			}, []string{"outcome"}),
			RetrievesTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "storage_cp_retrieves_total",
				Help: "Retrieve requests by outcome",
			}, []string{"outcome"}),
			DedupHitsTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "storage_cp_dedup_hits_total",
				Help: "Stores deduplicated against an existing canonical object",
			}),
			DedupBytesSaved: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "storage_cp_dedup_bytes_saved_total",
				Help: "Bytes not written because of deduplication",
			}),
			QuotaAlertsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "storage_cp_quota_alerts_total",
				Help: "Quota threshold alerts by level",
			}, []string{"level"}),
			QuotaUsedBytes: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
				Name: "storage_cp_quota_used_bytes",
				Help: "Current quota usage per tenant",
			}, []string{"tenant"}),
			PinsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "storage_cp_pins_total",
				Help: "Pin requests issued to the content store by outcome",
			}, []string{"outcome"}),
			ReplicationState: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
				Name: "storage_cp_replication_objects",
				Help: "Tracked objects by replication health",
			}, []string{"health"}),
			GCSweepsTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "storage_cp_gc_sweeps_total",
				Help: "Completed garbage collection sweeps",
			}),
			GCOutcomesTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "storage_cp_gc_outcomes_total",
				Help: "Garbage collection evaluations by outcome",
			}, []string{"outcome"}),
			BackupVerifyDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
				Name:    "storage_cp_backup_verify_duration_seconds",
				Help:    "Duration of backup verification sweeps",
				Buckets: prometheus.DefBuckets,
			}),
			DRDrillsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "storage_cp_dr_drills_total",
				Help: "Disaster recovery drills by overall status",
			}, []string{"status"}),
		}
	})
	return metricsInstance
}

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe blocks serving the scrape endpoint.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

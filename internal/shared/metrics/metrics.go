package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	applicationsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "applications_created_total",
		Help: "Total applications created",
	})
	documentsAttached = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "applications_attach_total",
		Help: "Attach calls by number of linked documents",
	}, []string{"documents"})
	documentsUploaded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "documents_uploaded_total",
		Help: "Documents stored, by kind",
	}, []string{"kind"})
	documentsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "documents_rejected_total",
		Help: "Uploads rejected, by kind and reason",
	}, []string{"kind", "reason"})
	uploadBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "document_upload_bytes",
		Help:    "Size of stored documents in bytes",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 7),
	}, []string{"kind"})
	workerEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_events_total",
		Help: "Queue events handled by the worker, by outcome",
	}, []string{"outcome"})
	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{5, 25, 100, 250, 500, 1000, 2500, 10000},
	}, []string{"method", "route", "status"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		applicationsCreated,
		documentsAttached,
		documentsUploaded,
		documentsRejected,
		uploadBytes,
		workerEvents,
		requestDuration,
	)
}

// IncApplicationCreated increments the created counter.
func IncApplicationCreated() {
	applicationsCreated.Inc()
}

// IncDocumentsAttached records an attach call linking n documents.
func IncDocumentsAttached(n int) {
	label := "0"
	switch {
	case n == 1:
		label = "1"
	case n >= 2:
		label = "2"
	}
	documentsAttached.WithLabelValues(label).Inc()
}

// ObserveDocumentUploaded records a stored document.
func ObserveDocumentUploaded(kind string, size int64) {
	if size < 0 {
		size = 0
	}
	documentsUploaded.WithLabelValues(kind).Inc()
	uploadBytes.WithLabelValues(kind).Observe(float64(size))
}

// IncDocumentRejected records a refused upload.
func IncDocumentRejected(kind, reason string) {
	documentsRejected.WithLabelValues(kind, reason).Inc()
}

// IncWorkerEvent records one queue event: received, completed, failed or dropped.
func IncWorkerEvent(outcome string) {
	workerEvents.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(method, route, status string, durationMs float64) {
	if route == "" {
		route = "unmatched"
	}
	requestDuration.WithLabelValues(method, route, status).Observe(durationMs)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

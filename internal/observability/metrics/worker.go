package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

// WorkerMetrics observes job runs. It satisfies ports.JobMetrics.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	jobsTotal        *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobsInFlight     prometheus.Gauge
	queueLag         *prometheus.HistogramVec
	documentsTotal   *prometheus.CounterVec
	resultsPersisted *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invoice",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total finished job runs by status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "invoice",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Job run duration in seconds by status.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"service", "status"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "invoice",
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Number of job runs in progress.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "invoice",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job submission and run start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invoice",
			Subsystem: "worker",
			Name:      "documents_recognized_total",
			Help:      "Documents handled by job runs by final status.",
		},
		[]string{"service", "status"},
	)
	resultsPersisted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invoice",
			Subsystem: "worker",
			Name:      "results_persisted_total",
			Help:      "Extracted result rows written to storage.",
		},
		[]string{"service"},
	)

	registry.MustRegister(jobsTotal, jobDuration, jobsInFlight, queueLag, documentsTotal, resultsPersisted)

	return &WorkerMetrics{
		service:          service,
		registry:         registry,
		jobsTotal:        jobsTotal,
		jobDuration:      jobDuration,
		jobsInFlight:     jobsInFlight,
		queueLag:         queueLag,
		documentsTotal:   documentsTotal,
		resultsPersisted: resultsPersisted,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.jobsInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(duration time.Duration, err error) {
	m.jobsInFlight.Dec()

	status := "done"
	if err != nil {
		status = "failed"
	}

	m.jobsTotal.WithLabelValues(m.service, status).Inc()
	m.jobDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) AddDocuments(status domain.DocumentStatus, n int) {
	if n <= 0 {
		return
	}
	m.documentsTotal.WithLabelValues(m.service, string(status)).Add(float64(n))
}

func (m *WorkerMetrics) AddResults(n int) {
	if n <= 0 {
		return
	}
	m.resultsPersisted.WithLabelValues(m.service).Add(float64(n))
}

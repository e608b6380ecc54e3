package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stackops"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg        *prom.Registry
	jobs       *prom.CounterVec
	duration   *prom.HistogramVec
	rejected   *prom.CounterVec
	running    prom.Gauge
	lastBackup prom.Gauge
}

// NewPrometheusRecorder registers the job metrics on reg, or on a fresh
// registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.jobs = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Finished jobs by action and outcome",
	}, []string{"action", "outcome"})
	pr.duration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Wall time of finished jobs",
		Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
	}, []string{"action"})
	pr.rejected = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_rejected_total",
		Help:      "Submissions dropped because a job was already running",
	}, []string{"action"})
	pr.running = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "job_running",
		Help:      "1 while a job is in flight",
	})
	pr.lastBackup = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "last_backup_timestamp_seconds",
		Help:      "Unix time of the last completed non-dry-run backup",
	})
	reg.MustRegister(pr.jobs, pr.duration, pr.rejected, pr.running, pr.lastBackup)
	return pr
}

// Registry returns the registry the metrics live on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) JobStarted(string) {
	if p == nil {
		return
	}
	p.running.Set(1)
}

func (p *PrometheusRecorder) JobFinished(action string, outcome Outcome, d time.Duration) {
	if p == nil {
		return
	}
	p.running.Set(0)
	p.jobs.WithLabelValues(action, string(outcome)).Inc()
	p.duration.WithLabelValues(action).Observe(d.Seconds())
}

func (p *PrometheusRecorder) JobRejected(action string) {
	if p == nil {
		return
	}
	p.rejected.WithLabelValues(action).Inc()
}

func (p *PrometheusRecorder) SetLastBackup(t time.Time) {
	if p == nil {
		return
	}
	if t.IsZero() {
		p.lastBackup.Set(0)
		return
	}
	p.lastBackup.Set(float64(t.Unix()))
}

// HTTPHandler serves the metrics in reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

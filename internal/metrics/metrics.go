package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Metrics struct {
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	NotificationsSkip   *prometheus.CounterVec
	DrainCursor         *prometheus.GaugeVec

	DispatchOutcomes *prometheus.CounterVec
	DispatchWait     prometheus.Histogram

	WorkerAnswers *prometheus.CounterVec

	SchedulerRuns *prometheus.CounterVec

	SupervisorStarts *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "manager_notifications_sent_total",
			Help: "Notifications delivered to managers",
		}, []string{"drain"}),
		NotificationsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "manager_notifications_failed_total",
			Help: "Notifications that could not be delivered",
		}, []string{"drain"}),
		NotificationsSkip: f.NewCounterVec(prometheus.CounterOpts{
			Name: "manager_notifications_skipped_total",
			Help: "Rows skipped by a drain",
		}, []string{"drain", "reason"}),
		DrainCursor: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "manager_drain_cursor",
			Help: "Last id a drain advanced its cursor to",
		}, []string{"drain"}),
		DispatchOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "manager_dispatch_outcomes_total",
			Help: "Results of awaiting a worker answer",
		}, []string{"task", "outcome"}),
		DispatchWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "manager_dispatch_wait_seconds",
			Help:    "Time spent awaiting a worker answer",
			Buckets: []float64{0.5, 1, 2, 3, 5, 7.5, 10},
		}),
		WorkerAnswers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "manager_worker_answers_total",
			Help: "Jobs answered by worker processes",
		}, []string{"task", "status"}),
		SchedulerRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "manager_scheduler_runs_total",
			Help: "Scheduled task executions",
		}, []string{"task", "status"}),
		SupervisorStarts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "manager_supervisor_starts_total",
			Help: "Worker process start attempts",
		}, []string{"outcome"}),
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

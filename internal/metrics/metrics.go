package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reply outcomes
const (
	OutcomeModel               = "model"
	OutcomeFallbackScript      = "fallback_script"
	OutcomeFallbackPlaceholder = "fallback_placeholder"
)

var (
	// RepliesTotal counts generated replies by how they were produced.
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dreamate",
			Name:      "replies_total",
			Help:      "Total number of generated persona replies",
		},
		[]string{"outcome"},
	)

	// ReplyDuration observes the latency of reply generation including fallback.
	ReplyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dreamate",
			Name:      "reply_duration_seconds",
			Help:      "Reply generation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)

	// LLMErrorsTotal counts failed chat completion calls.
	LLMErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dreamate",
			Name:      "llm_errors_total",
			Help:      "Total number of failed chat completion calls",
		},
		[]string{"provider"},
	)

	// ReviewsTotal counts vocabulary reviews by rating.
	ReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dreamate",
			Name:      "reviews_total",
			Help:      "Total number of vocabulary reviews",
		},
		[]string{"rating"},
	)

	// RemindersTotal counts sent review reminders.
	RemindersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dreamate",
			Name:      "reminders_total",
			Help:      "Total number of review reminders sent",
		},
	)
)

// Handler returns the prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

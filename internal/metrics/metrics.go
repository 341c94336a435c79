package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tgreddit_poll_cycles_total",
		Help: "Completed poll cycles",
	})
	SubscriptionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tgreddit_subscription_failures_total",
		Help: "Subscriptions whose listing could not be fetched",
	})
	PostsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgreddit_posts_delivered_total",
		Help: "Posts delivered to a chat",
	}, []string{"kind"})
	PostFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgreddit_post_failures_total",
		Help: "Posts whose delivery failed and were marked seen anyway",
	}, []string{"kind"})
	PostsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgreddit_posts_skipped_total",
		Help: "Posts not delivered",
	}, []string{"reason"})
)

// Skip reasons.
const (
	SkipSeen     = "seen"
	SkipFilter   = "filter"
	SkipBackfill = "backfill"
)

// Pinger reports whether a dependency is healthy.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(db Pinger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	return r
}

// Serve runs the listener until ctx is done.
func Serve(ctx context.Context, addr string, db Pinger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(db),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

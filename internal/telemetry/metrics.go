// Package telemetry exposes Prometheus metrics for the music player and a
// small HTTP surface serving them.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics is nil-safe: every recording method on a nil *Metrics is a no-op.
type Metrics struct {
	registry        *prometheus.Registry
	players         prometheus.Gauge
	nodeEvents      *prometheus.CounterVec
	reactions       *prometheus.CounterVec
	autoplay        *prometheus.CounterVec
	idleDisconnects prometheus.Counter
}

// New registers the player collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lavaplayer",
			Name:      "active_players",
			Help:      "Guilds with a connected player.",
		}),
		nodeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lavaplayer",
			Name:      "node_events_total",
			Help:      "Audio node callbacks by type.",
		}, []string{"type"}),
		reactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lavaplayer",
			Name:      "reaction_controls_total",
			Help:      "Handled reaction controls by action.",
		}, []string{"action"}),
		autoplay: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lavaplayer",
			Name:      "autoplay_lookups_total",
			Help:      "Autoplay related-track lookups by outcome.",
		}, []string{"outcome"}),
		idleDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lavaplayer",
			Name:      "idle_disconnects_total",
			Help:      "Players disconnected after the idle window.",
		}),
	}
	reg.MustRegister(
		m.players, m.nodeEvents, m.reactions, m.autoplay, m.idleDisconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) SetPlayers(n int) {
	if m == nil {
		return
	}
	m.players.Set(float64(n))
}

func (m *Metrics) NodeEvent(kind string) {
	if m == nil {
		return
	}
	m.nodeEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) Reaction(action string) {
	if m == nil {
		return
	}
	m.reactions.WithLabelValues(action).Inc()
}

func (m *Metrics) Autoplay(found bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if found {
		outcome = "hit"
	}
	m.autoplay.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IdleDisconnect() {
	if m == nil {
		return
	}
	m.idleDisconnects.Inc()
}

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}

// Serve runs the metrics server on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Package metrics exposes Prometheus collectors for the voice time ledger and
// the voice connection.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connection outcomes used as the "outcome" label of VoiceConnects.
const (
	OutcomeConnected        = "connected"
	OutcomeAlreadyConnected = "already_connected"
	OutcomeFailed           = "failed"
)

// Collectors groups every metric the bot reports. It implements
// ledger.Observer.
type Collectors struct {
	ActiveGauge   prometheus.Gauge
	TrackedGauge  prometheus.Gauge
	FoldedSeconds prometheus.Counter
	Flushes       prometheus.Counter
	FlushFailures prometheus.Counter
	VoiceConnects *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ActiveGauge:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "voicetime_active_sessions", Help: "Users currently present in the monitored voice channel"}),
		TrackedGauge:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "voicetime_tracked_users", Help: "Users with an accumulated total"}),
		FoldedSeconds: prometheus.NewCounter(prometheus.CounterOpts{Name: "voicetime_folded_seconds_total", Help: "Seconds folded into accumulated totals"}),
		Flushes:       prometheus.NewCounter(prometheus.CounterOpts{Name: "voicetime_flushes_total", Help: "Successful writes of the data file"}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{Name: "voicetime_flush_failures_total", Help: "Failed writes of the data file"}),
		VoiceConnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicetime_voice_connects_total",
			Help: "Voice channel connection attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(c.ActiveGauge, c.TrackedGauge, c.FoldedSeconds, c.Flushes, c.FlushFailures, c.VoiceConnects)
	}
	return c
}

func (c *Collectors) ActiveSessions(n int) { c.ActiveGauge.Set(float64(n)) }

func (c *Collectors) TrackedUsers(n int) { c.TrackedGauge.Set(float64(n)) }

func (c *Collectors) Folded(seconds float64) {
	if seconds > 0 {
		c.FoldedSeconds.Add(seconds)
	}
}

func (c *Collectors) Flushed(err error) {
	if err != nil {
		c.FlushFailures.Inc()
		return
	}
	c.Flushes.Inc()
}

// VoiceConnect records a connection attempt outcome.
func (c *Collectors) VoiceConnect(outcome string) {
	c.VoiceConnects.WithLabelValues(outcome).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

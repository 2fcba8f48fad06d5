package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"validation-generator/internal/schedule"
)

type Collector struct {
	reg *prometheus.Registry

	RowsRead    prometheus.Counter
	RowsSkipped *prometheus.CounterVec // reason label: missing_field|malformed_time
	Trips       prometheus.Gauge
	Stops       prometheus.Gauge

	ValidationsRequested prometheus.Gauge
	ValidationsWritten   prometheus.Counter
	DrawsSkipped         prometheus.Counter
	TapErrors            prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	BatchDuration prometheus.Histogram
	RunDuration   prometheus.Gauge // seconds
}

func NewCollector(requested int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generator_schedule_rows_total",
			Help: "Total stop_times rows read.",
		}),
		RowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "generator_schedule_rows_skipped_total",
			Help: "stop_times rows not indexed.",
		}, []string{"reason"}),
		Trips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "generator_indexed_trips",
			Help: "Distinct trips in the schedule index.",
		}),
		Stops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "generator_indexed_stops",
			Help: "Distinct stops in the schedule index.",
		}),
		ValidationsRequested: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "generator_validations_requested",
			Help: "Number of draws requested for this run.",
		}),
		ValidationsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generator_validations_written_total",
			Help: "Total validations written to the output.",
		}),
		DrawsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generator_draws_skipped_total",
			Help: "Draws that hit a trip without stops.",
		}),
		TapErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generator_tap_errors_total",
			Help: "Validations written but not forwarded to the tap.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generator_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generator_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "generator_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "generator_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "generator_batch_duration_seconds",
			Help:    "Duration to generate and write one progress batch.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "generator_run_duration_seconds",
			Help: "Wall time of the last completed run.",
		}),
	}

	reg.MustRegister(
		c.RowsRead, c.RowsSkipped, c.Trips, c.Stops,
		c.ValidationsRequested, c.ValidationsWritten, c.DrawsSkipped, c.TapErrors,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.BatchDuration, c.RunDuration,
	)

	c.ValidationsRequested.Set(float64(requested))

	return c
}

// ObserveIndex records the outcome of a schedule build.
func (c *Collector) ObserveIndex(idx *schedule.Index) {
	c.RowsRead.Add(float64(idx.Stats.Rows))
	c.RowsSkipped.WithLabelValues("missing_field").Add(float64(idx.Stats.SkippedMissing))
	c.RowsSkipped.WithLabelValues("malformed_time").Add(float64(idx.Stats.SkippedMalformed))
	c.Trips.Set(float64(idx.TripCount()))
	c.Stops.Set(float64(idx.StopCount()))
}

// Writer-side hooks, see output.Metrics.
func (c *Collector) ValidationWritten()           { c.ValidationsWritten.Inc() }
func (c *Collector) TapErrorInc()                 { c.TapErrors.Inc() }
func (c *Collector) BatchObserve(d time.Duration) { c.BatchDuration.Observe(d.Seconds()) }

// Publisher-side hooks, see publisher.PublisherMetrics.
func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(b bool) {
	if b {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}

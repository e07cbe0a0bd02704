package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"transit-realtime/internal/realtime"
)

type Collector struct {
	reg *prometheus.Registry

	FetchDuration *prometheus.HistogramVec // kind
	FetchFailures *prometheus.CounterVec   // kind

	DecodedRecords *prometheus.GaugeVec   // kind
	DecodeErrors   *prometheus.CounterVec // kind
	Fallbacks      *prometheus.CounterVec // kind

	TickDuration *prometheus.HistogramVec // mode: poll|simulate
	Generation   prometheus.Gauge
	Simulated    prometheus.Gauge
	Subscribers  prometheus.Gauge
	SinkErrors   *prometheus.CounterVec // sink

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	PollInterval prometheus.Gauge // seconds
	SimInterval  prometheus.Gauge // seconds
}

func NewCollector(pollInterval, simInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transit_rt_fetch_duration_seconds",
			Help:    "Duration of feed fetches.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_rt_fetch_failures_total",
			Help: "Feed fetches that returned no payload.",
		}, []string{"kind"}),
		DecodedRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transit_rt_decoded_records",
			Help: "Records decoded from the last fetch.",
		}, []string{"kind"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_rt_decode_errors_total",
			Help: "Feed payloads that failed to decode.",
		}, []string{"kind"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_rt_fallback_total",
			Help: "Snapshots that used placeholder data.",
		}, []string{"kind"}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transit_rt_tick_duration_seconds",
			Help:    "Duration of poll and simulation ticks.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"mode"}),
		Generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_rt_snapshot_generation",
			Help: "Generation of the current snapshot.",
		}),
		Simulated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_rt_snapshot_simulated",
			Help: "1 if the current snapshot was produced by simulation.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_rt_subscribers",
			Help: "Active snapshot subscribers.",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_rt_sink_errors_total",
			Help: "Failed sink publishes.",
		}, []string{"sink"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_rt_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_rt_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_rt_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transit_rt_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_rt_poll_interval_seconds",
			Help: "Feed poll interval in seconds.",
		}),
		SimInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_rt_sim_interval_seconds",
			Help: "Simulation interval in seconds, 0 when disabled.",
		}),
	}

	reg.MustRegister(
		c.FetchDuration, c.FetchFailures,
		c.DecodedRecords, c.DecodeErrors, c.Fallbacks,
		c.TickDuration, c.Generation, c.Simulated, c.Subscribers, c.SinkErrors,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.PollInterval, c.SimInterval,
	)

	c.PollInterval.Set(pollInterval.Seconds())
	c.SimInterval.Set(simInterval.Seconds())

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) FetchObserve(kind realtime.Kind, d time.Duration, ok bool) {
	c.FetchDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
	if !ok {
		c.FetchFailures.WithLabelValues(kind.String()).Inc()
	}
}

func (c *Collector) DecodeObserve(kind realtime.Kind, records int, err error) {
	if err != nil {
		c.DecodeErrors.WithLabelValues(kind.String()).Inc()
	}
	c.DecodedRecords.WithLabelValues(kind.String()).Set(float64(records))
}

func (c *Collector) FallbackInc(kind realtime.Kind) {
	c.Fallbacks.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) TickObserve(mode string, d time.Duration) {
	c.TickDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (c *Collector) SnapshotPublished(snap *realtime.FeedSnapshot) {
	c.Generation.Set(float64(snap.Generation))
	if snap.Simulated {
		c.Simulated.Set(1)
	} else {
		c.Simulated.Set(0)
	}
}

func (c *Collector) SubscribersSet(n int) { c.Subscribers.Set(float64(n)) }

func (c *Collector) SinkErrInc(sink string) { c.SinkErrors.WithLabelValues(sink).Inc() }

func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }

func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
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
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}

// Package metrics holds the Prometheus collectors for the orchestrator and
// the output loop.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the spatx metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	ActivePlaybacks prometheus.Gauge
	PendingActions  prometheus.Gauge
	Transitions     *prometheus.CounterVec
	Rejected        *prometheus.CounterVec
	ScheduleLatency prometheus.Histogram
	TickDuration    prometheus.Histogram
	BatchesSent     prometheus.Counter
	MessagesSent    prometheus.Counter
	TransportErrors prometheus.Counter
	BatchesDropped  prometheus.Counter
}

// New registers the collectors against reg, defaulting to the global
// registry when nil. Collectors already registered under the same name are
// reused.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &Collector{gatherer: gatherer}
	var err error

	if c.ActivePlaybacks, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spatx_playbacks_active",
		Help: "Playbacks currently starting, playing, paused or stopping.",
	}), "spatx_playbacks_active"); err != nil {
		return nil, err
	}
	if c.PendingActions, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spatx_scheduled_actions_pending",
		Help: "Scheduled actions waiting for their execution time.",
	}), "spatx_scheduled_actions_pending"); err != nil {
		return nil, err
	}
	if c.Transitions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spatx_playback_transitions_total",
		Help: "Playback state transitions, labeled by the state entered.",
	}, []string{"state"}), "spatx_playback_transitions_total"); err != nil {
		return nil, err
	}
	if c.Rejected, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spatx_playback_requests_rejected_total",
		Help: "Playback requests rejected at schedule time, labeled by reason.",
	}, []string{"reason"}), "spatx_playback_requests_rejected_total"); err != nil {
		return nil, err
	}
	if c.ScheduleLatency, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spatx_schedule_duration_seconds",
		Help:    "Time spent validating and admitting a playback request.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "spatx_schedule_duration_seconds"); err != nil {
		return nil, err
	}
	if c.TickDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spatx_tick_duration_seconds",
		Help:    "Time spent computing one output batch.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.033, 0.05},
	}), "spatx_tick_duration_seconds"); err != nil {
		return nil, err
	}
	if c.BatchesSent, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spatx_batches_sent_total",
		Help: "Output batches delivered to the transport.",
	}), "spatx_batches_sent_total"); err != nil {
		return nil, err
	}
	if c.MessagesSent, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spatx_messages_sent_total",
		Help: "Track messages delivered to the transport.",
	}), "spatx_messages_sent_total"); err != nil {
		return nil, err
	}
	if c.TransportErrors, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spatx_transport_errors_total",
		Help: "Batches the transport failed to deliver.",
	}), "spatx_transport_errors_total"); err != nil {
		return nil, err
	}
	if c.BatchesDropped, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spatx_batches_dropped_total",
		Help: "Unsent batches replaced by a newer one because the transport was busy.",
	}), "spatx_batches_dropped_total"); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler exposes a /metrics handler for the collector's gatherer.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Transition counts a playback entering state.
func (c *Collector) Transition(state string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(state).Inc()
}

// Reject counts a rejected request.
func (c *Collector) Reject(reason string) {
	if c == nil {
		return
	}
	c.Rejected.WithLabelValues(reason).Inc()
}

// ObserveSchedule records how long admitting a request took.
func (c *Collector) ObserveSchedule(d time.Duration) {
	if c == nil {
		return
	}
	c.ScheduleLatency.Observe(d.Seconds())
}

// SetCounts updates the active playback and pending action gauges.
func (c *Collector) SetCounts(active, pending int) {
	if c == nil {
		return
	}
	c.ActivePlaybacks.Set(float64(active))
	c.PendingActions.Set(float64(pending))
}

// ObserveTick records the time spent building one batch.
func (c *Collector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// Sent counts a delivered batch of n messages.
func (c *Collector) Sent(n int) {
	if c == nil {
		return
	}
	c.BatchesSent.Inc()
	c.MessagesSent.Add(float64(n))
}

// TransportError counts a failed delivery.
func (c *Collector) TransportError() {
	if c == nil {
		return
	}
	c.TransportErrors.Inc()
}

// Dropped counts a batch superseded before it was sent.
func (c *Collector) Dropped() {
	if c == nil {
		return
	}
	c.BatchesDropped.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

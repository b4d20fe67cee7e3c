// Package stream is the output pacing loop: it ticks the orchestrator at a
// fixed rate and sends every tick's positions to the renderer as one batch.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matt-g-everett/spatx/logging"
	"github.com/matt-g-everett/spatx/metrics"
	"github.com/matt-g-everett/spatx/playback"
	"github.com/matt-g-everett/spatx/tracks"
)

// Source produces one frame per tick.
type Source interface {
	Tick(now time.Time) playback.Frame
}

// Recorder is told the outcome of every delivery.
type Recorder interface {
	RecordDelivery(n int, err error)
}

// TrackLister supplies track colours.
type TrackLister interface {
	List() []tracks.Track
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithRate sets the tick rate in Hz.
func WithRate(hz float64) Option {
	return func(s *Streamer) {
		if hz > 0 {
			s.interval = time.Duration(float64(time.Second) / hz)
		}
	}
}

// WithRecorder sets where delivery outcomes are reported.
func WithRecorder(r Recorder) Option { return func(s *Streamer) { s.recorder = r } }

// WithColors makes the streamer send track colours on start and after
// SyncColors.
func WithColors(l TrackLister) Option { return func(s *Streamer) { s.colors = l } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(s *Streamer) { s.log = logging.OrNoop(l) } }

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option { return func(s *Streamer) { s.metrics = m } }

// Streamer runs the pacing loop.
type Streamer struct {
	source    Source
	encoder   *Encoder
	transport Transport
	recorder  Recorder
	colors    TrackLister
	interval  time.Duration
	log       logging.Logger
	metrics   *metrics.Collector

	seq        uint64
	syncColors atomic.Bool
}

// NewStreamer creates a Streamer ticking at 30 Hz unless configured
// otherwise.
func NewStreamer(source Source, encoder *Encoder, transport Transport, opts ...Option) *Streamer {
	s := &Streamer{
		source:    source,
		encoder:   encoder,
		transport: transport,
		interval:  time.Second / 30,
		log:       logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.syncColors.Store(s.colors != nil)
	return s
}

// Interval returns the tick period.
func (s *Streamer) Interval() time.Duration { return s.interval }

// SyncColors resends every track colour with the next batch.
func (s *Streamer) SyncColors() {
	if s.colors != nil {
		s.syncColors.Store(true)
	}
}

// Run ticks until ctx is cancelled. Delivery happens on a separate
// goroutine, so a slow transport never delays a tick; if a batch is still
// unsent when the next one is ready, the older one is dropped.
func (s *Streamer) Run(ctx context.Context) error {
	snd := newSender(s.transport, s.recorder, s.metrics, s.log)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		snd.run(ctx)
	}()
	defer wg.Wait()

	s.log.Info(ctx, "output loop started", logging.Any("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info(ctx, "output loop stopped")
			return nil
		case now := <-ticker.C:
			if b, ok := s.Step(now); ok {
				snd.offer(b)
			}
		}
	}
}

// Step runs one tick and returns the batch to send. ok is false when
// nothing needs sending. The batch is built fresh every tick; nothing
// carries over to the next one.
func (s *Streamer) Step(now time.Time) (Batch, bool) {
	start := time.Now()
	frame := s.source.Tick(now)
	msgs := s.encoder.Positions(frame)
	if s.colors != nil && s.syncColors.CompareAndSwap(true, false) {
		msgs = append(Colors(s.colors.List()), msgs...)
	}
	s.metrics.ObserveTick(time.Since(start))
	if len(msgs) == 0 {
		return Batch{}, false
	}
	s.seq++
	return Batch{Seq: s.seq, Time: now, Messages: msgs}, true
}

// sender delivers batches one at a time, keeping only the newest unsent
// batch.
type sender struct {
	transport Transport
	recorder  Recorder
	metrics   *metrics.Collector
	log       logging.Logger

	mu      sync.Mutex
	pending *Batch
	wake    chan struct{}
}

func newSender(t Transport, r Recorder, m *metrics.Collector, log logging.Logger) *sender {
	return &sender{transport: t, recorder: r, metrics: m, log: log, wake: make(chan struct{}, 1)}
}

func (s *sender) offer(b Batch) {
	s.mu.Lock()
	if s.pending != nil {
		s.metrics.Dropped()
	}
	s.pending = &b
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *sender) take() *Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.pending
	s.pending = nil
	return b
}

func (s *sender) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		b := s.take()
		if b == nil {
			continue
		}
		err := s.transport.SendBatch(ctx, *b)
		if err != nil && ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Warn(ctx, "batch delivery failed", logging.Err(err))
		}
		if s.recorder != nil {
			s.recorder.RecordDelivery(len(b.Messages), err)
		}
	}
}

package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/matt-g-everett/spatx/metrics"
	"github.com/matt-g-everett/spatx/playback"
	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/tracks"
)

type staticSource struct {
	ticks atomic.Int64
	frame playback.Frame
}

func (s *staticSource) Tick(now time.Time) playback.Frame {
	s.ticks.Add(1)
	return s.frame
}

type countingTransport struct {
	mu      sync.Mutex
	batches []Batch
	delay   time.Duration
	err     error
}

func (t *countingTransport) SendBatch(ctx context.Context, b Batch) error {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	t.mu.Lock()
	t.batches = append(t.batches, b)
	t.mu.Unlock()
	return t.err
}

func (t *countingTransport) Close() error { return nil }

func (t *countingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.batches)
}

type deliveries struct {
	ok, failed atomic.Int64
}

func (d *deliveries) RecordDelivery(n int, err error) {
	if err != nil {
		d.failed.Add(1)
	} else {
		d.ok.Add(1)
	}
}

func trackSet(t *testing.T) *tracks.Set {
	t.Helper()
	s, err := tracks.NewSet(
		tracks.Track{ID: "lead", Index: 2},
		tracks.Track{ID: "pad", Index: 1},
	)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestEncoderPositions(t *testing.T) {
	enc := NewEncoder(trackSet(t), XYZ)
	msgs := enc.Positions(playback.Frame{Positions: map[string]position.Position{
		"lead":    position.New(1, 2, 3),
		"pad":     position.New(0, 5000, 0),
		"unknown": position.New(9, 9, 9),
	}})
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].Address != "/track/1/xyz" || msgs[0].Args[1] != 1000 {
		t.Fatalf("pad message = %+v, want clamped y", msgs[0])
	}
	if msgs[1].Address != "/track/2/xyz" || msgs[1].Args[2] != 3 {
		t.Fatalf("lead message = %+v", msgs[1])
	}

	aed := NewEncoder(trackSet(t), AED).Positions(playback.Frame{Positions: map[string]position.Position{
		"pad": position.New(1, 0, 0),
	}})
	if aed[0].Address != "/track/1/aed" || aed[0].Args[0] != 90 || aed[0].Args[1] != 0 || aed[0].Args[2] != 1 {
		t.Fatalf("aed message = %+v", aed[0])
	}
}

func TestColors(t *testing.T) {
	set := trackSet(t)
	set.SetColor("pad", "#ff0000")
	msgs := Colors(set.List())
	if len(msgs) != 2 || msgs[0].Address != "/track/1/color" {
		t.Fatalf("colour messages = %+v", msgs)
	}
	if a := msgs[0].Args; a[0] != 1 || a[1] != 0 || a[2] != 0 {
		t.Fatalf("pad colour = %v", a)
	}
}

func TestBatchBinary(t *testing.T) {
	in := Batch{Seq: 42, Time: time.Unix(0, 1234567890), Messages: []Message{
		{Address: "/track/1/xyz", Args: []float32{1, -2.5, 3}},
		{Address: "/track/7/color", Args: []float32{0.5, 0.5, 0}},
	}}
	data, err := in.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var out Batch
	if err := out.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if out.Seq != 42 || !out.Time.Equal(in.Time) || len(out.Messages) != 2 ||
		out.Messages[1].Address != "/track/7/color" || out.Messages[0].Args[1] != -2.5 {
		t.Fatalf("decoded = %+v", out)
	}
	if err := out.UnmarshalBinary(data[:len(data)-3]); err == nil {
		t.Fatalf("truncated batch accepted")
	}
}

func TestStepBuildsFreshBatches(t *testing.T) {
	src := &staticSource{frame: playback.Frame{Positions: map[string]position.Position{"lead": position.New(1, 1, 1)}}}
	set := trackSet(t)
	s := NewStreamer(src, NewEncoder(set, XYZ), &countingTransport{}, WithColors(set))

	b, ok := s.Step(time.Now())
	if !ok || len(b.Messages) != 3 || b.Seq != 1 {
		t.Fatalf("first batch = %+v", b)
	}
	b, _ = s.Step(time.Now())
	if len(b.Messages) != 1 || b.Seq != 2 {
		t.Fatalf("second batch carried messages over: %+v", b)
	}
	s.SyncColors()
	if b, _ = s.Step(time.Now()); len(b.Messages) != 3 {
		t.Fatalf("colours not resent: %+v", b)
	}

	src.frame = playback.Frame{}
	if _, ok := s.Step(time.Now()); ok {
		t.Fatalf("empty frame produced a batch")
	}
}

func TestPacing(t *testing.T) {
	src := &staticSource{frame: playback.Frame{Positions: map[string]position.Position{"lead": position.New(1, 1, 1)}}}
	tr := &countingTransport{}
	rec := &deliveries{}
	s := NewStreamer(src, NewEncoder(trackSet(t), XYZ), tr, WithRate(30), WithRecorder(rec))

	// A busy loop standing in for a saturated visual refresh.
	stop := make(chan struct{})
	var busy sync.WaitGroup
	busy.Add(1)
	go func() {
		defer busy.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = src.frame.Positions["lead"].Length()
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second+10*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	close(stop)
	busy.Wait()

	if n := tr.count(); n < 29 || n > 31 {
		t.Fatalf("sent %d batches in one second, want 30±1", n)
	}
	if rec.ok.Load() != int64(tr.count()) {
		t.Fatalf("recorded %d deliveries, sent %d", rec.ok.Load(), tr.count())
	}
}

func TestSlowTransportDropsStaleBatches(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatal(err)
	}
	src := &staticSource{frame: playback.Frame{Positions: map[string]position.Position{"lead": position.New(1, 1, 1)}}}
	tr := &countingTransport{delay: 100 * time.Millisecond}
	s := NewStreamer(src, NewEncoder(trackSet(t), XYZ), tr, WithRate(50), WithMetrics(m))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	ticks := src.ticks.Load()
	if ticks < 20 {
		t.Fatalf("slow transport stalled the loop: %d ticks", ticks)
	}
	if sent := tr.count(); sent >= int(ticks) {
		t.Fatalf("sent %d of %d batches; expected stale ones dropped", sent, ticks)
	}
	if testutil.ToFloat64(m.BatchesDropped) == 0 {
		t.Fatalf("no dropped batches counted")
	}
}

func TestTransportErrorsAreRecorded(t *testing.T) {
	src := &staticSource{frame: playback.Frame{Positions: map[string]position.Position{"pad": position.New(1, 1, 1)}}}
	rec := &deliveries{}
	tr := &countingTransport{err: &TransportError{Transport: "fake", Err: errors.New("unreachable")}}
	s := NewStreamer(src, NewEncoder(trackSet(t), XYZ), tr, WithRate(100), WithRecorder(rec))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)
	if rec.failed.Load() == 0 || rec.ok.Load() != 0 {
		t.Fatalf("ok=%d failed=%d", rec.ok.Load(), rec.failed.Load())
	}
}

type fakeOSC struct{ packets []osc.Packet }

func (f *fakeOSC) Send(p osc.Packet) error {
	f.packets = append(f.packets, p)
	return nil
}

func TestOSCTransportSendsOneBundle(t *testing.T) {
	fake := &fakeOSC{}
	tr := &OSCTransport{client: fake}
	err := tr.SendBatch(context.Background(), Batch{Time: time.Now(), Messages: []Message{
		{Address: "/track/1/xyz", Args: []float32{1, 2, 3}},
		{Address: "/track/2/xyz", Args: []float32{4, 5, 6}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(fake.packets) != 1 {
		t.Fatalf("%d packets sent, want one bundle", len(fake.packets))
	}
	bundle, ok := fake.packets[0].(*osc.Bundle)
	if !ok || len(bundle.Messages) != 2 || bundle.Messages[1].Address != "/track/2/xyz" {
		t.Fatalf("bundle = %+v", fake.packets[0])
	}
	if got := bundle.Messages[0].Arguments[2]; got != float32(3) {
		t.Fatalf("z argument = %v", got)
	}
}

func TestParseCoordinates(t *testing.T) {
	if c, err := ParseCoordinates("AED"); err != nil || c != AED {
		t.Fatalf("ParseCoordinates = %v, %v", c, err)
	}
	if _, err := ParseCoordinates("polar"); err == nil {
		t.Fatalf("unknown format accepted")
	}
	if _, err := Dial(Config{Transport: "carrier-pigeon"}); err == nil {
		t.Fatalf("unknown transport accepted")
	}
}

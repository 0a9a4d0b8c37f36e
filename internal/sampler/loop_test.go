package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermo-ocr/internal/imaging"
	"github.com/ironsheep/thermo-ocr/internal/preprocess"
	"github.com/ironsheep/thermo-ocr/internal/reading"
	"github.com/ironsheep/thermo-ocr/internal/sink"
)

const testAddress = "http://collector.local/readings"

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// createFrame returns a w x h gray gradient frame.
func createFrame(t *testing.T, w, h int) *imaging.Buffer {
	t.Helper()
	pix := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = uint8((x * 255) / w)
		}
	}
	b, err := imaging.NewGray(w, h, pix)
	if err != nil {
		t.Fatalf("NewGray failed: %v", err)
	}
	return b
}

type fakeSource struct {
	mu     sync.Mutex
	frame  *imaging.Buffer
	region imaging.Region
}

func (s *fakeSource) CurrentFrame() *imaging.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *fakeSource) CurrentRegion() imaging.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region
}

type fakeOCR struct {
	mu      sync.Mutex
	text    string
	err     error
	panics  bool
	calls   atomic.Int32
	started chan struct{}
	block   chan struct{}
	langs   []string
}

func (f *fakeOCR) Recognize(ctx context.Context, img *imaging.Buffer, language string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.langs = append(f.langs, language)
	text, err, panics, block := f.text, f.err, f.panics, f.block
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if panics {
		panic("engine crashed")
	}
	return text, err
}

func (f *fakeOCR) set(text string, err error) {
	f.mu.Lock()
	f.text, f.err = text, err
	f.mu.Unlock()
}

type fakeDispatcher struct {
	mu      sync.Mutex
	result  sink.Result
	targets []sink.Target
	temps   []float64
	calls   atomic.Int32
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, r reading.SensorReading, target sink.Target) sink.Result {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = append(d.targets, target)
	d.temps = append(d.temps, r.Temperature)
	if d.result == (sink.Result{}) {
		return sink.Result{Success: true, Message: "reading sent: ok"}
	}
	return d.result
}

type fakeStore struct {
	connected   bool
	recent      []reading.SensorReading
	recentCalls atomic.Int32
}

func (s *fakeStore) IsConnected() bool { return s.connected }

func (s *fakeStore) Insert(ctx context.Context, r reading.SensorReading) (string, error) {
	return "saved", nil
}

func (s *fakeStore) Recent(ctx context.Context, n int) ([]reading.SensorReading, error) {
	s.recentCalls.Add(1)
	if n < len(s.recent) {
		return s.recent[:n], nil
	}
	return s.recent, nil
}

type recordingObserver struct {
	mu    sync.Mutex
	kinds []OutcomeKind
}

func (o *recordingObserver) ObserveOutcome(out Outcome) {
	o.mu.Lock()
	o.kinds = append(o.kinds, out.Kind)
	o.mu.Unlock()
}

func (o *recordingObserver) count(k OutcomeKind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, got := range o.kinds {
		if got == k {
			n++
		}
	}
	return n
}

type harness struct {
	loop     *Loop
	source   *fakeSource
	ocr      *fakeOCR
	dispatch *fakeDispatcher
	observer *recordingObserver
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, text string) *harness {
	t.Helper()
	h := &harness{
		source:   &fakeSource{frame: createFrame(t, 40, 30), region: imaging.Region{X: 5, Y: 5, Width: 20, Height: 20}},
		ocr:      &fakeOCR{text: text},
		dispatch: &fakeDispatcher{},
		observer: &recordingObserver{},
	}
	loop, err := New(Options{
		Source:     h.source,
		OCR:        h.ocr,
		Dispatcher: h.dispatch,
		Target:     sink.Network{Address: testAddress},
		Observer:   h.observer,
		Log:        testLogger(),
		Now:        func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.loop = loop
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		loop.Close(ctx)
	})
	return h
}

func (h *harness) trigger(t *testing.T) Outcome {
	t.Helper()
	out, err := h.loop.TriggerOnce(context.Background())
	if err != nil {
		t.Fatalf("TriggerOnce failed: %v", err)
	}
	return out
}

func currentGen(l *Loop) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

func waitStarted(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not reach OCR")
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New should reject missing collaborators")
	}
}

func TestNew_Defaults(t *testing.T) {
	h := newHarness(t, "")
	if h.loop.State() != Idle {
		t.Errorf("State: got %v, want idle", h.loop.State())
	}
	if h.loop.Language() != "tur" {
		t.Errorf("Language: got %q, want tur", h.loop.Language())
	}
	if h.loop.Params() != preprocess.DefaultParams() {
		t.Errorf("Params: got %+v", h.loop.Params())
	}
	if h.loop.Filter() != reading.DefaultFilter() {
		t.Errorf("Filter: got %+v", h.loop.Filter())
	}
}

func TestCycle_NoFrame(t *testing.T) {
	h := newHarness(t, "61")
	h.source.frame = nil

	out := h.trigger(t)
	if out.Kind != NoFrame {
		t.Fatalf("Kind: got %v, want no_frame", out.Kind)
	}
	if n := h.ocr.calls.Load(); n != 0 {
		t.Errorf("OCR calls: got %d, want 0", n)
	}
	if n := h.dispatch.calls.Load(); n != 0 {
		t.Errorf("dispatch calls: got %d, want 0", n)
	}
}

func TestCycle_NoRegion(t *testing.T) {
	tests := []struct {
		name   string
		region imaging.Region
	}{
		{"zero area", imaging.Region{X: 5, Y: 5}},
		{"outside frame", imaging.Region{X: 100, Y: 100, Width: 10, Height: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "61")
			h.source.region = tt.region

			if out := h.trigger(t); out.Kind != NoRegion {
				t.Errorf("Kind: got %v, want no_region", out.Kind)
			}
			if n := h.ocr.calls.Load(); n != 0 {
				t.Errorf("OCR calls: got %d, want 0", n)
			}
		})
	}
}

func TestCycle_RegionClampedToFrame(t *testing.T) {
	h := newHarness(t, "61")
	h.source.region = imaging.Region{X: 30, Y: 20, Width: 100, Height: 100}

	if out := h.trigger(t); out.Kind != Dispatched {
		t.Errorf("Kind: got %v (%s), want dispatched", out.Kind, out.Message)
	}
}

func TestCycle_Dispatched(t *testing.T) {
	h := newHarness(t, "  -12,5 garbage")

	out := h.trigger(t)
	if out.Kind != Dispatched {
		t.Fatalf("Kind: got %v (%s), want dispatched", out.Kind, out.Message)
	}
	if out.Reading == nil || out.Reading.Temperature != -12.5 {
		t.Fatalf("Reading: got %+v", out.Reading)
	}
	if out.Reading.Humidity != reading.PlaceholderHumidity {
		t.Errorf("Humidity: got %v, want placeholder", out.Reading.Humidity)
	}
	if !out.Reading.Timestamp.Equal(fixedNow) {
		t.Errorf("Timestamp: got %v", out.Reading.Timestamp)
	}
	if out.ID == "" || out.Cycle != 1 || out.Trigger != TriggerManual {
		t.Errorf("unexpected identity %+v", out)
	}
	if out.RawText != "  -12,5 garbage" {
		t.Errorf("RawText: got %q", out.RawText)
	}
	if n := h.dispatch.calls.Load(); n != 1 {
		t.Errorf("dispatch calls: got %d, want 1", n)
	}
	if got := h.dispatch.targets[0]; got != (sink.Network{Address: testAddress}) {
		t.Errorf("target: got %v", got)
	}
	if h.ocr.langs[0] != "tur" {
		t.Errorf("language: got %q", h.ocr.langs[0])
	}
}

func TestCycle_FilteredOut(t *testing.T) {
	for _, text := range []string{"0", "25.5", "50"} {
		t.Run(text, func(t *testing.T) {
			h := newHarness(t, text)
			out := h.trigger(t)
			if out.Kind != FilteredOut {
				t.Fatalf("Kind: got %v, want filtered_out", out.Kind)
			}
			if !strings.Contains(out.Message, "excluded") {
				t.Errorf("Message should explain the rejection, got %q", out.Message)
			}
			if out.Err != nil {
				t.Errorf("filtered outcome should carry no error, got %v", out.Err)
			}
			if n := h.dispatch.calls.Load(); n != 0 {
				t.Errorf("dispatch calls: got %d, want 0", n)
			}
		})
	}
}

func TestCycle_ExtractionFailed(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
	}{
		{name: "no number", text: "abc"},
		{name: "empty", text: ""},
		{name: "engine error", err: errors.New("tesseract: init failed")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "")
			h.ocr.set(tt.text, tt.err)

			out := h.trigger(t)
			if out.Kind != ExtractionFailed {
				t.Fatalf("Kind: got %v, want extraction_failed", out.Kind)
			}
			if !errors.Is(out.Err, ErrExtractionFailed) {
				t.Errorf("Err: got %v, want ErrExtractionFailed", out.Err)
			}
			if tt.err != nil && !errors.Is(out.Err, tt.err) {
				t.Errorf("Err should wrap the engine error, got %v", out.Err)
			}
			if n := h.dispatch.calls.Load(); n != 0 {
				t.Errorf("dispatch calls: got %d, want 0", n)
			}
		})
	}
}

func TestCycle_SinkFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want OutcomeKind
	}{
		{"unavailable", fmt.Errorf("%w: %w", sink.ErrSinkUnavailable, errors.New("connection refused")), SinkUnavailable},
		{"invalid configuration", fmt.Errorf("%w: %w", sink.ErrInvalidConfiguration, errors.New("network address is empty")), InvalidConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "72.4")
			h.dispatch.result = sink.Result{Message: "failed", Err: tt.err}

			out := h.trigger(t)
			if out.Kind != tt.want {
				t.Fatalf("Kind: got %v, want %v", out.Kind, tt.want)
			}
			if !errors.Is(out.Err, tt.err) {
				t.Errorf("Err: got %v", out.Err)
			}

			// The loop keeps working after a sink failure.
			h.dispatch.mu.Lock()
			h.dispatch.result = sink.Result{}
			h.dispatch.mu.Unlock()
			if out := h.trigger(t); out.Kind != Dispatched {
				t.Errorf("next cycle: got %v, want dispatched", out.Kind)
			}
		})
	}
}

func TestCycle_PanicRecovered(t *testing.T) {
	h := newHarness(t, "72")
	h.ocr.panics = true

	out := h.trigger(t)
	if out.Kind != InvalidInput {
		t.Fatalf("Kind: got %v, want invalid_input", out.Kind)
	}
	if !errors.Is(out.Err, preprocess.ErrInvalidInput) || !strings.Contains(out.Message, "engine crashed") {
		t.Errorf("Err: got %v", out.Err)
	}

	h.ocr.panics = false
	if out := h.trigger(t); out.Kind != Dispatched {
		t.Errorf("cycle after panic: got %v, want dispatched", out.Kind)
	}
}

func TestStart_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		target sink.Target
		want   error
	}{
		{"storage not connected", sink.Storage{Store: &fakeStore{}}, sink.ErrSinkUnavailable},
		{"storage missing", sink.Storage{}, sink.ErrSinkUnavailable},
		{"network without address", sink.Network{}, sink.ErrInvalidConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "")
			if err := h.loop.SetTarget(tt.target); err != nil {
				t.Fatalf("SetTarget failed: %v", err)
			}
			err := h.loop.Start(5)
			if !errors.Is(err, ErrPreconditionFailed) {
				t.Errorf("Start: got %v, want ErrPreconditionFailed", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Start: got %v, want it to wrap %v", err, tt.want)
			}
			if h.loop.State() != Idle {
				t.Error("failed Start should leave the loop idle")
			}
		})
	}
}

func TestStart_Interval(t *testing.T) {
	h := newHarness(t, "")
	for _, n := range []int{0, -1, 601} {
		err := h.loop.Start(n)
		if !errors.Is(err, ErrInvalidInterval) || !errors.Is(err, sink.ErrInvalidConfiguration) {
			t.Errorf("Start(%d): got %v, want ErrInvalidInterval", n, err)
		}
	}
	if h.loop.State() != Idle {
		t.Error("rejected intervals should leave the loop idle")
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, "")

	if err := h.loop.Start(600); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s := h.loop.Status(); s.State != Running || s.IntervalSeconds != 600 {
		t.Errorf("Status: got %+v", s)
	}
	first := currentGen(h.loop)

	if err := h.loop.Start(30); err != nil {
		t.Fatalf("re-arming Start failed: %v", err)
	}
	if s := h.loop.Status(); s.State != Running || s.IntervalSeconds != 30 {
		t.Errorf("Status after re-arm: got %+v", s)
	}
	if h.loop.tick(first) {
		t.Error("a tick from the replaced timer should be ignored")
	}

	h.loop.Stop()
	if h.loop.State() != Idle {
		t.Error("Stop should leave the loop idle")
	}
	if h.loop.tick(currentGen(h.loop)) {
		t.Error("a tick after Stop should be ignored")
	}
	h.loop.Stop()
}

func TestStart_Storage(t *testing.T) {
	h := newHarness(t, "")
	h.loop.SetTarget(sink.Storage{Store: &fakeStore{connected: true}})
	if err := h.loop.Start(1); err != nil {
		t.Fatalf("Start with connected storage failed: %v", err)
	}
	h.loop.Stop()
}

func TestTimer_RunsCycles(t *testing.T) {
	h := newHarness(t, "88")
	sub, cancel := h.loop.Subscribe(4)
	defer cancel()

	if err := h.loop.Start(1); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case out := <-sub:
		if out.Trigger != TriggerTimer || out.Kind != Dispatched {
			t.Errorf("timer outcome: got %s", out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not run a cycle")
	}
	h.loop.Stop()
}

func TestSingleFlight(t *testing.T) {
	h := newHarness(t, "88")
	h.ocr.started = make(chan struct{}, 4)
	h.ocr.block = make(chan struct{})

	if err := h.loop.Start(600); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	gen := currentGen(h.loop)

	if !h.loop.tick(gen) {
		t.Fatal("first tick should start a cycle")
	}
	waitStarted(t, h.ocr.started)

	if h.loop.tick(gen) || h.loop.tick(gen) {
		t.Error("ticks during an in-flight cycle should be skipped")
	}
	if !h.loop.Status().InFlight {
		t.Error("Status should report the in-flight cycle")
	}
	close(h.ocr.block)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.loop.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if n := h.dispatch.calls.Load(); n != 1 {
		t.Errorf("dispatch calls: got %d, want 1", n)
	}
	if n := h.observer.count(Skipped); n != 2 {
		t.Errorf("skipped ticks observed: got %d, want 2", n)
	}
	if got := h.loop.Outcomes(0); len(got) != 1 {
		t.Errorf("skipped ticks should not enter the history, got %d outcomes", len(got))
	}
}

func TestStop_DoesNotAbortInFlightCycle(t *testing.T) {
	h := newHarness(t, "88")
	h.ocr.started = make(chan struct{}, 1)
	h.ocr.block = make(chan struct{})

	if err := h.loop.Start(600); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.loop.tick(currentGen(h.loop))
	waitStarted(t, h.ocr.started)

	h.loop.Stop()
	close(h.ocr.block)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.loop.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got := h.loop.Outcomes(0)
	if len(got) != 1 || got[0].Kind != Dispatched {
		t.Fatalf("in-flight cycle should complete and be recorded, got %v", got)
	}
}

func TestTriggerOnce_WaitsForInFlightCycle(t *testing.T) {
	h := newHarness(t, "88")
	h.ocr.started = make(chan struct{}, 2)
	h.ocr.block = make(chan struct{})

	h.loop.Start(600)
	h.loop.tick(currentGen(h.loop))
	waitStarted(t, h.ocr.started)

	// A manual trigger with an expiring context gives up while waiting.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.loop.TriggerOnce(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("TriggerOnce: got %v, want deadline exceeded", err)
	}

	done := make(chan Outcome, 1)
	go func() {
		out, _ := h.loop.TriggerOnce(context.Background())
		done <- out
	}()

	select {
	case <-done:
		t.Fatal("manual trigger ran while a cycle was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	if n := h.ocr.calls.Load(); n != 1 {
		t.Errorf("OCR calls while gated: got %d, want 1", n)
	}

	close(h.ocr.block)
	select {
	case out := <-done:
		if out.Trigger != TriggerManual || out.Cycle != 2 {
			t.Errorf("manual outcome: got %s", out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("manual trigger never ran")
	}
	if n := h.dispatch.calls.Load(); n != 2 {
		t.Errorf("dispatch calls: got %d, want 2", n)
	}
}

func TestCycle_UsesSnapshotTakenAtStart(t *testing.T) {
	h := newHarness(t, "88")
	h.ocr.started = make(chan struct{}, 1)
	h.ocr.block = make(chan struct{})

	done := make(chan Outcome, 1)
	go func() {
		out, _ := h.loop.TriggerOnce(context.Background())
		done <- out
	}()
	waitStarted(t, h.ocr.started)

	h.loop.SetTarget(sink.Network{Address: "http://other.local/"})
	h.loop.SetLanguage("eng")
	close(h.ocr.block)
	<-done

	if got := h.dispatch.targets[0]; got != (sink.Network{Address: testAddress}) {
		t.Errorf("in-flight cycle should use its starting target, got %v", got)
	}
	if h.ocr.langs[0] != "tur" {
		t.Errorf("in-flight cycle should use its starting language, got %q", h.ocr.langs[0])
	}

	h.ocr.started, h.ocr.block = nil, nil
	h.trigger(t)
	if got := h.dispatch.targets[1]; got != (sink.Network{Address: "http://other.local/"}) {
		t.Errorf("next cycle should use the new target, got %v", got)
	}
	if h.ocr.langs[1] != "eng" {
		t.Errorf("next cycle should use the new language, got %q", h.ocr.langs[1])
	}
}

func TestSetParams_Clamps(t *testing.T) {
	h := newHarness(t, "")
	p := preprocess.DefaultParams()
	p.Contrast = 99
	p.Denoise = -3

	got := h.loop.SetParams(p)
	if got.Contrast != 4 || got.Denoise != 0 {
		t.Errorf("SetParams: got %+v", got)
	}
	if h.loop.Params() != got {
		t.Error("Params should return the clamped set")
	}
}

func TestRecentReadings(t *testing.T) {
	h := newHarness(t, "88")
	store := &fakeStore{connected: true, recent: []reading.SensorReading{
		{ID: 2, Temperature: 88}, {ID: 1, Temperature: 77},
	}}
	h.loop.SetTarget(sink.Storage{Store: store})

	h.source.frame = nil
	h.trigger(t)
	if n := store.recentCalls.Load(); n != 0 {
		t.Errorf("a cycle without a frame should not refresh, got %d calls", n)
	}

	h.source.frame = createFrame(t, 40, 30)
	h.ocr.set("12", nil)
	if out := h.trigger(t); out.Kind != FilteredOut {
		t.Fatalf("Kind: got %v", out.Kind)
	}
	got := h.loop.RecentReadings()
	if len(got) != 2 || got[0].ID != 2 {
		t.Errorf("RecentReadings: got %+v", got)
	}

	got[0].ID = 99
	if h.loop.RecentReadings()[0].ID != 2 {
		t.Error("RecentReadings should return a copy")
	}
}

func TestRefreshRecent_NetworkTarget(t *testing.T) {
	h := newHarness(t, "")
	if err := h.loop.RefreshRecent(context.Background()); err != nil {
		t.Errorf("RefreshRecent: %v", err)
	}
	if len(h.loop.RecentReadings()) != 0 {
		t.Error("network target should leave the view empty")
	}
}

func TestOutcomesAndSubscribe(t *testing.T) {
	h := newHarness(t, "88")
	sub, cancel := h.loop.Subscribe(8)
	defer cancel()

	for i := 0; i < 3; i++ {
		h.trigger(t)
	}

	got := h.loop.Outcomes(2)
	if len(got) != 2 || got[0].Cycle != 3 || got[1].Cycle != 2 {
		t.Errorf("Outcomes(2): got cycles %v", got)
	}
	if all := h.loop.Outcomes(0); len(all) != 3 {
		t.Errorf("Outcomes(0): got %d", len(all))
	}
	for want := uint64(1); want <= 3; want++ {
		if out := <-sub; out.Cycle != want {
			t.Errorf("subscriber got cycle %d, want %d", out.Cycle, want)
		}
	}
	if last := h.loop.Status().LastOutcome; last == nil || last.Cycle != 3 {
		t.Errorf("LastOutcome: got %+v", last)
	}

	ctx, cc := context.WithTimeout(context.Background(), time.Second)
	defer cc()
	h.loop.Close(ctx)
	if _, ok := <-sub; ok {
		t.Error("Close should close subscriber channels")
	}
	if _, err := h.loop.TriggerOnce(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("TriggerOnce after Close: got %v", err)
	}
	if err := h.loop.Start(5); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close: got %v", err)
	}
}

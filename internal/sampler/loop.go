package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermo-ocr/internal/imaging"
	"github.com/ironsheep/thermo-ocr/internal/ocr"
	"github.com/ironsheep/thermo-ocr/internal/preprocess"
	"github.com/ironsheep/thermo-ocr/internal/reading"
	"github.com/ironsheep/thermo-ocr/internal/sink"
)

const (
	MinInterval = 1
	MaxInterval = 600

	// DefaultHistory is how many outcomes Outcomes can return.
	DefaultHistory = 100
	// DefaultRecentCount is the size of the recent-readings view.
	DefaultRecentCount = 20
)

var (
	// ErrPreconditionFailed is returned by Start when the sink target cannot
	// accept readings. It is joined with the sink error describing why.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrInvalidInterval is returned by Start for intervals outside 1-600 seconds.
	ErrInvalidInterval = fmt.Errorf("%w: interval must be %d-%d seconds", sink.ErrInvalidConfiguration, MinInterval, MaxInterval)
	// ErrExtractionFailed wraps OCR failures and text without a number.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sampler closed")
)

// FrameSource supplies the latest frame and the OCR region.
// CurrentFrame returns nil when no frame is available.
type FrameSource interface {
	CurrentFrame() *imaging.Buffer
	CurrentRegion() imaging.Region
}

// Recognizer turns a processed region into text.
type Recognizer interface {
	Recognize(ctx context.Context, img *imaging.Buffer, language string) (string, error)
}

// Dispatcher delivers accepted readings.
type Dispatcher interface {
	Dispatch(ctx context.Context, r reading.SensorReading, target sink.Target) sink.Result
}

// Observer is told about every outcome, including skipped timer firings.
type Observer interface {
	ObserveOutcome(o Outcome)
}

// State is the loop's timer state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Options configures a Loop. Source, OCR and Dispatcher are required.
type Options struct {
	Source     FrameSource
	OCR        Recognizer
	Dispatcher Dispatcher

	// Target defaults to a network target with no address.
	Target   sink.Target
	Params   preprocess.Params
	Language string
	Filter   reading.Filter

	History     int
	RecentCount int
	Observer    Observer
	Log         *logrus.Entry

	// Now overrides the reading timestamp clock in tests.
	Now func() time.Time
}

// Loop is the sampling state machine.
type Loop struct {
	source     FrameSource
	ocr        Recognizer
	dispatcher Dispatcher
	observer   Observer
	log        *logrus.Entry
	now        func() time.Time

	mu       sync.Mutex
	state    State
	interval time.Duration
	gen      uint64
	disarm   chan struct{}
	closed   bool
	params   preprocess.Params
	language string
	target   sink.Target
	filter   reading.Filter

	// gate holds a token while a cycle runs.
	gate   chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	cycles atomic.Uint64

	history *history

	recentMu    sync.RWMutex
	recent      []reading.SensorReading
	recentCount int
}

// New creates an idle loop.
func New(opts Options) (*Loop, error) {
	if opts.Source == nil || opts.OCR == nil || opts.Dispatcher == nil {
		return nil, errors.New("sampler: source, OCR engine and dispatcher are required")
	}
	if opts.Target == nil {
		opts.Target = sink.Network{}
	}
	if opts.Language == "" {
		opts.Language = ocr.DefaultLanguage
	}
	if opts.Filter == (reading.Filter{}) {
		opts.Filter = reading.DefaultFilter()
	}
	if opts.Params == (preprocess.Params{}) {
		opts.Params = preprocess.DefaultParams()
	}
	if opts.History <= 0 {
		opts.History = DefaultHistory
	}
	if opts.RecentCount <= 0 {
		opts.RecentCount = DefaultRecentCount
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		source:      opts.Source,
		ocr:         opts.OCR,
		dispatcher:  opts.Dispatcher,
		observer:    opts.Observer,
		log:         opts.Log,
		now:         opts.Now,
		params:      opts.Params.Clamped(),
		language:    opts.Language,
		target:      opts.Target,
		filter:      opts.Filter,
		gate:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		history:     newHistory(opts.History),
		recentCount: opts.RecentCount,
	}, nil
}

// Start arms the timer to run a cycle every intervalSeconds. If the loop is
// already running the timer is re-armed with the new interval.
//
// Start fails with ErrPreconditionFailed when the current target cannot
// accept readings: storage that is not connected, or a network target with
// no address. The returned error also wraps the matching sink error.
func (l *Loop) Start(intervalSeconds int) error {
	if intervalSeconds < MinInterval || intervalSeconds > MaxInterval {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, intervalSeconds)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if err := checkTarget(l.target); err != nil {
		return fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
	}

	rearm := l.state == Running
	l.disarmLocked()
	l.interval = time.Duration(intervalSeconds) * time.Second
	l.state = Running
	l.gen++
	l.disarm = make(chan struct{})
	l.wg.Add(1)
	go l.run(l.gen, l.interval, l.disarm)

	fields := logrus.Fields{"interval": l.interval, "target": l.target.String()}
	if rearm {
		l.log.WithFields(fields).Info("Sampling re-armed")
	} else {
		l.log.WithFields(fields).Info("Sampling started")
	}
	return nil
}

// checkTarget reports why t cannot accept readings, or nil.
func checkTarget(t sink.Target) error {
	switch t := t.(type) {
	case sink.Storage:
		if t.Store == nil || !t.Store.IsConnected() {
			return fmt.Errorf("%w: storage is not connected", sink.ErrSinkUnavailable)
		}
	case sink.Network:
		if t.Address == "" {
			return fmt.Errorf("%w: network address is empty", sink.ErrInvalidConfiguration)
		}
	default:
		return fmt.Errorf("%w: no sink target selected", sink.ErrInvalidConfiguration)
	}
	return nil
}

// Stop disarms the timer. A cycle already in flight runs to completion and
// its outcome is recorded.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Idle {
		return
	}
	l.disarmLocked()
	l.log.Info("Sampling stopped")
}

func (l *Loop) disarmLocked() {
	if l.disarm != nil {
		close(l.disarm)
		l.disarm = nil
	}
	l.state = Idle
}

func (l *Loop) run(gen uint64, interval time.Duration, disarm <-chan struct{}) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-disarm:
			return
		case <-ticker.C:
			l.tick(gen)
		}
	}
}

// tick starts a timer cycle unless one is already in flight. It reports
// whether a cycle was started.
func (l *Loop) tick(gen uint64) bool {
	l.mu.Lock()
	if l.closed || l.state != Running || l.gen != gen {
		l.mu.Unlock()
		return false
	}
	select {
	case l.gate <- struct{}{}:
	default:
		l.mu.Unlock()
		l.skip()
		return false
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer l.release()
		l.runCycle(l.ctx, TriggerTimer)
	}()
	return true
}

func (l *Loop) release() { <-l.gate }

func (l *Loop) skip() {
	o := Outcome{
		Trigger: TriggerTimer,
		Kind:    Skipped,
		Started: time.Now(),
		Message: "previous cycle still in flight",
	}
	l.log.WithFields(logrus.Fields{"trigger": o.Trigger, "outcome": o.Kind}).Debug(o.String())
	if l.observer != nil {
		l.observer.ObserveOutcome(o)
	}
}

// TriggerOnce runs one cycle now, regardless of state, and returns its
// outcome. It waits for an in-flight cycle to finish first; the error is
// non-nil only if ctx ends while waiting or the loop is closed.
func (l *Loop) TriggerOnce(ctx context.Context) (Outcome, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return Outcome{}, ErrClosed
	}
	l.wg.Add(1)
	l.mu.Unlock()
	defer l.wg.Done()

	select {
	case l.gate <- struct{}{}:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	defer l.release()
	return l.runCycle(ctx, TriggerManual), nil
}

// Close stops the timer and waits for in-flight cycles to finish or ctx to
// end. Subscribers' channels are closed.
func (l *Loop) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.disarmLocked()
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for in-flight cycle: %w", ctx.Err())
	}
	l.cancel()
	l.history.close()
	return err
}

// State returns Idle or Running.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Params returns the processing parameters for the next cycle.
func (l *Loop) Params() preprocess.Params {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params
}

// SetParams replaces the processing parameters. Out-of-range values are
// clamped; the clamped set is returned.
func (l *Loop) SetParams(p preprocess.Params) preprocess.Params {
	p = p.Clamped()
	l.mu.Lock()
	l.params = p
	l.mu.Unlock()
	l.log.WithField("params", fmt.Sprintf("%+v", p)).Debug("Processing parameters updated")
	return p
}

// Language returns the OCR language.
func (l *Loop) Language() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.language
}

// SetLanguage sets the OCR language. An empty language selects the default.
func (l *Loop) SetLanguage(lang string) {
	if lang == "" {
		lang = ocr.DefaultLanguage
	}
	l.mu.Lock()
	l.language = lang
	l.mu.Unlock()
}

// Target returns the sink target.
func (l *Loop) Target() sink.Target {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target
}

// SetTarget switches the sink target. A running loop keeps running; if the
// new target is unusable, cycles report it in their outcomes.
func (l *Loop) SetTarget(t sink.Target) error {
	if t == nil {
		return fmt.Errorf("%w: no sink target selected", sink.ErrInvalidConfiguration)
	}
	l.mu.Lock()
	l.target = t
	l.mu.Unlock()
	l.log.WithField("target", t.String()).Info("Sink target changed")
	return nil
}

// Filter returns the reading filter.
func (l *Loop) Filter() reading.Filter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter
}

// Status is a point-in-time view of the loop.
type Status struct {
	State           State             `json:"state"`
	IntervalSeconds int               `json:"interval_seconds,omitempty"`
	Target          string            `json:"target"`
	Language        string            `json:"language"`
	Params          preprocess.Params `json:"params"`
	Region          imaging.Region    `json:"region"`
	Filter          reading.Filter    `json:"filter"`
	Cycles          uint64            `json:"cycles"`
	InFlight        bool              `json:"in_flight"`
	LastOutcome     *Outcome          `json:"last_outcome,omitempty"`
}

// Status returns the current state and configuration.
func (l *Loop) Status() Status {
	l.mu.Lock()
	s := Status{
		State:    l.state,
		Target:   l.target.String(),
		Language: l.language,
		Params:   l.params,
		Filter:   l.filter,
	}
	if l.state == Running {
		s.IntervalSeconds = int(l.interval / time.Second)
	}
	l.mu.Unlock()

	s.Region = l.source.CurrentRegion()
	s.Cycles = l.cycles.Load()
	s.InFlight = len(l.gate) > 0
	if last := l.history.last(1); len(last) == 1 {
		s.LastOutcome = &last[0]
	}
	return s
}

// Outcomes returns up to n recorded outcomes, newest first.
func (l *Loop) Outcomes(n int) []Outcome {
	return l.history.last(n)
}

// Subscribe returns a channel receiving every recorded outcome and a
// function that ends the subscription. Outcomes are dropped for
// subscribers whose buffer is full.
func (l *Loop) Subscribe(buffer int) (<-chan Outcome, func()) {
	return l.history.subscribe(buffer)
}

// RecentReadings returns the cached recent-readings view, newest first.
func (l *Loop) RecentReadings() []reading.SensorReading {
	l.recentMu.RLock()
	defer l.recentMu.RUnlock()
	out := make([]reading.SensorReading, len(l.recent))
	copy(out, l.recent)
	return out
}

// RefreshRecent reloads the recent-readings view when the target is a
// connected storage sink.
func (l *Loop) RefreshRecent(ctx context.Context) error {
	return l.refreshRecent(ctx, l.Target())
}

func (l *Loop) refreshRecent(ctx context.Context, t sink.Target) error {
	st, ok := t.(sink.Storage)
	if !ok || st.Store == nil || !st.Store.IsConnected() {
		return nil
	}
	rs, err := st.Store.Recent(ctx, l.recentCount)
	if err != nil {
		return fmt.Errorf("failed to load recent readings: %w", err)
	}
	l.recentMu.Lock()
	l.recent = rs
	l.recentMu.Unlock()
	return nil
}

package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermo-ocr/internal/imaging"
	"github.com/ironsheep/thermo-ocr/internal/preprocess"
	"github.com/ironsheep/thermo-ocr/internal/reading"
	"github.com/ironsheep/thermo-ocr/internal/sink"
)

// snapshot is the configuration a cycle runs with.
type snapshot struct {
	params   preprocess.Params
	language string
	target   sink.Target
	filter   reading.Filter
	region   imaging.Region
}

func (l *Loop) snapshot() snapshot {
	l.mu.Lock()
	s := snapshot{
		params:   l.params,
		language: l.language,
		target:   l.target,
		filter:   l.filter,
	}
	l.mu.Unlock()
	s.region = l.source.CurrentRegion()
	return s
}

// runCycle performs one sampling cycle. The caller holds the gate.
func (l *Loop) runCycle(ctx context.Context, trigger Trigger) Outcome {
	out := Outcome{
		ID:      uuid.NewString(),
		Cycle:   l.cycles.Add(1),
		Trigger: trigger,
		Started: time.Now(),
	}
	snap := l.snapshot()
	out.Target = snap.target.String()

	l.execute(ctx, snap, &out)

	if out.Kind.reachedExtraction() {
		if err := l.refreshRecent(ctx, snap.target); err != nil {
			l.log.WithError(err).Warn("Recent readings not refreshed")
		}
	}
	out.Duration = time.Since(out.Started)
	l.record(out)
	return out
}

// execute runs the pipeline and fills out. Panics become InvalidInput.
func (l *Loop) execute(ctx context.Context, snap snapshot, out *Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out.fail(InvalidInput, fmt.Errorf("%w: cycle panicked: %v", preprocess.ErrInvalidInput, r))
		}
	}()

	frame := l.source.CurrentFrame()
	if frame.Empty() {
		out.Kind = NoFrame
		out.Message = "no frame available"
		return
	}
	region := snap.region.Clamp(frame.Width(), frame.Height())
	if region.Empty() {
		out.Kind = NoRegion
		out.Message = fmt.Sprintf("region %s has no area inside %dx%d frame", snap.region, frame.Width(), frame.Height())
		return
	}

	crop, err := imaging.Crop(frame, region)
	if err != nil {
		if errors.Is(err, imaging.ErrEmptyRegion) {
			out.fail(NoRegion, err)
		} else {
			out.fail(InvalidInput, fmt.Errorf("%w: %w", preprocess.ErrInvalidInput, err))
		}
		return
	}
	processed, err := preprocess.Process(crop, snap.params)
	if err != nil {
		out.fail(InvalidInput, err)
		return
	}

	text, err := l.ocr.Recognize(ctx, processed, snap.language)
	out.RawText = text
	if err != nil {
		out.fail(ExtractionFailed, fmt.Errorf("%w: %w", ErrExtractionFailed, err))
		return
	}
	cand := reading.ExtractSampling(text)
	if !cand.Valid {
		out.fail(ExtractionFailed, fmt.Errorf("%w: no number in %q", ErrExtractionFailed, text))
		return
	}

	r := reading.New(cand.Temperature, l.now())
	out.Reading = &r
	if !snap.filter.Accept(r) {
		out.Kind = FilteredOut
		out.Message = snap.filter.Explain(r)
		return
	}

	res := l.dispatcher.Dispatch(ctx, r, snap.target)
	if res.Success {
		out.Kind = Dispatched
		out.Message = res.Message
		return
	}
	kind := SinkUnavailable
	if errors.Is(res.Err, sink.ErrInvalidConfiguration) {
		kind = InvalidConfiguration
	}
	out.Kind = kind
	out.Err = res.Err
	out.Message = res.Message
}

// record logs o, stores it and notifies the observer and subscribers.
func (l *Loop) record(o Outcome) {
	entry := l.log.WithFields(logrus.Fields{
		"cycle":   o.Cycle,
		"trigger": o.Trigger,
		"outcome": o.Kind,
	})
	if o.Err != nil {
		entry = entry.WithError(o.Err)
	}
	entry.Log(o.Kind.level(), o.String())

	l.history.add(o)
	if l.observer != nil {
		l.observer.ObserveOutcome(o)
	}
}

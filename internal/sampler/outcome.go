package sampler

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermo-ocr/internal/reading"
)

// OutcomeKind classifies how a sampling cycle ended.
type OutcomeKind int

const (
	// Dispatched means the reading reached its sink.
	Dispatched OutcomeKind = iota
	// NoFrame means the frame source had nothing to read.
	NoFrame
	// NoRegion means the region had zero area after clamping to the frame.
	NoRegion
	// InvalidInput means the image could not be processed.
	InvalidInput
	// ExtractionFailed means OCR failed or its text held no number.
	ExtractionFailed
	// FilteredOut means the reading was valid but excluded by the filter.
	FilteredOut
	// SinkUnavailable means the sink could not take the reading.
	SinkUnavailable
	// InvalidConfiguration means the sink target is unusable as configured.
	InvalidConfiguration
	// Skipped means a timer firing arrived while a cycle was in flight.
	Skipped
)

var kindNames = [...]string{
	Dispatched:           "dispatched",
	NoFrame:              "no_frame",
	NoRegion:             "no_region",
	InvalidInput:         "invalid_input",
	ExtractionFailed:     "extraction_failed",
	FilteredOut:          "filtered_out",
	SinkUnavailable:      "sink_unavailable",
	InvalidConfiguration: "invalid_configuration",
	Skipped:              "skipped",
}

// Kinds lists every outcome kind in declaration order.
func Kinds() []OutcomeKind {
	kinds := make([]OutcomeKind, len(kindNames))
	for i := range kindNames {
		kinds[i] = OutcomeKind(i)
	}
	return kinds
}

func (k OutcomeKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *OutcomeKind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = OutcomeKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", text)
}

// level is the log level for outcomes of this kind.
func (k OutcomeKind) level() logrus.Level {
	switch k {
	case Dispatched, FilteredOut:
		return logrus.InfoLevel
	case NoFrame, NoRegion, ExtractionFailed:
		return logrus.WarnLevel
	case Skipped:
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

// reachedExtraction reports whether a cycle ending this way got as far as
// reading text, after which the recent-readings view is refreshed.
func (k OutcomeKind) reachedExtraction() bool {
	switch k {
	case Dispatched, ExtractionFailed, FilteredOut, SinkUnavailable, InvalidConfiguration:
		return true
	}
	return false
}

// Trigger says what started a cycle.
type Trigger string

const (
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
)

// Outcome records one sampling cycle.
type Outcome struct {
	ID       string                 `json:"id"`
	Cycle    uint64                 `json:"cycle"`
	Trigger  Trigger                `json:"trigger"`
	Kind     OutcomeKind            `json:"kind"`
	Started  time.Time              `json:"started"`
	Duration time.Duration          `json:"duration_ns"`
	Target   string                 `json:"target,omitempty"`
	RawText  string                 `json:"raw_text,omitempty"`
	Reading  *reading.SensorReading `json:"reading,omitempty"`
	Message  string                 `json:"message,omitempty"`

	// Err is the failure behind the outcome, nil for Dispatched and
	// FilteredOut.
	Err error `json:"-"`
}

func (o Outcome) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cycle %d (%s): %s", o.Cycle, o.Trigger, o.Kind)
	if o.Reading != nil {
		fmt.Fprintf(&sb, " %.2f°C", o.Reading.Temperature)
	}
	if o.Target != "" && (o.Kind == Dispatched || o.Kind == SinkUnavailable || o.Kind == InvalidConfiguration) {
		fmt.Fprintf(&sb, " -> %s", o.Target)
	}
	if o.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(o.Message)
	}
	return sb.String()
}

func (o *Outcome) fail(kind OutcomeKind, err error) {
	o.Kind = kind
	o.Err = err
	o.Message = err.Error()
}

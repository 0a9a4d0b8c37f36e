// Package reading turns raw OCR text into temperature readings.
//
// Two extraction policies are provided and they are deliberately separate:
// ExtractGeneral tries a list of labelled patterns and enforces a plausibility
// range, while ExtractSampling takes the first signed number in the text and
// leaves range decisions to a Filter.
//
// Patterns match ASCII digits only; other Unicode decimal digits are ignored.
package reading

import (
	"fmt"
	"time"
)

// PlaceholderHumidity is stored with every reading. Humidity is not read from
// the display; this constant marks the gap until a humidity source exists.
const PlaceholderHumidity = 70.0

// Candidate is the result of one extraction attempt.
type Candidate struct {
	RawText     string  `json:"raw_text"`
	Temperature float64 `json:"temperature"`
	Valid       bool    `json:"valid"`
	// Strategy names the pattern that produced the value, empty when invalid.
	Strategy string `json:"strategy,omitempty"`
}

func (c Candidate) String() string {
	if !c.Valid {
		return fmt.Sprintf("no reading in %q", c.RawText)
	}
	return fmt.Sprintf("%g (%s) from %q", c.Temperature, c.Strategy, c.RawText)
}

// SensorReading is an accepted measurement ready for a sink.
type SensorReading struct {
	// ID is assigned by the storage sink on insert; zero means unassigned.
	ID          int64     `json:"id,omitempty"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Timestamp   time.Time `json:"timestamp"`
}

// New builds a reading for temperature taken at ts, with the placeholder humidity.
func New(temperature float64, ts time.Time) SensorReading {
	return SensorReading{
		Temperature: temperature,
		Humidity:    PlaceholderHumidity,
		Timestamp:   ts,
	}
}

func (r SensorReading) String() string {
	return fmt.Sprintf("%.2f°C %.1f%% at %s", r.Temperature, r.Humidity, r.Timestamp.Format(time.RFC3339))
}

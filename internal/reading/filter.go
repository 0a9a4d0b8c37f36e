package reading

import "fmt"

// Filter discards readings whose temperature lies inside [RejectMin, RejectMax],
// bounds inclusive. Readings outside the band are accepted.
//
// The default band rejects 0-50°C, which is the ordinary indoor range. The
// rule is kept exactly as deployed pending confirmation that it is not an
// inverted condition.
type Filter struct {
	RejectMin float64 `json:"reject_min"`
	RejectMax float64 `json:"reject_max"`
}

// DefaultFilter returns the deployed 0-50°C exclusion band.
func DefaultFilter() Filter {
	return Filter{RejectMin: 0, RejectMax: 50}
}

// Accept reports whether r should be dispatched.
func (f Filter) Accept(r SensorReading) bool {
	return r.Temperature < f.RejectMin || r.Temperature > f.RejectMax
}

// Explain returns the rejection reason for r, or "" when r is accepted.
func (f Filter) Explain(r SensorReading) string {
	if f.Accept(r) {
		return ""
	}
	return fmt.Sprintf("temperature %g°C is inside the excluded range %g-%g°C", r.Temperature, f.RejectMin, f.RejectMax)
}

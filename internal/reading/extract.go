package reading

import (
	"regexp"
	"strconv"
	"strings"
)

// Plausibility range applied by ExtractGeneral.
const (
	MinPlausible = -50.0
	MaxPlausible = 150.0
)

type strategy struct {
	name    string
	pattern *regexp.Regexp
}

// generalStrategies are tried in order; only the first match of each is used.
var generalStrategies = []strategy{
	{"degrees", regexp.MustCompile(`(\d+\.?\d*)\s*°?[Cc]`)},
	{"temperature-label", regexp.MustCompile(`(?:[Ss]ıcaklık|SICAKLIK|[Tt]emperature|TEMPERATURE)\s*[:=]?\s*(\d+\.?\d*)`)},
	{"temp-label", regexp.MustCompile(`(?:[Tt]emp|TEMP)\s*[:=]?\s*(\d+\.?\d*)`)},
	{"number", regexp.MustCompile(`(\d+\.?\d*)`)},
	{"comma-number", regexp.MustCompile(`(\d+,\d*)`)},
}

var signedNumber = regexp.MustCompile(`[-+]?\d+[.,]?\d*`)

// ExtractGeneral parses text for ad-hoc inspection.
//
// Strategies are tried in priority order: a number followed by a degree or C
// marker, a "Sıcaklık:"/"Temperature:" label, a "Temp:" label, a bare number
// and finally a comma-decimal number. The first match of a strategy is parsed
// with commas normalized to periods and accepted only when it lies within
// [MinPlausible, MaxPlausible]; otherwise the next strategy is tried.
func ExtractGeneral(text string) Candidate {
	c := Candidate{RawText: strings.TrimSpace(text)}
	if c.RawText == "" {
		return c
	}

	for _, s := range generalStrategies {
		m := s.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, ok := parseNumber(m[1])
		if !ok || v < MinPlausible || v > MaxPlausible {
			continue
		}
		c.Temperature = v
		c.Valid = true
		c.Strategy = s.name
		return c
	}
	return c
}

// ExtractSampling parses text for the sampling loop: the first signed number
// token, with a comma or period decimal separator, is the temperature. No
// range check is applied.
func ExtractSampling(text string) Candidate {
	c := Candidate{RawText: strings.TrimSpace(text)}

	token := signedNumber.FindString(strings.ReplaceAll(text, ",", "."))
	if token == "" {
		return c
	}
	v, ok := parseNumber(token)
	if !ok {
		return c
	}
	c.Temperature = v
	c.Valid = true
	c.Strategy = "signed-number"
	return c
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.ReplaceAll(s, ",", "."), ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

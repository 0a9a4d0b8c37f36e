package camera

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ironsheep/thermo-ocr/internal/imaging"
)

// DefaultRegion is the region used until one is selected.
var DefaultRegion = imaging.Region{X: 100, Y: 100, Width: 200, Height: 150}

// Selection is the current OCR region.
type Selection struct {
	mu     sync.RWMutex
	region imaging.Region
}

// NewSelection creates a selection holding r.
func NewSelection(r imaging.Region) *Selection {
	return &Selection{region: r}
}

// CurrentRegion returns the selected region.
func (s *Selection) CurrentRegion() imaging.Region {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.region
}

// SetRegion replaces the selected region. Negative sizes are rejected; a
// zero-area region is allowed and makes sampling cycles report no region.
func (s *Selection) SetRegion(r imaging.Region) error {
	if r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("invalid region %s: negative size", r)
	}
	s.mu.Lock()
	s.region = r
	s.mu.Unlock()
	return nil
}

// ParseRegion reads "x,y,width,height".
func ParseRegion(s string) (imaging.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return imaging.Region{}, fmt.Errorf("region %q: want x,y,width,height", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return imaging.Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] < 0 || v[3] < 0 {
		return imaging.Region{}, fmt.Errorf("region %q: negative size", s)
	}
	return imaging.Region{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

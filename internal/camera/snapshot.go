package camera

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermo-ocr/internal/imaging"
)

// Snapshot serves frames read from an image file.
type Snapshot struct {
	path  string
	cache *imaging.FrameCache
	log   *logrus.Entry

	mu      sync.Mutex
	lastErr error
}

// NewSnapshot creates a source reading path through cache. A nil cache gets
// a private one.
func NewSnapshot(path string, cache *imaging.FrameCache, log *logrus.Entry) *Snapshot {
	if cache == nil {
		cache = imaging.NewFrameCache()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Snapshot{path: path, cache: cache, log: log}
}

// Path returns the file being served.
func (s *Snapshot) Path() string { return s.path }

// CurrentFrame loads the file, or returns nil if it cannot be read.
func (s *Snapshot) CurrentFrame() *imaging.Buffer {
	b, err := s.cache.Load(s.path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// Log once per distinct failure
		if s.lastErr == nil || s.lastErr.Error() != err.Error() {
			s.log.WithError(err).WithField("path", s.path).Warn("Snapshot unavailable")
		}
		s.lastErr = err
		return nil
	}
	s.lastErr = nil
	return b
}

// Err returns the most recent load error, or nil.
func (s *Snapshot) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

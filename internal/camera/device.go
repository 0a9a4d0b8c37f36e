package camera

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ironsheep/thermo-ocr/internal/imaging"
)

// DefaultIndex is the camera index used when no stream URL is configured.
const DefaultIndex = 1

// retryDelay is how long the capture loop waits after a failed read.
const retryDelay = 100 * time.Millisecond

// DeviceConfig selects the capture source.
type DeviceConfig struct {
	Index    int
	RTSPURL  string
	Username string
	Password string
}

// target returns what gocv.OpenVideoCapture should open.
func (c DeviceConfig) target() any {
	if c.RTSPURL == "" {
		return c.Index
	}
	return InjectCredentials(c.RTSPURL, c.Username, c.Password)
}

// String describes the source without exposing credentials.
func (c DeviceConfig) String() string {
	if c.RTSPURL == "" {
		return fmt.Sprintf("camera %d", c.Index)
	}
	if u, err := url.Parse(c.RTSPURL); err == nil {
		return u.Redacted()
	}
	return "stream"
}

// InjectCredentials returns rawURL with user:pass inserted after the scheme.
// Both must be set; otherwise rawURL is returned unchanged. Credentials
// already present in rawURL are replaced.
func InjectCredentials(rawURL, username, password string) string {
	if username == "" || password == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		scheme, rest, ok := strings.Cut(rawURL, "://")
		if !ok {
			return rawURL
		}
		return scheme + "://" + username + ":" + password + "@" + rest
	}
	u.User = url.UserPassword(username, password)
	return u.String()
}

// Device captures frames from a camera or stream.
type Device struct {
	cfg DeviceConfig
	log *logrus.Entry
	vc  *gocv.VideoCapture

	mu     sync.RWMutex
	latest *imaging.Buffer

	cancel context.CancelFunc
	done   chan struct{}
}

// OpenDevice opens the capture source and starts reading frames until ctx
// ends or Close is called.
func OpenDevice(ctx context.Context, cfg DeviceConfig, log *logrus.Entry) (*Device, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	vc, err := gocv.OpenVideoCapture(cfg.target())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("failed to open %s", cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	d := &Device{
		cfg:    cfg,
		log:    log.WithField("source", cfg.String()),
		vc:     vc,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go d.capture(ctx)
	d.log.Info("Capture started")
	return d, nil
}

func (d *Device) capture(ctx context.Context) {
	defer close(d.done)

	mat := gocv.NewMat()
	defer mat.Close()

	failing := false
	for ctx.Err() == nil {
		if ok := d.vc.Read(&mat); !ok || mat.Empty() {
			if !failing {
				d.log.Warn("Frame read failed")
				failing = true
			}
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
			continue
		}
		if failing {
			d.log.Info("Frame reads recovered")
			failing = false
		}

		img, err := mat.ToImage()
		if err != nil {
			d.log.WithError(err).Debug("Frame conversion failed")
			continue
		}
		frame := imaging.FromImage(img)

		d.mu.Lock()
		d.latest = frame
		d.mu.Unlock()
	}
}

// CurrentFrame returns the most recent frame, or nil before the first read.
// Buffers are never modified after capture, so the result may be shared.
func (d *Device) CurrentFrame() *imaging.Buffer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest
}

// Close stops capture and releases the device.
func (d *Device) Close() error {
	d.cancel()
	<-d.done
	if err := d.vc.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close %s", d.cfg), err)
	}
	return nil
}

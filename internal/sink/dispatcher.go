package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermo-ocr/internal/reading"
)

var (
	// ErrSinkUnavailable means the storage is disconnected, the network is
	// unreachable or the sink rejected the reading.
	ErrSinkUnavailable = errors.New("sink unavailable")
	// ErrInvalidConfiguration means the target cannot be used as configured.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// DefaultTimeout bounds a single network delivery.
const DefaultTimeout = 10 * time.Second

// Payload is the JSON body sent to network sinks.
type Payload struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Timestamp   string  `json:"timestamp"`
}

// EncodePayload serializes r with an ISO-8601 timestamp.
func EncodePayload(r reading.SensorReading) ([]byte, error) {
	return json.Marshal(Payload{
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Timestamp:   r.Timestamp.Format(time.RFC3339Nano),
	})
}

// Result is the outcome of one dispatch.
type Result struct {
	Success bool
	Message string
	// Err is nil on success and wraps ErrSinkUnavailable or
	// ErrInvalidConfiguration otherwise.
	Err error
}

// Dispatcher routes accepted readings to exactly one sink per call.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	log     *logrus.Entry
}

// NewDispatcher creates a dispatcher that delivers network readings through
// sender, each bounded by timeout (DefaultTimeout when zero or negative).
func NewDispatcher(sender Sender, timeout time.Duration, log *logrus.Entry) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{sender: sender, timeout: timeout, log: log}
}

// Dispatch delivers r to target. Failures are reported in the Result, never
// as a returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, r reading.SensorReading, target Target) Result {
	var res Result
	switch t := target.(type) {
	case Storage:
		res = d.toStorage(ctx, r, t)
	case Network:
		res = d.toNetwork(ctx, r, t)
	default:
		res = failure(ErrInvalidConfiguration, errors.New("no sink target selected"))
	}

	d.log.WithFields(logrus.Fields{
		"target":  fmt.Sprint(target),
		"success": res.Success,
	}).Debug(res.Message)
	return res
}

func (d *Dispatcher) toStorage(ctx context.Context, r reading.SensorReading, t Storage) Result {
	if t.Store == nil || !t.Store.IsConnected() {
		return failure(ErrSinkUnavailable, errors.New("storage is not connected"))
	}
	msg, err := t.Store.Insert(ctx, r)
	if err != nil {
		return failure(ErrSinkUnavailable, err)
	}
	return Result{Success: true, Message: msg}
}

func (d *Dispatcher) toNetwork(ctx context.Context, r reading.SensorReading, t Network) Result {
	if t.Address == "" {
		return failure(ErrInvalidConfiguration, errors.New("network address is empty"))
	}
	if d.sender == nil {
		return failure(ErrInvalidConfiguration, errors.New("no network sender configured"))
	}
	payload, err := EncodePayload(r)
	if err != nil {
		return failure(ErrInvalidConfiguration, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	reply, err := d.sender.Send(ctx, t.Address, payload)
	if err != nil {
		return failure(ErrSinkUnavailable, err)
	}
	return Result{Success: true, Message: reply}
}

func failure(kind, cause error) Result {
	return Result{
		Message: cause.Error(),
		Err:     fmt.Errorf("%w: %w", kind, cause),
	}
}

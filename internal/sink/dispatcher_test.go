package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermo-ocr/internal/reading"
)

type fakeStore struct {
	connected bool
	err       error
	inserts   atomic.Int32
}

func (s *fakeStore) IsConnected() bool { return s.connected }

func (s *fakeStore) Insert(ctx context.Context, r reading.SensorReading) (string, error) {
	s.inserts.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return "saved", nil
}

func (s *fakeStore) Recent(ctx context.Context, n int) ([]reading.SensorReading, error) {
	return nil, nil
}

type fakeSender struct {
	reply    string
	err      error
	calls    atomic.Int32
	address  string
	payload  []byte
	deadline bool
}

func (s *fakeSender) Send(ctx context.Context, address string, payload []byte) (string, error) {
	s.calls.Add(1)
	s.address = address
	s.payload = payload
	_, s.deadline = ctx.Deadline()
	return s.reply, s.err
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testReading() reading.SensorReading {
	return reading.New(72.5, time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC))
}

func TestDispatch_StorageNotConnected(t *testing.T) {
	store := &fakeStore{connected: false}
	d := NewDispatcher(nil, 0, testLogger())

	res := d.Dispatch(context.Background(), testReading(), Storage{Store: store})
	if res.Success {
		t.Fatal("dispatch to disconnected storage should fail")
	}
	if !errors.Is(res.Err, ErrSinkUnavailable) {
		t.Errorf("Err: got %v, want ErrSinkUnavailable", res.Err)
	}
	if res.Message == "" {
		t.Error("failure should carry a message")
	}
	if n := store.inserts.Load(); n != 0 {
		t.Errorf("Insert called %d times, want 0", n)
	}
}

func TestDispatch_StorageNilHandle(t *testing.T) {
	d := NewDispatcher(nil, 0, testLogger())
	res := d.Dispatch(context.Background(), testReading(), Storage{})
	if !errors.Is(res.Err, ErrSinkUnavailable) {
		t.Errorf("Err: got %v, want ErrSinkUnavailable", res.Err)
	}
}

func TestDispatch_Storage(t *testing.T) {
	tests := []struct {
		name      string
		insertErr error
		wantOK    bool
		wantMsg   string
	}{
		{"success", nil, true, "saved"},
		{"insert failure", errors.New("disk full"), false, "disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{connected: true, err: tt.insertErr}
			d := NewDispatcher(nil, 0, testLogger())

			res := d.Dispatch(context.Background(), testReading(), Storage{Store: store})
			if res.Success != tt.wantOK {
				t.Errorf("Success: got %v, want %v", res.Success, tt.wantOK)
			}
			if res.Message != tt.wantMsg {
				t.Errorf("Message: got %q, want %q", res.Message, tt.wantMsg)
			}
			if store.inserts.Load() != 1 {
				t.Errorf("Insert called %d times, want 1", store.inserts.Load())
			}
			if !tt.wantOK && !errors.Is(res.Err, ErrSinkUnavailable) {
				t.Errorf("Err: got %v, want ErrSinkUnavailable", res.Err)
			}
		})
	}
}

func TestDispatch_NetworkEmptyAddress(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, 0, testLogger())

	res := d.Dispatch(context.Background(), testReading(), Network{})
	if res.Success {
		t.Fatal("dispatch with empty address should fail")
	}
	if !errors.Is(res.Err, ErrInvalidConfiguration) {
		t.Errorf("Err: got %v, want ErrInvalidConfiguration", res.Err)
	}
	if sender.calls.Load() != 0 {
		t.Error("sender should not be called for an empty address")
	}
}

func TestDispatch_Network(t *testing.T) {
	sender := &fakeSender{reply: `{"status":"ok"}`}
	d := NewDispatcher(sender, time.Second, testLogger())

	res := d.Dispatch(context.Background(), testReading(), Network{Address: "http://collector/readings"})
	if !res.Success {
		t.Fatalf("dispatch failed: %v", res.Err)
	}
	if res.Message != `{"status":"ok"}` {
		t.Errorf("Message: got %q", res.Message)
	}
	if sender.address != "http://collector/readings" {
		t.Errorf("address: got %q", sender.address)
	}
	if !sender.deadline {
		t.Error("network delivery should be bounded by a deadline")
	}

	var p Payload
	if err := json.Unmarshal(sender.payload, &p); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	want := Payload{Temperature: 72.5, Humidity: reading.PlaceholderHumidity, Timestamp: "2024-03-09T14:30:00Z"}
	if p != want {
		t.Errorf("payload: got %+v, want %+v", p, want)
	}
}

func TestDispatch_NetworkFailurePreservesMessage(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection refused")}
	d := NewDispatcher(sender, 0, testLogger())

	res := d.Dispatch(context.Background(), testReading(), Network{Address: "http://127.0.0.1:1"})
	if res.Success {
		t.Fatal("dispatch should fail")
	}
	if !errors.Is(res.Err, ErrSinkUnavailable) {
		t.Errorf("Err: got %v, want ErrSinkUnavailable", res.Err)
	}
	if res.Message != "connection refused" {
		t.Errorf("Message: got %q, want %q", res.Message, "connection refused")
	}
}

func TestDispatch_NilTarget(t *testing.T) {
	d := NewDispatcher(nil, 0, testLogger())
	res := d.Dispatch(context.Background(), testReading(), nil)
	if !errors.Is(res.Err, ErrInvalidConfiguration) {
		t.Errorf("Err: got %v, want ErrInvalidConfiguration", res.Err)
	}
}

func TestParseTarget(t *testing.T) {
	store := &fakeStore{}

	tests := []struct {
		kind    string
		address string
		want    Target
		wantErr bool
	}{
		{"storage", "", Storage{Store: store}, false},
		{" Network ", " mqtt://broker/t ", Network{Address: "mqtt://broker/t"}, false},
		{"email", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			got, err := ParseTarget(tt.kind, tt.address, store)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfiguration) {
					t.Errorf("err: got %v, want ErrInvalidConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTarget failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

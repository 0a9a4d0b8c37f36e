package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/ironsheep/thermo-ocr/internal/reading"
)

// Store is the persistent storage collaborator.
type Store interface {
	IsConnected() bool
	// Insert persists r and returns a human-readable confirmation.
	Insert(ctx context.Context, r reading.SensorReading) (string, error)
	// Recent returns up to n readings, newest first.
	Recent(ctx context.Context, n int) ([]reading.SensorReading, error)
}

// Sender delivers an encoded reading to a network address.
type Sender interface {
	// Send delivers payload and returns the remote reply or a confirmation.
	Send(ctx context.Context, address string, payload []byte) (string, error)
}

// Target selects where accepted readings go. It is either Storage or Network.
type Target interface {
	fmt.Stringer
	target()
}

// Storage routes readings to a Store.
type Storage struct {
	Store Store
}

// Network routes readings to a remote address through a Sender.
type Network struct {
	Address string
}

func (Storage) target() {}
func (Network) target() {}

func (Storage) String() string { return "storage" }

func (n Network) String() string {
	if n.Address == "" {
		return "network (no address)"
	}
	return "network " + n.Address
}

// Kind names used when selecting a target from configuration.
const (
	KindStorage = "storage"
	KindNetwork = "network"
)

// ParseTarget builds a Target from a kind name. Network targets are not
// validated here; an empty address is reported when sampling starts or a
// reading is dispatched.
func ParseTarget(kind, address string, store Store) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindStorage:
		return Storage{Store: store}, nil
	case KindNetwork:
		return Network{Address: strings.TrimSpace(address)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown sink kind %q (want %q or %q)", ErrInvalidConfiguration, kind, KindStorage, KindNetwork)
	}
}

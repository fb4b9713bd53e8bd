// Package gpib is the adapter-independent bus abstraction: driver registry,
// controller interface, and per-instrument sessions. Adapter protocol
// engines (internal/agilent) plug in as drivers.
package gpib

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxPrimaryAddress is the highest valid GPIB primary address. Addresses
// are 5-bit, and 31 is reserved for the unlisten/untalk commands.
const MaxPrimaryAddress = 30

var (
	// ErrInvalidAddress is returned for primary addresses outside 0..30,
	// before any I/O is attempted.
	ErrInvalidAddress = errors.New("gpib: primary address out of range")

	// ErrClosed is returned for transfer operations on a controller that
	// is not open.
	ErrClosed = errors.New("gpib: controller is not open")

	// ErrDuplicateDriver is returned when a driver name is registered twice.
	ErrDuplicateDriver = errors.New("gpib: driver already registered")

	// ErrNoAdapter distinguishes "no adapter attached" from a discovery
	// failure. Discover itself returns an empty list; callers that cannot
	// proceed without an adapter report this.
	ErrNoAdapter = errors.New("gpib: no adapter found")
)

// TerminationConfig selects how a message transfer is terminated on the
// bus. It is owned by one Session and read, never modified, by in-flight
// transfers.
type TerminationConfig struct {
	SendEOI      bool // assert EOI with the last byte of a write
	EndReadOnEOI bool // a read ends when the talker asserts EOI
	EndReadOnEOS bool // a read ends when EOSChar is received
	EOSChar      byte
	ReadTimeout  time.Duration
}

// DefaultTerminationConfig returns the configuration every new session
// starts with: EOI on both directions, no EOS termination.
func DefaultTerminationConfig() TerminationConfig {
	return TerminationConfig{
		SendEOI:      true,
		EndReadOnEOI: true,
		EndReadOnEOS: false,
		EOSChar:      '\n',
		ReadTimeout:  500 * time.Millisecond,
	}
}

// Controller is one physical bus adapter acting as controller-in-charge.
// A controller is single-threaded by contract: callers issuing concurrent
// operations on one controller must serialize them.
type Controller interface {
	// Open brings the adapter from Closed to Open: USB configuration,
	// bus-controller chip initialization, interface clear. primaryAddress
	// is the controller's own bus address.
	Open(ctx context.Context, primaryAddress int) error

	// Close releases the adapter. Idempotent.
	Close() error

	// WriteMessage sends data to the instrument at addr.
	WriteMessage(ctx context.Context, addr int, data []byte, cfg TerminationConfig) error

	// ReadMessage reads one message from the instrument at addr. An empty
	// result with a nil error means the instrument had nothing to send.
	ReadMessage(ctx context.Context, addr int, cfg TerminationConfig) ([]byte, error)

	// ID identifies the physical device behind this controller.
	ID() string
}

// Driver enumerates attached adapters of one family. Repeated enumeration
// must not produce duplicate controllers for the same physical device.
type Driver interface {
	Name() string
	Adapters(ctx context.Context) ([]Controller, error)
}

// Registry holds the registered drivers. It is constructed explicitly by
// the process entry point; there is no package-global registry.
type Registry struct {
	drivers []Driver
	names   map[string]bool
	buses   map[string]*Bus
}

// NewRegistry returns an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool), buses: make(map[string]*Bus)}
}

// Register adds a driver. Each driver may be registered exactly once.
func (r *Registry) Register(d Driver) error {
	if r.names[d.Name()] {
		return fmt.Errorf("%w: %s", ErrDuplicateDriver, d.Name())
	}
	r.names[d.Name()] = true
	r.drivers = append(r.drivers, d)
	return nil
}

// Discover asks every registered driver for its attached adapters and
// returns one Bus per adapter. An empty result is valid and not an error.
// Bus wrappers are cached by device identity, so repeated discovery hands
// back the same Bus (and thus the same sessions) for a device that is
// still attached.
func (r *Registry) Discover(ctx context.Context) ([]*Bus, error) {
	var buses []*Bus
	for _, d := range r.drivers {
		ctls, err := d.Adapters(ctx)
		if err != nil {
			return nil, fmt.Errorf("driver %s: %w", d.Name(), err)
		}
		for _, c := range ctls {
			b, ok := r.buses[c.ID()]
			if !ok {
				b = NewBus(c)
				r.buses[c.ID()] = b
			}
			buses = append(buses, b)
		}
	}
	return buses, nil
}

// Bus wraps a Controller with the per-address session cache.
type Bus struct {
	Controller
	sessions map[int]*Session
}

// NewBus wraps an adapter controller.
func NewBus(c Controller) *Bus {
	return &Bus{Controller: c, sessions: make(map[int]*Session)}
}

// Instrument returns the session for the instrument at addr, creating it
// on first use. There is exactly one session per address per bus.
func (b *Bus) Instrument(addr int) (*Session, error) {
	if addr < 0 || addr > MaxPrimaryAddress {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAddress, addr)
	}
	if s, ok := b.sessions[addr]; ok {
		return s, nil
	}
	s := &Session{ctl: b.Controller, addr: addr, cfg: DefaultTerminationConfig()}
	b.sessions[addr] = s
	return s, nil
}

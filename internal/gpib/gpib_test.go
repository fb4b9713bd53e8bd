package gpib

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeController records transfers and plays back a scripted reply.
type fakeController struct {
	id      string
	open    bool
	reads   int
	written [][]byte
	addrs   []int
	cfgs    []TerminationConfig
	reply   []byte
}

func (f *fakeController) Open(_ context.Context, primaryAddress int) error {
	f.open = true
	return nil
}

func (f *fakeController) Close() error {
	f.open = false
	return nil
}

func (f *fakeController) WriteMessage(_ context.Context, addr int, data []byte, cfg TerminationConfig) error {
	if !f.open {
		return ErrClosed
	}
	f.addrs = append(f.addrs, addr)
	f.cfgs = append(f.cfgs, cfg)
	f.written = append(f.written, data)
	return nil
}

func (f *fakeController) ReadMessage(_ context.Context, addr int, cfg TerminationConfig) ([]byte, error) {
	if !f.open {
		return nil, ErrClosed
	}
	f.reads++
	f.addrs = append(f.addrs, addr)
	f.cfgs = append(f.cfgs, cfg)
	return f.reply, nil
}

func (f *fakeController) ID() string {
	if f.id == "" {
		return "fake"
	}
	return f.id
}

type fakeDriver struct {
	name string
	ctls []Controller
}

func (d *fakeDriver) Name() string { return d.name }

func (d *fakeDriver) Adapters(context.Context) ([]Controller, error) {
	return d.ctls, nil
}

func TestRegistry_RejectsDuplicateDriver(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeDriver{name: "82357a"}))

	err := r.Register(&fakeDriver{name: "82357a"})
	assert.ErrorIs(t, err, ErrDuplicateDriver)
}

func TestRegistry_DiscoverConcatenatesDrivers(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeDriver{name: "a", ctls: []Controller{&fakeController{id: "1-2"}}}))
	require.NoError(t, r.Register(&fakeDriver{name: "b", ctls: []Controller{&fakeController{id: "1-3"}, &fakeController{id: "1-4"}}}))

	buses, err := r.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, buses, 3)
}

func TestRegistry_DiscoverReusesBusPerDevice(t *testing.T) {
	ctl := &fakeController{id: "1-4", open: true}
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeDriver{name: "82357a", ctls: []Controller{ctl}}))

	first, err := r.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)
	second, err := r.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Same(t, first[0], second[0], "one bus per device across discoveries")

	// Session identity and configuration follow the bus.
	a, err := first[0].Instrument(22)
	require.NoError(t, err)
	b, err := second[0].Instrument(22)
	require.NoError(t, err)
	assert.Same(t, a, b, "one session per address per controller lifetime")
}

func TestBus_InstrumentAddressRange(t *testing.T) {
	bus := NewBus(&fakeController{open: true})

	for addr := 0; addr <= MaxPrimaryAddress; addr++ {
		_, err := bus.Instrument(addr)
		require.NoError(t, err, "address %d must be valid", addr)
	}

	for _, addr := range []int{-1, 31, 0x1F0} {
		_, err := bus.Instrument(addr)
		assert.ErrorIs(t, err, ErrInvalidAddress, "address %d", addr)
	}
}

func TestBus_InstrumentCachedPerAddress(t *testing.T) {
	bus := NewBus(&fakeController{open: true})

	a, err := bus.Instrument(22)
	require.NoError(t, err)
	b, err := bus.Instrument(22)
	require.NoError(t, err)
	other, err := bus.Instrument(5)
	require.NoError(t, err)

	assert.Same(t, a, b, "one session per address per bus")
	assert.NotSame(t, a, other)
}

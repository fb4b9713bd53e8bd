package agilent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mknr/usbgpib/internal/config"
	"github.com/mknr/usbgpib/internal/gpib"
)

func fakeLister(ids ...string) ListFunc {
	return func(_ context.Context, _ config.Model) ([]ListedDevice, error) {
		var out []ListedDevice
		for _, id := range ids {
			out = append(out, ListedDevice{ID: id, Name: "82357A", Transport: &fakeTransport{}})
		}
		return out, nil
	}
}

func TestDriver_DiscoveryDedupe(t *testing.T) {
	d := NewDriverWithLister(config.DefaultModels()[0], fakeLister("1-4", "1-7"))

	first, err := d.Adapters(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := d.Adapters(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 2)

	// Same physical devices, same controllers — no duplicates across calls.
	assert.Same(t, first[0], second[0])
	assert.Same(t, first[1], second[1])
}

func TestDriver_NewDeviceAppears(t *testing.T) {
	ids := []string{"1-4"}
	d := NewDriverWithLister(config.DefaultModels()[0], func(_ context.Context, _ config.Model) ([]ListedDevice, error) {
		var out []ListedDevice
		for _, id := range ids {
			out = append(out, ListedDevice{ID: id, Name: "82357A", Transport: &fakeTransport{}})
		}
		return out, nil
	})

	first, err := d.Adapters(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	ids = append(ids, "2-3")
	second, err := d.Adapters(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Same(t, first[0], second[0])
}

func TestRegistry_DiscoverEmptyIsNotAnError(t *testing.T) {
	r := gpib.NewRegistry()
	require.NoError(t, r.Register(NewDriverWithLister(config.DefaultModels()[0], fakeLister())))

	buses, err := r.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, buses)
}

func TestRegistry_DiscoverReturnsBuses(t *testing.T) {
	r := gpib.NewRegistry()
	require.NoError(t, r.Register(NewDriverWithLister(config.DefaultModels()[0], fakeLister("1-4"))))

	buses, err := r.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, buses, 1)
	assert.Equal(t, "1-4", buses[0].ID())
}

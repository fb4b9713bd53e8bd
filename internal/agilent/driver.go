package agilent

import (
	"context"
	"log/slog"

	"github.com/mknr/usbgpib/internal/config"
	"github.com/mknr/usbgpib/internal/gpib"
	"github.com/mknr/usbgpib/internal/usb"
)

// ListedDevice is one attached adapter found by enumeration.
type ListedDevice struct {
	ID        string
	Name      string
	Transport usb.Transport
}

// ListFunc enumerates the adapters of one model currently on the bus.
type ListFunc func(ctx context.Context, model config.Model) ([]ListedDevice, error)

// listUSB is the default enumerator, backed by gousb.
func listUSB(_ context.Context, model config.Model) ([]ListedDevice, error) {
	devs, err := usb.Enumerate(model.VendorID, model.ProductID, model.USBEndpoints())
	if err != nil {
		return nil, err
	}
	out := make([]ListedDevice, 0, len(devs))
	for _, d := range devs {
		out = append(out, ListedDevice{ID: d.ID(), Name: d.Name(), Transport: d})
	}
	return out, nil
}

// Driver discovers adapters of one 82357 hardware model. Adapters are
// keyed by device identity, so repeated discovery returns the same
// controller for a device that stays plugged in instead of accumulating
// duplicates.
type Driver struct {
	model config.Model
	list  ListFunc
	known map[string]*Adapter
}

// NewDriver creates a driver for one adapter model using gousb
// enumeration.
func NewDriver(model config.Model) *Driver {
	return NewDriverWithLister(model, listUSB)
}

// NewDriverWithLister creates a driver with a custom enumerator. Used by
// tests and by transports other than gousb.
func NewDriverWithLister(model config.Model, list ListFunc) *Driver {
	return &Driver{model: model, list: list, known: make(map[string]*Adapter)}
}

// Name returns the adapter model name.
func (d *Driver) Name() string { return d.model.Name }

// Adapters enumerates the attached devices of this model. Known devices
// keep their existing Adapter; new devices get a fresh one.
func (d *Driver) Adapters(ctx context.Context) ([]gpib.Controller, error) {
	listed, err := d.list(ctx, d.model)
	if err != nil {
		return nil, err
	}

	var out []gpib.Controller
	for _, dev := range listed {
		a, ok := d.known[dev.ID]
		if !ok {
			a = NewAdapter(dev.ID, dev.Name, dev.Transport)
			d.known[dev.ID] = a
			slog.Debug("adapter found", "model", d.model.Name, "device", dev.ID)
		}
		out = append(out, a)
	}
	return out, nil
}

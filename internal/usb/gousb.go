package usb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/gousb"
)

// Endpoints holds the endpoint numbers of one adapter model. The direction
// bits are implied: bulk-in and interrupt-in are IN endpoints, bulk-out is
// an OUT endpoint.
type Endpoints struct {
	BulkIn      int
	BulkOut     int
	InterruptIn int
}

var (
	ctxOnce sync.Once
	usbCtx  *gousb.Context
)

// libusb wants one context per process; it lives until exit.
func libusbContext() *gousb.Context {
	ctxOnce.Do(func() {
		usbCtx = gousb.NewContext()
	})
	return usbCtx
}

// Device is a gousb-backed Transport for one physical USB device.
type Device struct {
	dev  *gousb.Device
	eps  Endpoints
	id   string
	name string

	intf    *gousb.Interface
	release func()
	bulkIn  *gousb.InEndpoint
	bulkOut *gousb.OutEndpoint
	intrIn  *gousb.InEndpoint
}

// Enumerate opens every attached device matching vid:pid and returns a
// Device per match. A device that cannot be opened is skipped with a log
// entry rather than failing the whole enumeration.
func Enumerate(vid, pid uint16, eps Endpoints) ([]*Device, error) {
	devs, err := libusbContext().OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vid) && desc.Product == gousb.ID(pid)
	})
	if err != nil {
		if len(devs) == 0 {
			return nil, fmt.Errorf("usb enumerate %04x:%04x: %w", vid, pid, err)
		}
		// Some matching devices opened, others failed; keep what we got.
		slog.Warn("partial usb enumeration", "vid", fmt.Sprintf("%04x", vid),
			"pid", fmt.Sprintf("%04x", pid), "opened", len(devs), "err", err)
	}

	var out []*Device
	for _, dev := range devs {
		if err := dev.SetAutoDetach(true); err != nil {
			slog.Warn("auto-detach failed, skipping device", "device", dev.String(), "err", err)
			dev.Close()
			continue
		}
		product, _ := dev.Product()
		out = append(out, &Device{
			dev:  dev,
			eps:  eps,
			id:   fmt.Sprintf("%d-%d", dev.Desc.Bus, dev.Desc.Address),
			name: product,
		})
	}
	return out, nil
}

// ID identifies the physical device by its bus position. Stable for as long
// as the device stays plugged in.
func (d *Device) ID() string { return d.id }

// Name returns the product string reported by the device.
func (d *Device) Name() string { return d.name }

// SetConfiguration activates the default configuration, claims the first
// interface and resolves the endpoints.
func (d *Device) SetConfiguration() error {
	if d.intf != nil {
		return nil
	}
	intf, release, err := d.dev.DefaultInterface()
	if err != nil {
		return fmt.Errorf("claim interface: %w", err)
	}

	bulkIn, err := intf.InEndpoint(d.eps.BulkIn)
	if err != nil {
		release()
		return fmt.Errorf("resolve bulk-in endpoint: %w", err)
	}
	bulkOut, err := intf.OutEndpoint(d.eps.BulkOut)
	if err != nil {
		release()
		return fmt.Errorf("resolve bulk-out endpoint: %w", err)
	}
	intrIn, err := intf.InEndpoint(d.eps.InterruptIn)
	if err != nil {
		release()
		return fmt.Errorf("resolve interrupt endpoint: %w", err)
	}

	d.intf = intf
	d.release = release
	d.bulkIn = bulkIn
	d.bulkOut = bulkOut
	d.intrIn = intrIn

	slog.Debug("usb configured", "device", d.id,
		"bulk_in", d.eps.BulkIn, "bulk_out", d.eps.BulkOut, "interrupt_in", d.eps.InterruptIn)
	return nil
}

func (d *Device) BulkOut(ctx context.Context, data []byte) (int, error) {
	if d.bulkOut == nil {
		return 0, fmt.Errorf("device %s not configured", d.id)
	}
	return d.bulkOut.WriteContext(ctx, data)
}

func (d *Device) BulkIn(ctx context.Context, maxLen int) ([]byte, error) {
	if d.bulkIn == nil {
		return nil, fmt.Errorf("device %s not configured", d.id)
	}
	buf := make([]byte, maxLen)
	n, err := d.bulkIn.ReadContext(ctx, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (d *Device) InterruptIn(ctx context.Context, maxLen int) ([]byte, error) {
	if d.intrIn == nil {
		return nil, fmt.Errorf("device %s not configured", d.id)
	}
	buf := make([]byte, maxLen)
	n, err := d.intrIn.ReadContext(ctx, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (d *Device) Control(ctx context.Context, req ControlRequest) ([]byte, error) {
	buf := req.Data
	if req.RequestType&0x80 != 0 {
		buf = make([]byte, req.Length)
	}
	n, err := d.dev.Control(req.RequestType, req.Request, req.Value, req.Index, buf)
	if err != nil {
		return nil, err
	}
	if req.RequestType&0x80 == 0 {
		return nil, nil
	}
	return buf[:n], nil
}

func (d *Device) SubmitInterruptIn(maxLen int) *Completion {
	return Submit(func(ctx context.Context) ([]byte, error) {
		return d.InterruptIn(ctx, maxLen)
	})
}

func (d *Device) SubmitBulkIn(maxLen int) *Completion {
	return Submit(func(ctx context.Context) ([]byte, error) {
		return d.BulkIn(ctx, maxLen)
	})
}

// Close releases the claimed interface and the device handle. Safe to call
// more than once.
func (d *Device) Close() error {
	if d.release != nil {
		d.release()
		d.release = nil
		d.intf = nil
		d.bulkIn = nil
		d.bulkOut = nil
		d.intrIn = nil
	}
	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}

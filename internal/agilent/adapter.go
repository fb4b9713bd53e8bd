// Package agilent implements the adapter protocol engine for the Agilent
// 82357 family of USB-GPIB bridges: command packet encoding, TMS9914
// register programming, write-completion synchronization, and abort/flush
// recovery.
//
// Not tested on the 82357B; its endpoint numbers differ from the 82357A
// and must be supplied through the adapter model configuration.
package agilent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mknr/usbgpib/internal/gpib"
	"github.com/mknr/usbgpib/internal/usb"
)

// Adapter is one 82357 bridge acting as GPIB controller-in-charge. It owns
// its transport for its open lifetime. Closed → Open → Closed; Open is
// entered only after the full initialization sequence succeeds.
type Adapter struct {
	id   string
	tr   usb.Transport
	co   *coordinator
	log  *slog.Logger
	open bool
}

// NewAdapter wraps a transport for one physical adapter. The returned
// adapter is Closed; call Open before any transfer.
func NewAdapter(id, name string, tr usb.Transport) *Adapter {
	log := slog.Default().With("adapter", name, "device", id)
	return &Adapter{
		id:  id,
		tr:  tr,
		co:  newCoordinator(tr, log),
		log: log,
	}
}

// ID identifies the physical device behind this adapter.
func (a *Adapter) ID() string { return a.id }

// Open activates the USB configuration and runs the interface
// initialization program. primaryAddress is this controller's own bus
// address. On failure the adapter stays Closed and must not be used for
// data transfers. An adapter that has been closed cannot be reopened;
// rediscover the device instead.
func (a *Adapter) Open(ctx context.Context, primaryAddress int) error {
	if a.open {
		return nil
	}
	if a.tr == nil {
		// Close released the transport; the device must be rediscovered.
		return gpib.ErrClosed
	}
	if primaryAddress < 0 || primaryAddress > gpib.MaxPrimaryAddress {
		return fmt.Errorf("%w: %d", gpib.ErrInvalidAddress, primaryAddress)
	}

	if err := a.tr.SetConfiguration(); err != nil {
		// Can happen if the Cypress FX 8051 is held in reset.
		return fmt.Errorf("set configuration: %w", err)
	}
	if err := a.co.initializeInterface(ctx, primaryAddress); err != nil {
		return fmt.Errorf("initialize interface: %w", err)
	}

	a.open = true
	a.log.Info("adapter open", "primary_address", primaryAddress)
	return nil
}

// Close releases the device resources. Idempotent.
func (a *Adapter) Close() error {
	a.open = false
	tr := a.tr
	a.tr = nil
	if tr == nil {
		return nil
	}
	a.log.Info("adapter closed")
	return tr.Close()
}

// WriteMessage sends data to the instrument at addr.
func (a *Adapter) WriteMessage(ctx context.Context, addr int, data []byte, cfg gpib.TerminationConfig) error {
	if err := a.checkTransfer(addr); err != nil {
		return err
	}
	return a.co.writeMessage(ctx, byte(addr), data, cfg)
}

// ReadMessage reads one message from the instrument at addr. An empty
// result with a nil error means the instrument had nothing to send.
func (a *Adapter) ReadMessage(ctx context.Context, addr int, cfg gpib.TerminationConfig) ([]byte, error) {
	if err := a.checkTransfer(addr); err != nil {
		return nil, err
	}
	return a.co.readMessage(ctx, byte(addr), cfg)
}

func (a *Adapter) checkTransfer(addr int) error {
	if !a.open {
		return gpib.ErrClosed
	}
	if addr < 0 || addr > gpib.MaxPrimaryAddress {
		return fmt.Errorf("%w: %d", gpib.ErrInvalidAddress, addr)
	}
	return nil
}

// ResetFX pulses the reset line of the Cypress FX 8051 core. The device
// drops off the bus and re-enumerates, so the adapter must be discovered
// and opened again afterwards. Recovery of last resort.
func (a *Adapter) ResetFX(ctx context.Context) error {
	if a.tr == nil {
		return gpib.ErrClosed
	}
	for _, hold := range []byte{1, 0} {
		_, err := a.tr.Control(ctx, usb.ControlRequest{
			RequestType: 0x40,
			Request:     cypressFXRequest,
			Value:       cypressFXResetAddr,
			Data:        []byte{hold},
		})
		if err != nil {
			return fmt.Errorf("fx reset: %w", err)
		}
	}
	a.open = false
	return nil
}

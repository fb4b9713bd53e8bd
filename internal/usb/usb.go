// Package usb provides the raw USB transfer primitives the GPIB adapter
// drivers are built on: synchronous bulk/interrupt/control transfers with
// per-call timeouts, and an asynchronous submit/await pair for transports
// that support queuing a transfer before waiting on it.
package usb

import (
	"context"
	"errors"

	"github.com/google/gousb"
)

// ControlRequest describes a vendor control transfer. Device-to-host
// requests set Length; host-to-device requests set Data.
type ControlRequest struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      int    // expected reply length for device-to-host requests
	Data        []byte // payload for host-to-device requests
}

// Transport is the synchronous transfer interface an adapter driver needs.
// All calls block until the transfer completes or ctx expires.
type Transport interface {
	// SetConfiguration activates the USB configuration and claims the
	// endpoints. Must be called once before any transfer.
	SetConfiguration() error

	BulkOut(ctx context.Context, data []byte) (int, error)
	BulkIn(ctx context.Context, maxLen int) ([]byte, error)
	InterruptIn(ctx context.Context, maxLen int) ([]byte, error)
	Control(ctx context.Context, req ControlRequest) ([]byte, error)

	Close() error
}

// AsyncTransport is implemented by transports that can queue an IN transfer
// and let the caller await its completion later. Drivers use this to submit
// a notification read before the bulk write that triggers it.
type AsyncTransport interface {
	Transport

	SubmitInterruptIn(maxLen int) *Completion
	SubmitBulkIn(maxLen int) *Completion
}

type result struct {
	data []byte
	err  error
}

// Completion is a handle for a pending asynchronous transfer.
type Completion struct {
	ch     chan result
	cancel context.CancelFunc
}

// Submit runs fn on its own goroutine and returns a handle for its result.
// Transport implementations build their async variants on it.
func Submit(fn func(ctx context.Context) ([]byte, error)) *Completion {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Completion{ch: make(chan result, 1), cancel: cancel}
	go func() {
		data, err := fn(ctx)
		c.ch <- result{data, err}
	}()
	return c
}

// Await blocks until the transfer completes or ctx expires. On ctx expiry
// the pending transfer is cancelled and the ctx error is returned.
func (c *Completion) Await(ctx context.Context) ([]byte, error) {
	select {
	case r := <-c.ch:
		return r.data, r.err
	case <-ctx.Done():
		c.cancel()
		return nil, ctx.Err()
	}
}

// Cancel aborts the pending transfer. Await may still be called afterwards.
func (c *Completion) Cancel() {
	c.cancel()
}

// IsTimeout reports whether err is a transfer timeout, as opposed to a
// device or bus error.
func IsTimeout(err error) bool {
	return errors.Is(err, gousb.TransferTimedOut) ||
		errors.Is(err, context.DeadlineExceeded)
}

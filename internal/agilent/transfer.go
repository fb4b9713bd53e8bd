package agilent

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/mknr/usbgpib/internal/gpib"
	"github.com/mknr/usbgpib/internal/usb"
)

const (
	// A write is acknowledged by an interrupt-in notification once the
	// bus handshake finishes, not by the bulk transfer itself.
	writeCompleteTimeout = 100 * time.Millisecond
	notifyAwaitTimeout   = time.Second
	notifyRetryDelay     = 3 * time.Millisecond

	replyTimeout       = 100 * time.Millisecond
	defaultReadTimeout = 100 * time.Millisecond
)

// coordinator drives one logical transfer end-to-end over a transport:
// command submission, completion wait, and abort/flush recovery. One
// transfer at a time; the adapter cannot pipeline operations.
type coordinator struct {
	tr  usb.Transport
	log *slog.Logger
}

func newCoordinator(tr usb.Transport, log *slog.Logger) *coordinator {
	return &coordinator{tr: tr, log: log}
}

// writeMessage submits header+payload as a single bulk-out transfer and
// waits for the firmware's write-complete notification.
func (c *coordinator) writeMessage(ctx context.Context, addr byte, data []byte, cfg gpib.TerminationConfig) error {
	out := append(marshalWriteHeader(addr, cfg, uint32(len(data))), data...)

	// The firmware expects the notification read to be queued before the
	// bulk-out completes. Submit it first whenever the transport can.
	if at, ok := c.tr.(usb.AsyncTransport); ok {
		notify := at.SubmitInterruptIn(notifyPacketLen)
		if _, err := c.tr.BulkOut(ctx, out); err != nil {
			notify.Cancel()
			return err
		}
		c.awaitWriteComplete(ctx, at, notify)
		return nil
	}

	// Synchronous fallback: bulk-out first, then poll the interrupt
	// endpoint. A process interruption between the two calls can leave
	// the adapter's notification queue out of sync.
	if _, err := c.tr.BulkOut(ctx, out); err != nil {
		return err
	}
	c.pollWriteComplete(ctx)
	return nil
}

// awaitWriteComplete waits on a previously submitted notification read,
// resubmitting on unexpected packets, bounded by notifyAwaitTimeout.
func (c *coordinator) awaitWriteComplete(ctx context.Context, at usb.AsyncTransport, notify *usb.Completion) {
	ctx, cancel := context.WithTimeout(ctx, notifyAwaitTimeout)
	defer cancel()
	for {
		pkt, err := notify.Await(ctx)
		if err != nil {
			c.log.Warn("write completion notification not received", "err", err)
			return
		}
		if len(pkt) > 0 && pkt[0]&notifyWriteComplete != 0 {
			return
		}
		c.log.Warn("unexpected notification packet", "data", hex.EncodeToString(pkt))
		notify = at.SubmitInterruptIn(notifyPacketLen)
	}
}

// pollWriteComplete spins on the interrupt endpoint with short sleeps,
// bounded by writeCompleteTimeout. Giving up is not an error: the write
// itself already completed on the bulk endpoint.
func (c *coordinator) pollWriteComplete(ctx context.Context) {
	deadline := time.Now().Add(writeCompleteTimeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, notifyRetryDelay)
		pkt, err := c.tr.InterruptIn(stepCtx, notifyPacketLen)
		cancel()
		if err != nil {
			time.Sleep(notifyRetryDelay)
			continue
		}
		if len(pkt) > 0 && pkt[0]&notifyWriteComplete != 0 {
			return
		}
		c.log.Warn("unexpected notification packet", "data", hex.EncodeToString(pkt))
		time.Sleep(notifyRetryDelay)
	}
	c.log.Debug("write completion notification timed out")
}

// readMessage submits a read command and collects the instrument's reply.
// The adapter appends one status byte to the data, which is stripped. A
// transport failure triggers abort/flush recovery and yields an empty
// result, never an error, so the caller can decide whether to retry.
func (c *coordinator) readMessage(ctx context.Context, addr byte, cfg gpib.TerminationConfig) ([]byte, error) {
	hdr := marshalReadHeader(addr, cfg, defaultReadLen)
	if _, err := c.tr.BulkOut(ctx, hdr); err != nil {
		return nil, err
	}

	timeout := cfg.ReadTimeout
	if timeout == 0 {
		timeout = defaultReadTimeout
	}
	res := c.bulkRead(ctx, defaultReadLen+1, timeout, true)
	if len(res) == 0 {
		c.log.Warn("no reply to read request", "addr", addr)
		return nil, nil
	}
	return res[:len(res)-1], nil
}

// bulkRead reads up to maxLen bytes from the bulk-in endpoint. On failure
// it runs the abort procedure, optionally flushing buffered data, and
// returns an empty result.
func (c *coordinator) bulkRead(ctx context.Context, maxLen int, timeout time.Duration, flushOnFailure bool) []byte {
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var res []byte
	var err error
	if at, ok := c.tr.(usb.AsyncTransport); ok {
		res, err = at.SubmitBulkIn(maxLen).Await(readCtx)
	} else {
		res, err = c.tr.BulkIn(readCtx, maxLen)
	}
	if err != nil {
		status := c.abortTransfer(ctx, flushOnFailure)
		if usb.IsTimeout(err) {
			c.log.Error("transfer timed out, aborted", "status", hex.EncodeToString(status))
		} else {
			c.log.Error("transfer failed, aborted", "err", err, "status", hex.EncodeToString(status))
		}
		c.log.Error("line status after abort", "status", hex.EncodeToString(c.lineStatus(ctx)))
		return nil
	}
	return res
}

// abortTransfer sends the abort control request, draining leftover bulk
// data when flush is set. Failures here are logged, never escalated.
func (c *coordinator) abortTransfer(ctx context.Context, flush bool) []byte {
	var flushFlag uint16
	if flush {
		flushFlag = 1
	}
	status, err := c.tr.Control(ctx, usb.ControlRequest{
		RequestType: ctrlRequestTypeIn,
		Request:     ctrlRequest,
		Value:       wValueAbort,
		Index:       flushFlag,
		Length:      abortReplyLen,
	})
	if err != nil {
		c.log.Warn("abort control transfer failed", "err", err)
	}
	if !flush {
		return status
	}

	drainCtx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	if leftover, err := c.tr.BulkIn(drainCtx, drainReadLen); err == nil {
		c.log.Warn("leftover buffer data", "data", hex.EncodeToString(leftover))
	}
	return status
}

// lineStatus reads the address-status and bus-status registers for
// post-abort diagnostics.
func (c *coordinator) lineStatus(ctx context.Context) []byte {
	status, err := c.readRegs(ctx, []byte{regAddrStatus, regBusStatus})
	if err != nil {
		c.log.Warn("line status read failed", "err", err)
		return nil
	}
	return status
}

// writeRegs issues a register-write command and validates the echo reply.
func (c *coordinator) writeRegs(ctx context.Context, ops []RegisterOp) error {
	if _, err := c.tr.BulkOut(ctx, marshalRegWrite(ops)); err != nil {
		return err
	}
	_, err := c.readReply(ctx, cmdWriteRegs, 0)
	return err
}

// readRegs issues a register-read command and returns the register values.
func (c *coordinator) readRegs(ctx context.Context, regs []byte) ([]byte, error) {
	if _, err := c.tr.BulkOut(ctx, marshalRegRead(regs)); err != nil {
		return nil, err
	}
	return c.readReply(ctx, cmdReadRegs, len(regs))
}

func (c *coordinator) readReply(ctx context.Context, cmd byte, extra int) ([]byte, error) {
	replyCtx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	reply, err := c.tr.BulkIn(replyCtx, 2+extra)
	if err != nil {
		return nil, err
	}
	return parseReply(cmd, extra, reply)
}

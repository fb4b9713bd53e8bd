package agilent

import (
	"context"
	"fmt"
	"time"
)

// Interface-clear pulse width. IEEE-488 requires IFC asserted for at
// least 100 µs; the reference firmware holds it for a millisecond.
const busClearHold = time.Millisecond

// initSequence is the ordered register program that brings the adapter
// from power-up to an addressed, interrupt-enabled controller-in-charge.
// The TMS9914 handshake depends on this exact order.
func initSequence(primaryAddress int) []RegisterOp {
	return []RegisterOp{
		// Power on adapter hardware
		{regHardwareControl, hwControlPowerOn},
		{regLEDControl, ledsControlledByFW},
		// Initialize the TMS9914 GPIB chip
		{regAuxCmd, auxSoftReset | auxSetBit},
		{regIMR0, imr0BOIE},
		{regIMR1, imr1SRQIE},
		{regAuxCmd, auxNBAF},
		{regAuxCmd, auxHDFE},
		{regAuxCmd, auxTON},
		{regAuxCmd, auxLON},
		{regAuxCmd, auxRSV2},
		{regAuxCmd, auxDACR},
		{regAuxCmd, auxRPP},
		{regAuxCmd, auxSTDL | auxSetBit},
		{regAuxCmd, auxVSTDL},
		{regAddress, byte(primaryAddress) & 0x1F},
		{regSerialPoll, 0},
		{regParallelPoll, 0},
		{regAuxCmd, auxSoftReset},
		{regAuxCmd, auxSRE | auxSetBit},
		{regAuxCmd, auxTCA},
		// Firmware and protocol parameters
		{regFastTalkerT1, fastTalkerT1Value},
		{regProtocolControl, protocolWriteCompleteEn},
	}
}

// initializeInterface runs the full power-up program: clear any stale
// transfer, reset the firmware, program the chip, then pulse interface
// clear. Any register write that the adapter rejects aborts the whole
// sequence; the chip must not be left half-programmed.
func (c *coordinator) initializeInterface(ctx context.Context, primaryAddress int) error {
	c.abortTransfer(ctx, false)

	if err := c.writeRegs(ctx, []RegisterOp{{regResetToPowerup, 1}}); err != nil {
		return fmt.Errorf("reset to powerup: %w", err)
	}
	if err := c.writeRegs(ctx, initSequence(primaryAddress)); err != nil {
		return fmt.Errorf("init sequence: %w", err)
	}
	return c.clearInterface(ctx)
}

// clearInterface asserts the IFC line, holds it, and releases it, making
// this adapter the controller-in-charge.
func (c *coordinator) clearInterface(ctx context.Context) error {
	if err := c.writeRegs(ctx, []RegisterOp{{regAuxCmd, auxSIC | auxSetBit}}); err != nil {
		return fmt.Errorf("assert IFC: %w", err)
	}
	time.Sleep(busClearHold)
	if err := c.writeRegs(ctx, []RegisterOp{{regAuxCmd, auxSIC}}); err != nil {
		return fmt.Errorf("release IFC: %w", err)
	}
	return nil
}

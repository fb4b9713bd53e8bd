package agilent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// regWrites flattens the captured register-write commands into the
// sequence of (register, value) pairs the adapter was programmed with.
func regWrites(outs [][]byte) []RegisterOp {
	var ops []RegisterOp
	for _, out := range outs {
		if len(out) < 2 || out[0] != cmdWriteRegs {
			continue
		}
		for i := 0; i < int(out[1]); i++ {
			ops = append(ops, RegisterOp{out[2+2*i], out[3+2*i]})
		}
	}
	return ops
}

func TestInitializeInterface_RegisterOrder(t *testing.T) {
	tr := &fakeTransport{}
	co := testCoordinator(tr)

	err := co.initializeInterface(context.Background(), 10)
	require.NoError(t, err)

	// A stale transfer is aborted before any register traffic.
	require.Len(t, tr.controls, 1)
	assert.Equal(t, wValueAbort, tr.controls[0].Value)
	assert.Equal(t, uint16(0), tr.controls[0].Index, "pre-init abort must not flush")

	want := append([]RegisterOp{{regResetToPowerup, 1}}, initSequence(10)...)
	// Bus clear: assert IFC, hold, release IFC — as two separate writes.
	want = append(want, RegisterOp{regAuxCmd, auxSIC | auxSetBit}, RegisterOp{regAuxCmd, auxSIC})

	assert.Equal(t, want, regWrites(tr.outs), "register program order is a hard invariant")
}

func TestInitializeInterface_BusClearIsSeparate(t *testing.T) {
	tr := &fakeTransport{}
	co := testCoordinator(tr)

	require.NoError(t, co.initializeInterface(context.Background(), 0))

	// The two IFC writes must each travel as their own one-op command so
	// the hold time between them is real.
	n := len(tr.outs)
	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, []byte{cmdWriteRegs, 1, regAuxCmd, auxSIC | auxSetBit}, tr.outs[n-2])
	assert.Equal(t, []byte{cmdWriteRegs, 1, regAuxCmd, auxSIC}, tr.outs[n-1])
}

func TestInitSequence_ProgramsPrimaryAddress(t *testing.T) {
	for _, addr := range []int{0, 10, 30} {
		found := false
		for _, op := range initSequence(addr) {
			if op.Reg == regAddress {
				found = true
				assert.Equal(t, byte(addr)&0x1F, op.Value)
			}
		}
		require.True(t, found, "init sequence must program the address register")
	}
}

func TestInitializeInterface_RegisterFailureAborts(t *testing.T) {
	tr := &fakeTransport{regStatus: 1}
	co := testCoordinator(tr)

	err := co.initializeInterface(context.Background(), 10)
	require.Error(t, err)

	// The sequence must stop at the first rejected write: only the
	// reset-to-powerup command went out.
	assert.Len(t, regWrites(tr.outs), 1)
}

package agilent

import (
	"encoding/binary"
	"fmt"

	"github.com/mknr/usbgpib/internal/gpib"
)

// RegisterOp is one (register, value) pair of a register-write command.
// Initialization sequences are ordered lists of these; the order matters.
type RegisterOp struct {
	Reg   byte
	Value byte
}

// marshalWriteHeader builds the 8-byte bulk-out header for a data write.
// Layout (little-endian): op, address, secondary, flags, length:u32.
func marshalWriteHeader(addr byte, cfg gpib.TerminationConfig, length uint32) []byte {
	buf := make([]byte, 8)
	buf[0] = cmdWrite
	buf[1] = addr
	buf[2] = noSecondaryAddress
	buf[3] = writeFlags(cfg)
	binary.LittleEndian.PutUint32(buf[4:8], length)
	return buf
}

// marshalReadHeader builds the 9-byte bulk-out header for a data read.
// Layout: op, address, secondary, flags, max_length:u32, eos.
func marshalReadHeader(addr byte, cfg gpib.TerminationConfig, maxLen uint32) []byte {
	buf := make([]byte, 9)
	buf[0] = cmdRead
	buf[1] = addr
	buf[2] = noSecondaryAddress
	buf[3] = readFlags(cfg)
	binary.LittleEndian.PutUint32(buf[4:8], maxLen)
	buf[8] = cfg.EOSChar
	return buf
}

func writeFlags(cfg gpib.TerminationConfig) byte {
	var flags byte
	if cfg.SendEOI {
		flags |= writeFlagSendEOI
	}
	return flags
}

func readFlags(cfg gpib.TerminationConfig) byte {
	var flags byte
	if cfg.EndReadOnEOI {
		flags |= readFlagEndOnEOI
	}
	if cfg.EndReadOnEOS {
		flags |= readFlagEndOnEOS
	}
	return flags
}

// marshalRegWrite builds a register-write command: op, count, then
// count × (register, value).
func marshalRegWrite(ops []RegisterOp) []byte {
	buf := make([]byte, 2, 2+2*len(ops))
	buf[0] = cmdWriteRegs
	buf[1] = byte(len(ops))
	for _, op := range ops {
		buf = append(buf, op.Reg, op.Value)
	}
	return buf
}

// marshalRegRead builds a register-read command: op, count, then the
// register IDs.
func marshalRegRead(regs []byte) []byte {
	buf := make([]byte, 2, 2+len(regs))
	buf[0] = cmdReadRegs
	buf[1] = byte(len(regs))
	return append(buf, regs...)
}

// parseReply validates the reply to a register command. The adapter echoes
// the bitwise-inverted op code followed by a status byte and any extra
// payload. A short reply, a wrong echo, or a non-zero status is an error.
func parseReply(cmd byte, extra int, reply []byte) ([]byte, error) {
	want := 2 + extra
	if len(reply) < want {
		return nil, fmt.Errorf("reply too short: got %d bytes, want %d", len(reply), want)
	}
	if reply[0] != ^cmd {
		return nil, fmt.Errorf("reply to wrong command: got 0x%02X, want 0x%02X", reply[0], ^cmd)
	}
	if reply[1] != 0 {
		return nil, fmt.Errorf("command 0x%02X failed with status %d", cmd, reply[1])
	}
	return reply[2:want], nil
}

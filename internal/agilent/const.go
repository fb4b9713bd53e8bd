package agilent

// Bulk-out command op codes.
const (
	cmdWrite     byte = 1
	cmdRead      byte = 3
	cmdWriteRegs byte = 4
	cmdReadRegs  byte = 5
)

// Vendor control transfer request codes.
const (
	ctrlRequest       uint8  = 4
	ctrlRequestTypeIn uint8  = 0xC0
	wValueAbort       uint16 = 0x00A0
	wValueXferStatus  uint16 = 0x00B0
	abortReplyLen            = 2

	cypressFXRequest   uint8  = 0xA0
	cypressFXResetAddr uint16 = 0x7F92
)

// Secondary address byte when secondary addressing is not in use.
const noSecondaryAddress byte = 0xFF

// TMS9914 direct-access registers.
const (
	regIMR0         byte = 0
	regIMR1         byte = 1
	regAddrStatus   byte = 2
	regAuxCmd       byte = 3 // write
	regBusStatus    byte = 3 // read
	regAddress      byte = 4
	regSerialPoll   byte = 5
	regParallelPoll byte = 6
)

// Firmware registers outside the TMS9914.
const (
	regHardwareControl byte = 0x0A
	regLEDControl      byte = 0x0B
	regResetToPowerup  byte = 0x0C
	regProtocolControl byte = 0x0D
	regFastTalkerT1    byte = 0x0E
)

// Firmware register values.
const (
	hwControlPowerOn        byte = 0x07
	ledsControlledByFW      byte = 0x01
	protocolWriteCompleteEn byte = 0x01
	fastTalkerT1Value       byte = 0x27
)

// Write transfer flags.
const writeFlagSendEOI byte = 0x01

// Read transfer flags.
const (
	readFlagEndOnEOI   byte = 0x01
	readFlagEndOnEOS   byte = 0x04
	readFlagSerialPoll byte = 0x08
)

// TMS9914 auxiliary commands (written to regAuxCmd). Bit 7 is the
// command's set/clear argument where one applies.
const (
	auxSoftReset byte = 0x00
	auxDACR      byte = 0x01
	auxRHDF      byte = 0x02
	auxHLDA      byte = 0x03
	auxHDFE      byte = 0x04
	auxNBAF      byte = 0x05
	auxFGET      byte = 0x06
	auxRTL       byte = 0x07
	auxSEOI      byte = 0x08
	auxLON       byte = 0x09
	auxTON       byte = 0x0A
	auxGTS       byte = 0x0B
	auxTCA       byte = 0x0C
	auxTCS       byte = 0x0D
	auxRPP       byte = 0x0E
	auxSIC       byte = 0x0F
	auxSRE       byte = 0x10
	auxRQC       byte = 0x11
	auxRLC       byte = 0x12
	auxDAI       byte = 0x13
	auxPTS       byte = 0x14
	auxSTDL      byte = 0x15
	auxSHDW      byte = 0x16
	auxVSTDL     byte = 0x17
	auxRSV2      byte = 0x18

	auxSetBit byte = 0x80
)

// Interrupt mask register bits.
const (
	imr0BOIE  byte = 0x10 // bus output interrupt enable
	imr1SRQIE byte = 0x02 // service request interrupt enable
)

// Interrupt-in notification packets.
const (
	notifyPacketLen     = 8
	notifyWriteComplete = 0x02 // status bit in byte 0
)

// Data read sizing. The adapter appends one status byte to every data
// read, so the bulk-in request asks for one byte more than the message.
const (
	defaultReadLen = 1024
	drainReadLen   = 2
)

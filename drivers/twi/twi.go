// Package twi models a polled two-wire (I²C-style) bus master at the level of
// single bus phases: start, one byte out, one byte in, stop.
//
// Every phase reports the controller status captured when the phase completed.
// The value is only meaningful until the next phase is issued, so callers copy
// it into a local before doing anything else with the bus.
//
//	st := c.Start()          // StatusStart or StatusRepStart on success
//	st = c.Write(sla << 1)   // StatusMTSLAAck when the target answers
//	b, st := c.Read(false)   // StatusMRDataNack: last byte, NACK returned
//	c.Stop()
//
// Retry policy does not live here; see drivers/eeprom24.
package twi

import "eeprog-go/x/conv"

// Status is a bus controller status code. Values follow the AVR TWSR layout
// (prescaler bits masked) which most TWI masters mirror.
type Status uint8

const (
	StatusBusError   Status = 0x00 // illegal start/stop
	StatusStart      Status = 0x08
	StatusRepStart   Status = 0x10
	StatusMTSLAAck   Status = 0x18
	StatusMTSLANack  Status = 0x20
	StatusMTDataAck  Status = 0x28
	StatusMTDataNack Status = 0x30
	StatusArbLost    Status = 0x38 // master transmitter and receiver share the code
	StatusMRSLAAck   Status = 0x40
	StatusMRSLANack  Status = 0x48
	StatusMRDataAck  Status = 0x50
	StatusMRDataNack Status = 0x58
	StatusNoInfo     Status = 0xF8
)

// StatusMRArbLost is the receiver-side name for StatusArbLost.
const StatusMRArbLost = StatusArbLost

func (s Status) String() string {
	switch s {
	case StatusBusError:
		return "bus_error"
	case StatusStart:
		return "start"
	case StatusRepStart:
		return "rep_start"
	case StatusMTSLAAck:
		return "mt_sla_ack"
	case StatusMTSLANack:
		return "mt_sla_nack"
	case StatusMTDataAck:
		return "mt_data_ack"
	case StatusMTDataNack:
		return "mt_data_nack"
	case StatusArbLost:
		return "arb_lost"
	case StatusMRSLAAck:
		return "mr_sla_ack"
	case StatusMRSLANack:
		return "mr_sla_nack"
	case StatusMRDataAck:
		return "mr_data_ack"
	case StatusMRDataNack:
		return "mr_data_nack"
	case StatusNoInfo:
		return "no_info"
	}
	var buf [4]byte
	return "0x" + string(conv.U8Hex(buf[:], uint8(s)))
}

// Controller drives one bus phase per call and blocks until the phase is
// complete. Implementations need not be safe for concurrent use; exactly one
// transaction may be in flight.
type Controller interface {
	// Start issues a start (or repeated start, when the bus is already held).
	Start() Status
	// Write clocks out one byte: a slave address+R/W or a data byte.
	Write(b byte) Status
	// Read clocks in one byte and answers ACK when ack is true, NACK otherwise.
	Read(ack bool) (byte, Status)
	// Stop releases the bus.
	Stop()
}

// Step marks the protocol stage a transaction was in when it ended. It is
// reported next to the captured status for diagnostics.
type Step uint8

const (
	StepIdle Step = iota
	StepStart
	StepSelectWrite
	StepAddrHigh
	StepAddrLow
	StepRepStart
	StepSelectRead
	StepData
)

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepStart:
		return "start"
	case StepSelectWrite:
		return "select_write"
	case StepAddrHigh:
		return "addr_high"
	case StepAddrLow:
		return "addr_low"
	case StepRepStart:
		return "rep_start"
	case StepSelectRead:
		return "select_read"
	case StepData:
		return "data"
	}
	return "unknown"
}

// Read/write bit appended to the 7-bit slave address.
const (
	DirWrite = 0
	DirRead  = 1
)

// SLA returns the address byte for a 7-bit slave address and direction.
func SLA(addr uint8, dir uint8) byte {
	return addr<<1 | dir&1
}

// byteStatus maps the acknowledge bit of a byte the master clocked out to
// its status. sla marks the first byte after a start condition.
func byteStatus(b byte, sla, acked bool) Status {
	switch {
	case sla && b&1 == DirRead && acked:
		return StatusMRSLAAck
	case sla && b&1 == DirRead:
		return StatusMRSLANack
	case sla && acked:
		return StatusMTSLAAck
	case sla:
		return StatusMTSLANack
	case acked:
		return StatusMTDataAck
	}
	return StatusMTDataNack
}

// Package twitest provides simulated two-wire targets for host tests.
//
// EEPROM behaves like a 24Cxx part seen through a polled bus master: it
// latches page writes until the stop condition, wraps within the page,
// refuses selection for a while after committing, and can be told to
// misbehave (write protect, early NACK, arbitration loss, arbitrary status).
package twitest

import (
	"eeprog-go/drivers/twi"
)

type phase uint8

const (
	idle      phase = iota
	selecting       // start granted, waiting for SLA
	addrHigh
	addrLow
	writing
	reading
	held // bus owned but target silent; only stop or restart make progress
)

type fault struct {
	step  twi.Step
	st    twi.Status
	count int
}

// EEPROM is a simulated 24Cxx target and its bus master in one.
// The zero value is not usable; use NewEEPROM.
type EEPROM struct {
	Mem      []byte
	Addr     uint8 // 7-bit selector, fold bits ignored
	AddrLen  int   // 1 or 2 memory address bytes
	FoldBits uint8
	PageSize int

	// BusyPolls is how many selections are refused after each committed write.
	BusyPolls int
	// WriteProtect NACKs every payload byte.
	WriteProtect bool
	// NackAfter, when > 0, reports a NACK on that read byte (1-based) even
	// when the master asked to ACK it.
	NackAfter int
	// Absent makes the target ignore its address.
	Absent bool

	// Counters.
	Starts       int
	Stops        int
	SelectWrites int
	SelectReads  int
	Commits      int

	// Violations lists master misbehaviour seen on the bus.
	Violations []string

	ph       phase
	ptr      uint16
	hi       uint8
	fold     uint8
	lastAck  bool
	readN    int
	busyLeft int
	latch    []latched
	faults   []fault
}

type latched struct {
	i int
	b byte
}

// NewEEPROM returns an erased (0xFF) part of size bytes at the default
// 0x56 selector.
func NewEEPROM(size, pageSize, addrLen int, foldBits uint8) *EEPROM {
	m := make([]byte, size)
	for i := range m {
		m[i] = 0xFF
	}
	return &EEPROM{Mem: m, Addr: 0x56, AddrLen: addrLen, FoldBits: foldBits, PageSize: pageSize}
}

// InjectStatus makes the next count bus phases of the given step report st
// instead of their normal outcome. StatusArbLost also drops the bus and any
// latched page data, as losing arbitration does.
func (e *EEPROM) InjectStatus(step twi.Step, st twi.Status, count int) {
	e.faults = append(e.faults, fault{step: step, st: st, count: count})
}

func (e *EEPROM) injected(step twi.Step) (twi.Status, bool) {
	for i := range e.faults {
		f := &e.faults[i]
		if f.step != step || f.count == 0 {
			continue
		}
		f.count--
		switch {
		case f.st == twi.StatusArbLost:
			e.release()
		case e.ph != idle:
			e.ph = held
		}
		return f.st, true
	}
	return 0, false
}

func (e *EEPROM) release() {
	e.ph = idle
	e.latch = e.latch[:0]
}

func (e *EEPROM) violate(s string) { e.Violations = append(e.Violations, s) }

func (e *EEPROM) Start() twi.Status {
	step := twi.StepStart
	if e.ph != idle {
		step = twi.StepRepStart
	}
	if st, ok := e.injected(step); ok {
		return st
	}
	e.Starts++
	// A restart abandons any page data not yet committed.
	e.latch = e.latch[:0]
	e.ph = selecting
	if step == twi.StepRepStart {
		return twi.StatusRepStart
	}
	return twi.StatusStart
}

func (e *EEPROM) mask() uint8 { return uint8(1)<<e.FoldBits - 1 }

func (e *EEPROM) Write(b byte) twi.Status {
	switch e.ph {
	case idle:
		e.violate("write on idle bus")
		return twi.StatusBusError
	case selecting:
		return e.selectTarget(b)
	case addrHigh:
		if st, ok := e.injected(twi.StepAddrHigh); ok {
			return st
		}
		e.hi = b
		e.ph = addrLow
		return twi.StatusMTDataAck
	case addrLow:
		if st, ok := e.injected(twi.StepAddrLow); ok {
			return st
		}
		if e.AddrLen == 2 {
			e.ptr = uint16(e.hi)<<8 | uint16(b)
		} else {
			e.ptr = uint16(e.fold)<<8 | uint16(b)
		}
		e.ph = writing
		return twi.StatusMTDataAck
	case writing:
		if st, ok := e.injected(twi.StepData); ok {
			return st
		}
		if e.WriteProtect {
			e.ph = held
			return twi.StatusMTDataNack
		}
		page := e.PageSize
		base := int(e.ptr) &^ (page - 1)
		off := (int(e.ptr) + len(e.latch)) & (page - 1)
		e.latch = append(e.latch, latched{i: (base + off) % len(e.Mem), b: b})
		return twi.StatusMTDataAck
	case reading:
		e.violate("write while target transmits")
		return twi.StatusBusError
	}
	// held: nobody is listening.
	return twi.StatusMTDataNack
}

func (e *EEPROM) selectTarget(b byte) twi.Status {
	read := b&1 == twi.DirRead
	step := twi.StepSelectWrite
	if read {
		step = twi.StepSelectRead
		e.SelectReads++
	} else {
		e.SelectWrites++
	}
	if st, ok := e.injected(step); ok {
		return st
	}
	sla := b >> 1
	if e.Absent || sla&^e.mask() != e.Addr&^e.mask() || e.busyLeft > 0 {
		if e.busyLeft > 0 {
			e.busyLeft--
		}
		e.ph = held
		if read {
			return twi.StatusMRSLANack
		}
		return twi.StatusMTSLANack
	}
	e.fold = sla & e.mask()
	if read {
		e.ph = reading
		e.readN = 0
		return twi.StatusMRSLAAck
	}
	if e.AddrLen == 2 {
		e.ph = addrHigh
	} else {
		e.ph = addrLow
	}
	return twi.StatusMTSLAAck
}

func (e *EEPROM) Read(ack bool) (byte, twi.Status) {
	if e.ph != reading {
		e.violate("read without read selection")
		return 0xFF, twi.StatusBusError
	}
	if st, ok := e.injected(twi.StepData); ok {
		return 0xFF, st
	}
	b := e.Mem[int(e.ptr)%len(e.Mem)]
	e.ptr++
	e.readN++
	e.lastAck = ack
	if !ack || e.readN == e.NackAfter {
		e.ph = held
		e.lastAck = false
		return b, twi.StatusMRDataNack
	}
	return b, twi.StatusMRDataAck
}

// Next returns the byte the next Read would return.
func (e *EEPROM) Next() byte { return e.Mem[int(e.ptr)%len(e.Mem)] }

func (e *EEPROM) Stop() {
	if e.ph == idle {
		e.violate("stop on idle bus")
		return
	}
	if e.ph == reading && e.lastAck {
		e.violate("stop after ACKed read")
	}
	e.Stops++
	if len(e.latch) > 0 {
		for _, l := range e.latch {
			e.Mem[l.i] = l.b
		}
		e.latch = e.latch[:0]
		e.Commits++
		e.busyLeft = e.BusyPolls
	}
	e.ph = idle
}

var _ twi.Controller = (*EEPROM)(nil)

package eeprom24

import (
	"eeprog-go/drivers/twi"
	"eeprog-go/errcode"
)

// verdict is the outcome of one protocol phase, or of a whole attempt.
type verdict uint8

const (
	proceed     verdict = iota // phase acknowledged, continue
	rearbitrate                // arbitration lost: bus already released, restart the attempt
	busy                       // selection refused while a write cycle completes
	finish                     // release the bus; txn.code says why (empty when complete)
	abandon                    // start never granted: nothing to release
)

// txn is the state of one logical read or write, including its retry
// budgets. It lives for a single ReadBytes or WritePage call.
type txn struct {
	c       twi.Controller
	op      string
	addr    uint16
	sla     uint8
	addrLen int

	step     twi.Step
	st       twi.Status
	code     errcode.Code
	n        int
	attempts int
	arbLost  int
}

func (d *Device) newTxn(op string, addr uint16) *txn {
	return &txn{
		c:       d.bus,
		op:      op,
		addr:    addr,
		sla:     d.SlaveAddress(addr),
		addrLen: d.cfg.Family.AddrLen,
	}
}

// capture records the status reported for step before anything else can
// touch the controller.
func (t *txn) capture(step twi.Step, st twi.Status) twi.Status {
	t.step = step
	t.st = st
	return st
}

func (t *txn) end(code errcode.Code) verdict {
	t.code = code
	return finish
}

func (t *txn) err(code errcode.Code) *TxError {
	return &TxError{
		Kind:     code,
		Op:       t.op,
		Addr:     t.addr,
		Status:   t.st,
		Step:     t.step,
		Attempts: t.attempts,
	}
}

// start issues a start condition. The first start of an attempt that is not
// granted is abandoned without a stop; a refused repeated start still holds
// the bus and is finished.
func (t *txn) start(step twi.Step) verdict {
	switch t.capture(step, t.c.Start()) {
	case twi.StatusStart, twi.StatusRepStart:
		return proceed
	case twi.StatusArbLost:
		return rearbitrate
	}
	if step == twi.StepStart {
		return abandon
	}
	return t.end(errcode.BusProtocol)
}

func (t *txn) selectWrite() verdict {
	switch t.capture(twi.StepSelectWrite, t.c.Write(twi.SLA(t.sla, twi.DirWrite))) {
	case twi.StatusMTSLAAck:
		return proceed
	case twi.StatusMTSLANack:
		return busy
	case twi.StatusArbLost:
		return rearbitrate
	}
	return t.end(errcode.BusProtocol)
}

func (t *txn) addrByte(step twi.Step, b byte) verdict {
	switch t.capture(step, t.c.Write(b)) {
	case twi.StatusMTDataAck:
		return proceed
	case twi.StatusMTDataNack:
		return t.end(errcode.DeviceDeclined)
	case twi.StatusArbLost:
		return rearbitrate
	}
	return t.end(errcode.BusProtocol)
}

// open runs start, SLA+W and the memory address phases.
func (t *txn) open() verdict {
	t.n = 0
	t.code = ""
	if v := t.start(twi.StepStart); v != proceed {
		return v
	}
	if v := t.selectWrite(); v != proceed {
		return v
	}
	if t.addrLen == 2 {
		if v := t.addrByte(twi.StepAddrHigh, byte(t.addr>>8)); v != proceed {
			return v
		}
	}
	return t.addrByte(twi.StepAddrLow, byte(t.addr))
}

// run repeats attempt until it completes, fails, or the busy budget of
// maxIter attempts is spent. Arbitration restarts are bounded separately by
// maxArb and never consume an attempt. This is the only place a stop is issued.
func (t *txn) run(maxIter, maxArb int, attempt func(*txn) verdict) (int, error) {
	for t.attempts < maxIter {
		t.attempts++
		v := attempt(t)
		for v == rearbitrate {
			if t.arbLost == maxArb {
				return 0, t.err(errcode.BusProtocol)
			}
			t.arbLost++
			v = attempt(t)
		}
		switch v {
		case busy:
			t.c.Stop()
			continue
		case abandon:
			return 0, t.err(errcode.BusProtocol)
		}
		t.c.Stop()
		if t.code != "" {
			return t.n, t.err(t.code)
		}
		return t.n, nil
	}
	return 0, t.err(errcode.DeviceBusyTimeout)
}

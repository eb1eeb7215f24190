package twi

import (
	"eeprog-go/errcode"

	"tinygo.org/x/drivers"
)

// Tx adapts a Controller to tinygo.org/x/drivers.I2C so that stock TinyGo
// drivers can share the bus. It performs no busy retries.
type Tx struct {
	C Controller
}

var _ drivers.I2C = (*Tx)(nil)

// NewTx wraps c.
func NewTx(c Controller) *Tx { return &Tx{C: c} }

// Tx writes w, then reads len(r) bytes after a repeated start, then stops.
// With both buffers empty it only addresses the target, which makes it a
// presence probe.
func (t *Tx) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return &errcode.E{C: errcode.InvalidParams, Op: "twi.tx", Msg: "10-bit addresses unsupported"}
	}
	sla := uint8(addr)
	if len(w) > 0 || len(r) == 0 {
		if err := t.open(sla, DirWrite, false); err != nil {
			return err
		}
		for _, b := range w {
			if st := t.C.Write(b); st != StatusMTDataAck {
				return t.fail(st, StepData)
			}
		}
	}
	if len(r) > 0 {
		if err := t.open(sla, DirRead, len(w) > 0); err != nil {
			return err
		}
		last := len(r) - 1
		for i := range r {
			b, st := t.C.Read(i != last)
			if st != StatusMRDataAck && !(i == last && st == StatusMRDataNack) {
				return t.fail(st, StepData)
			}
			r[i] = b
		}
	}
	t.C.Stop()
	return nil
}

// open issues a (repeated, when held) start and selects the target.
func (t *Tx) open(sla uint8, dir uint8, held bool) error {
	switch st := t.C.Start(); st {
	case StatusStart, StatusRepStart:
	case StatusArbLost:
		return &errcode.E{C: errcode.Busy, Op: "twi.tx", Msg: st.String()}
	default:
		if held {
			t.C.Stop()
		}
		return &errcode.E{C: errcode.BusProtocol, Op: "twi.tx", Msg: "start: " + st.String()}
	}
	step := StepSelectWrite
	if dir == DirRead {
		step = StepSelectRead
	}
	switch st := t.C.Write(SLA(sla, dir)); st {
	case StatusMTSLAAck, StatusMRSLAAck:
		return nil
	case StatusArbLost:
		return &errcode.E{C: errcode.Busy, Op: "twi.tx", Msg: st.String()}
	default:
		return t.fail(st, step)
	}
}

// fail releases the bus and reports st. A NACK means the target declined.
func (t *Tx) fail(st Status, step Step) error {
	if st == StatusArbLost {
		return &errcode.E{C: errcode.Busy, Op: "twi.tx", Msg: step.String() + ": " + st.String()}
	}
	t.C.Stop()
	c := errcode.BusProtocol
	switch st {
	case StatusMTSLANack, StatusMRSLANack, StatusMTDataNack, StatusMRDataNack:
		c = errcode.DeviceDeclined
	}
	return &errcode.E{C: c, Op: "twi.tx", Msg: step.String() + ": " + st.String()}
}

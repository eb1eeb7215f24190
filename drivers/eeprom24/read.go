package eeprom24

import (
	"eeprog-go/drivers/twi"
	"eeprog-go/errcode"
)

// ReadBytes reads len(buf) bytes starting at addr.
//
// The device is selected for writing to load its address pointer, then
// reselected for reading with a repeated start. Every byte but the last is
// ACKed; the last is NACKed so the device stops driving the bus.
//
// It returns the number of bytes stored in buf. When the device ends the
// transfer early the count is short and the error is errcode.ShortRead, which
// is a warning (see Warning). A refused address or read selection returns 0
// and errcode.DeviceDeclined.
func (d *Device) ReadBytes(addr uint16, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if err := d.checkRange("eeprom24.read", addr, len(buf)); err != nil {
		return 0, err
	}
	t := d.newTxn("read", addr)
	return t.run(d.cfg.MaxIter, d.cfg.MaxArbitration, func(t *txn) verdict {
		return t.read(buf)
	})
}

func (t *txn) read(buf []byte) verdict {
	if v := t.open(); v != proceed {
		return v
	}
	if v := t.start(twi.StepRepStart); v != proceed {
		return v
	}
	switch t.capture(twi.StepSelectRead, t.c.Write(twi.SLA(t.sla, twi.DirRead))) {
	case twi.StatusMRSLAAck:
	case twi.StatusMRSLANack:
		return t.end(errcode.DeviceDeclined)
	case twi.StatusArbLost:
		return rearbitrate
	default:
		return t.end(errcode.BusProtocol)
	}

	last := len(buf) - 1
	for i := range buf {
		b, st := t.c.Read(i != last)
		switch t.capture(twi.StepData, st) {
		case twi.StatusMRDataAck:
			buf[i] = b
			t.n++
		case twi.StatusMRDataNack:
			buf[i] = b
			t.n++
			if i != last {
				return t.end(errcode.ShortRead)
			}
		default:
			return t.end(errcode.BusProtocol)
		}
	}
	return t.end("")
}

package eeprom24

import (
	"eeprog-go/drivers/twi"
	"eeprog-go/errcode"
)

// WritePage writes the part of buf that fits before the next page boundary
// above addr in a single bus transaction and returns how many bytes the
// device accepted. A count below len(buf) is the expected page split, not an
// error; call again with the remainder (or use WriteBytes).
//
// A NACK on a payload byte means the part is write protected or refused the
// data; it is reported as errcode.DeviceDeclined and nothing is counted.
func (d *Device) WritePage(addr uint16, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if err := d.checkRange("eeprom24.write", addr, len(buf)); err != nil {
		return 0, err
	}
	chunk := buf[:PageEnd(addr, len(buf), d.cfg.PageSize)-int(addr)]
	t := d.newTxn("write", addr)
	n, err := t.run(d.cfg.MaxIter, d.cfg.MaxArbitration, func(t *txn) verdict {
		return t.write(chunk)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (t *txn) write(data []byte) verdict {
	if v := t.open(); v != proceed {
		return v
	}
	for _, b := range data {
		switch t.capture(twi.StepData, t.c.Write(b)) {
		case twi.StatusMTDataAck:
			t.n++
		case twi.StatusMTDataNack:
			return t.end(errcode.DeviceDeclined)
		default:
			return t.end(errcode.BusProtocol)
		}
	}
	return t.end("")
}

// WriteBytes writes buf starting at addr, one page transaction at a time,
// until everything is written or a page fails. On failure it returns the
// total written by the pages before the failing one; the *TxError names the
// failing page address.
func (d *Device) WriteBytes(addr uint16, buf []byte) (int, error) {
	if err := d.checkRange("eeprom24.write", addr, len(buf)); err != nil {
		return 0, err
	}
	total := 0
	for len(buf) > 0 {
		n, err := d.WritePage(addr, buf)
		if d.cfg.Trace != nil {
			d.cfg.Trace(PageTrace{Addr: addr, Want: len(buf), Written: n, Err: err})
		}
		if err != nil {
			return total, err
		}
		addr += uint16(n)
		buf = buf[n:]
		total += n
	}
	return total, nil
}

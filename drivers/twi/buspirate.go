package twi

import (
	"io"

	"eeprog-go/errcode"
)

// Bus Pirate binary-mode commands.
const (
	bpReset     = 0x00 // from any mode: enter raw bitbang, answers "BBIO1"
	bpModeI2C   = 0x02 // from raw bitbang: answers "I2C1"
	bpStart     = 0x02
	bpStop      = 0x03
	bpReadByte  = 0x04
	bpAck       = 0x06
	bpNack      = 0x07
	bpBulkWrite = 0x10 // low nibble: byte count - 1
	bpPeriph    = 0x40 // | power 0x08 | pullups 0x04 | aux 0x02 | cs 0x01
	bpSpeed     = 0x60 // | 0=5kHz 1=50kHz 2=100kHz 3=400kHz

	bpOK = 0x01
)

// BusPirate drives a Bus Pirate in binary I2C mode over a byte stream
// (normally a serial port with a read timeout, where a zero-length read
// means the timeout expired).
//
// A transport failure is sticky: every later phase reports StatusBusError
// and Err returns the cause.
type BusPirate struct {
	rw  io.ReadWriter
	err error
	buf [5]byte

	held bool
	sla  bool
	rx   bool
}

var _ Controller = (*BusPirate)(nil)

// BusPirateSpeed returns the speed setting for the fastest Bus Pirate clock
// not above hz (5 kHz at the least).
func BusPirateSpeed(hz uint32) byte {
	switch {
	case hz >= 400000:
		return 3
	case hz >= 100000:
		return 2
	case hz >= 50000:
		return 1
	}
	return 0
}

// OpenBusPirate enters binary I2C mode at the clock chosen by
// BusPirateSpeed(hz) with the supply and pull-ups switched on.
func OpenBusPirate(rw io.ReadWriter, hz uint32) (*BusPirate, error) {
	bp := &BusPirate{rw: rw}
	if err := bp.enter(); err != nil {
		return nil, err
	}
	if err := bp.expect([]byte{bpModeI2C}, "I2C1"); err != nil {
		return nil, err
	}
	if err := bp.cmd(bpPeriph | 0x08 | 0x04); err != nil {
		return nil, err
	}
	if err := bp.cmd(bpSpeed | BusPirateSpeed(hz)); err != nil {
		return nil, err
	}
	return bp, nil
}

func (bp *BusPirate) enter() error {
	for i := 0; i < 20; i++ {
		if _, err := bp.rw.Write([]byte{bpReset}); err != nil {
			return errcode.Wrap(errcode.Error, "buspirate.enter", err)
		}
		b, err := bp.recv(5)
		if err == errcode.Timeout {
			continue
		}
		if err != nil {
			return errcode.Wrap(errcode.Error, "buspirate.enter", err)
		}
		if string(b) == "BBIO1" {
			return nil
		}
	}
	return &errcode.E{C: errcode.Timeout, Op: "buspirate.enter", Msg: "no BBIO1 banner"}
}

func (bp *BusPirate) expect(out []byte, reply string) error {
	if _, err := bp.rw.Write(out); err != nil {
		return errcode.Wrap(errcode.Error, "buspirate", err)
	}
	b, err := bp.recv(len(reply))
	if err != nil {
		return errcode.Wrap(errcode.Timeout, "buspirate", err)
	}
	if string(b) != reply {
		return &errcode.E{C: errcode.InvalidPayload, Op: "buspirate", Msg: "unexpected reply " + string(b)}
	}
	return nil
}

func (bp *BusPirate) recv(n int) ([]byte, error) {
	b := bp.buf[:n]
	for got := 0; got < n; {
		m, err := bp.rw.Read(b[got:])
		if err != nil {
			return nil, err
		}
		if m == 0 {
			return nil, errcode.Timeout
		}
		got += m
	}
	return b, nil
}

// cmd sends a single command byte that answers 0x01.
func (bp *BusPirate) cmd(c byte) error {
	if bp.err != nil {
		return bp.err
	}
	if _, err := bp.rw.Write([]byte{c}); err != nil {
		bp.err = errcode.Wrap(errcode.Error, "buspirate", err)
		return bp.err
	}
	b, err := bp.recv(1)
	if err == nil && b[0] != bpOK {
		err = errcode.InvalidPayload
	}
	if err != nil {
		bp.err = errcode.Wrap(errcode.Of(err), "buspirate", err)
	}
	return bp.err
}

// Err returns the transport failure that broke the session, if any.
func (bp *BusPirate) Err() error { return bp.err }

func (bp *BusPirate) Start() Status {
	if bp.cmd(bpStart) != nil {
		return StatusBusError
	}
	st := StatusStart
	if bp.held {
		st = StatusRepStart
	}
	bp.held, bp.sla, bp.rx = true, true, false
	return st
}

func (bp *BusPirate) Write(v byte) Status {
	if bp.err != nil {
		return StatusBusError
	}
	if _, err := bp.rw.Write([]byte{bpBulkWrite, v}); err != nil {
		bp.err = errcode.Wrap(errcode.Error, "buspirate", err)
		return StatusBusError
	}
	// 0x01 for the command, then 0x00 ACK / 0x01 NACK for the byte.
	b, err := bp.recv(2)
	if err != nil || b[0] != bpOK {
		if err == nil {
			err = errcode.InvalidPayload
		}
		bp.err = errcode.Wrap(errcode.Of(err), "buspirate", err)
		return StatusBusError
	}
	st := byteStatus(v, bp.sla, b[1] == 0x00)
	if bp.sla {
		bp.rx = st == StatusMRSLAAck
	}
	bp.sla = false
	return st
}

func (bp *BusPirate) Read(ack bool) (byte, Status) {
	if bp.err != nil || !bp.rx {
		return 0xFF, StatusBusError
	}
	if _, err := bp.rw.Write([]byte{bpReadByte}); err != nil {
		bp.err = errcode.Wrap(errcode.Error, "buspirate", err)
		return 0xFF, StatusBusError
	}
	b, err := bp.recv(1)
	if err != nil {
		bp.err = errcode.Wrap(errcode.Of(err), "buspirate", err)
		return 0xFF, StatusBusError
	}
	v := b[0]
	if ack {
		if bp.cmd(bpAck) != nil {
			return v, StatusBusError
		}
		return v, StatusMRDataAck
	}
	if bp.cmd(bpNack) != nil {
		return v, StatusBusError
	}
	return v, StatusMRDataNack
}

func (bp *BusPirate) Stop() {
	_ = bp.cmd(bpStop)
	bp.held, bp.rx = false, false
}

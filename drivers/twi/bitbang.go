package twi

// Line is one open-drain bus line. Set(true) releases it to the pull-up,
// Set(false) drives it low; Get reads the wired level.
type Line interface {
	Set(high bool)
	Get() bool
}

// Clock stretching allowance in half-periods before a phase is abandoned.
const maxStretch = 1000

// BitBang is a software bus master over two GPIO lines. It reports the same
// status codes as a hardware TWI peripheral, including arbitration loss
// when a released SDA reads low.
type BitBang struct {
	SCL, SDA Line
	// Delay waits half a clock period. Nil runs as fast as the lines allow.
	Delay func()

	held bool // we own the bus
	sla  bool // next byte is an address
	rx   bool // read selected
}

var _ Controller = (*BitBang)(nil)

func (b *BitBang) wait() {
	if b.Delay != nil {
		b.Delay()
	}
}

// sclHigh releases SCL and waits for any target holding it low.
func (b *BitBang) sclHigh() bool {
	b.SCL.Set(true)
	for i := 0; i < maxStretch; i++ {
		if b.SCL.Get() {
			return true
		}
		b.wait()
	}
	return false
}

// Reset releases both lines and clocks out a target stuck mid-byte, then
// issues a stop.
func (b *BitBang) Reset() {
	b.SDA.Set(true)
	b.SCL.Set(true)
	b.wait()
	for i := 0; i < 9 && !b.SDA.Get(); i++ {
		b.SCL.Set(false)
		b.wait()
		b.sclHigh()
		b.wait()
	}
	b.held = true
	b.Stop()
}

func (b *BitBang) lose() Status {
	b.SDA.Set(true)
	b.SCL.Set(true)
	b.held = false
	return StatusArbLost
}

func (b *BitBang) Start() Status {
	st := StatusStart
	if b.held {
		st = StatusRepStart
		b.SDA.Set(true)
		b.wait()
		if !b.sclHigh() {
			return StatusBusError
		}
		b.wait()
	}
	if !b.SDA.Get() || !b.SCL.Get() {
		return b.lose()
	}
	b.SDA.Set(false)
	b.wait()
	b.SCL.Set(false)
	b.held, b.sla, b.rx = true, true, false
	return st
}

func (b *BitBang) Write(v byte) Status {
	if !b.held {
		return StatusBusError
	}
	for i := 7; i >= 0; i-- {
		bit := v>>uint(i)&1 == 1
		b.SDA.Set(bit)
		b.wait()
		if !b.sclHigh() {
			return StatusBusError
		}
		if bit && !b.SDA.Get() {
			return b.lose()
		}
		b.wait()
		b.SCL.Set(false)
	}
	b.SDA.Set(true)
	b.wait()
	if !b.sclHigh() {
		return StatusBusError
	}
	acked := !b.SDA.Get()
	b.wait()
	b.SCL.Set(false)

	st := byteStatus(v, b.sla, acked)
	if b.sla {
		b.rx = st == StatusMRSLAAck
	}
	b.sla = false
	return st
}

func (b *BitBang) Read(ack bool) (byte, Status) {
	if !b.held || !b.rx {
		return 0xFF, StatusBusError
	}
	var v byte
	b.SDA.Set(true)
	for i := 0; i < 8; i++ {
		b.wait()
		if !b.sclHigh() {
			return v, StatusBusError
		}
		v <<= 1
		if b.SDA.Get() {
			v |= 1
		}
		b.wait()
		b.SCL.Set(false)
	}
	b.SDA.Set(!ack)
	b.wait()
	if !b.sclHigh() {
		return v, StatusBusError
	}
	b.wait()
	b.SCL.Set(false)
	b.SDA.Set(true)
	if ack {
		return v, StatusMRDataAck
	}
	return v, StatusMRDataNack
}

func (b *BitBang) Stop() {
	b.SDA.Set(false)
	b.wait()
	b.sclHigh()
	b.wait()
	b.SDA.Set(true)
	b.wait()
	b.held, b.rx = false, false
}

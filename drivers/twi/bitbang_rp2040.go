//go:build rp2040

package twi

import (
	"machine"
	"time"

	"eeprog-go/x/mathx"

	"tinygo.org/x/drivers/delay"
)

// PinLine drives a GPIO as an open-drain line: output low to pull down,
// input with pull-up to release.
type PinLine struct{ Pin machine.Pin }

func (l PinLine) Set(high bool) {
	if high {
		l.Pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
		return
	}
	l.Pin.Low()
	l.Pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
}

func (l PinLine) Get() bool { return l.Pin.Get() }

// NewPinBitBang returns a software master clocking at about hz on scl/sda,
// with the bus already recovered and idle. hz is held to 1 kHz..400 kHz.
func NewPinBitBang(scl, sda machine.Pin, hz uint32) *BitBang {
	hz = mathx.Clamp(hz, 1000, 400000)
	half := time.Second / time.Duration(2*hz)
	b := &BitBang{
		SCL:   PinLine{Pin: scl},
		SDA:   PinLine{Pin: sda},
		Delay: func() { delay.Sleep(half) },
	}
	b.Reset()
	return b
}

//go:build rp2040

// Firmware for a Pico wired to the EEPROM: the programmer menu on UART0 and
// a bit-banged bus on two GPIOs.
package main

import (
	"context"
	"machine"
	"time"

	"eeprog-go/drivers/eeprom24"
	"eeprog-go/drivers/twi"
	"eeprog-go/services/config"
	"eeprog-go/services/console"

	"github.com/jangala-dev/tinygo-uartx/uartx"
)

// deviceID selects the embedded profile; override with
// -ldflags "-X main.deviceID=pico-24c256".
var deviceID = config.DefaultDevice

// uartReader blocks for one byte at a time.
type uartReader struct {
	ctx context.Context
	u   *uartx.UART
	b   [1]byte
}

func (r *uartReader) ReadByte() (byte, error) {
	for {
		n, err := r.u.RecvSomeContext(r.ctx, r.b[:])
		if err != nil {
			return 0, err
		}
		if n == 1 {
			return r.b[0], nil
		}
	}
}

func pin(n int, def machine.Pin) machine.Pin {
	if n < 0 {
		return def
	}
	return machine.Pin(n)
}

func main() {
	time.Sleep(1500 * time.Millisecond)
	println("[eeprog] boot, profile", deviceID)

	p, err := config.Load(deviceID)
	if err != nil {
		println("[eeprog] FAIL: profile:", err.Error())
		return
	}

	u := uartx.UART0
	_ = u.Configure(uartx.UARTConfig{
		BaudRate: p.Baud,
		TX:       pin(p.TX, machine.GP0),
		RX:       pin(p.RX, machine.GP1),
	})

	bus := twi.NewPinBitBang(pin(p.SCL, machine.GP5), pin(p.SDA, machine.GP4), p.BusHz)
	dev := eeprom24.New(bus)
	if err := dev.Configure(p.DeviceConfig()); err != nil {
		println("[eeprog] FAIL: device config:", err.Error())
		return
	}

	ctx := context.Background()
	start, end := p.DumpRange()
	s := console.New(&uartReader{ctx: ctx, u: u}, u, &dev, console.Config{
		DumpStart: start,
		DumpEnd:   end,
	})
	for {
		if err := s.Run(ctx); err != nil {
			println("[eeprog] console:", err.Error())
		}
		time.Sleep(100 * time.Millisecond)
	}
}

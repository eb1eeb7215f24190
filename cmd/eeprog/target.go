//go:build !(rp2040 || rp2350)

package main

import (
	"time"

	"eeprog-go/drivers/eeprom24"
	"eeprog-go/drivers/twi"
	"eeprog-go/drivers/twi/twitest"
	"eeprog-go/services/config"
	"eeprog-go/services/programmer"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"tinygo.org/x/drivers"
)

const busPirateBaud = 115200

// target is an opened bus with the profile's EEPROM on it.
type target struct {
	profile config.Profile
	dev     *eeprom24.Device
	i2c     drivers.I2C
	close   func() error
}

func (t *target) Close() {
	if t.close == nil {
		return
	}
	if err := t.close(); err != nil {
		log.Warn().Err(err).Msg("closing port")
	}
}

func openTarget() (*target, error) {
	p, err := config.Load(flagDevice)
	if err != nil {
		return nil, err
	}
	if flagAddress != 0 {
		p.Address = flagAddress
	}
	if flagBusHz != 0 {
		p.BusHz = flagBusHz
	}
	cfg := p.DeviceConfig()
	cfg.Trace = programmer.TraceLogger(log)

	t := &target{profile: p}
	var bus twi.Controller
	if flagSim {
		f := cfg.Family
		sim := twitest.NewEEPROM(f.Size, cfg.PageSize, f.AddrLen, f.FoldBits)
		if cfg.Address != 0 {
			sim.Addr = cfg.Address
		}
		bus = sim
		log.Info().Str("device", p.Device).Str("family", f.Name).Msg("using simulated part")
	} else {
		if flagPort == "" {
			ports, _ := serial.GetPortsList()
			return nil, errors.Errorf("--port is required (available: %v)", ports)
		}
		port, err := serial.Open(flagPort, &serial.Mode{
			BaudRate: busPirateBaud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", flagPort)
		}
		if err := port.SetReadTimeout(config.DefaultTimeout * time.Millisecond); err != nil {
			port.Close()
			return nil, errors.Wrap(err, "setting read timeout")
		}
		bp, err := twi.OpenBusPirate(port, p.BusHz)
		if err != nil {
			port.Close()
			return nil, errors.Wrapf(err, "bus pirate on %s", flagPort)
		}
		log.Info().Str("port", flagPort).Uint8("speed", twi.BusPirateSpeed(p.BusHz)).Msg("bus pirate in binary I2C mode")
		t.close = port.Close
		bus = bp
	}

	d := eeprom24.New(bus)
	if err := d.Configure(cfg); err != nil {
		t.Close()
		return nil, err
	}
	log.Debug().Int("size", d.Size()).Int("page", d.PageSize()).Uint8("sla", d.SlaveAddress(0)).Msg("device configured")
	t.dev = &d
	t.i2c = twi.NewTx(bus)
	return t, nil
}

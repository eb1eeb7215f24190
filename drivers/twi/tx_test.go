package twi_test

import (
	"bytes"
	"testing"

	"eeprog-go/drivers/twi"
	"eeprog-go/drivers/twi/twitest"
	"eeprog-go/errcode"

	"tinygo.org/x/drivers/at24cx"
)

func TestTxWithStockDriver(t *testing.T) {
	sim := twitest.NewEEPROM(4096, 32, 2, 0)
	rom := at24cx.New(twi.NewTx(sim))
	rom.Address = 0x56
	rom.Configure(at24cx.Config{PageSize: 32, EndRAMAddress: 4096})

	want := []byte("shared bus, stock driver")
	if _, err := rom.WriteAt(want, 0x01F0); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(want))
	if _, err := rom.ReadAt(got, 0x01F0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read back %q", got)
	}
	if len(sim.Violations) != 0 {
		t.Fatalf("violations: %v", sim.Violations)
	}
}

func TestTxProbe(t *testing.T) {
	sim := twitest.NewEEPROM(4096, 32, 2, 0)
	tx := twi.NewTx(sim)
	if err := tx.Tx(0x56, nil, nil); err != nil {
		t.Fatalf("probe present: %v", err)
	}
	if err := tx.Tx(0x50, nil, nil); errcode.Of(err) != errcode.DeviceDeclined {
		t.Fatalf("probe absent: %v", err)
	}
	if err := tx.Tx(0x3FF, nil, nil); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("10-bit probe: %v", err)
	}
	if sim.Stops != 2 || len(sim.Violations) != 0 {
		t.Fatalf("stops = %d violations = %v", sim.Stops, sim.Violations)
	}
}

func TestTxReleasesBusOnNack(t *testing.T) {
	sim := twitest.NewEEPROM(4096, 32, 2, 0)
	sim.WriteProtect = true
	err := twi.NewTx(sim).Tx(0x56, []byte{0x00, 0x10, 0xAA}, nil)
	if errcode.Of(err) != errcode.DeviceDeclined {
		t.Fatalf("err = %v", err)
	}
	if sim.Stops != 1 {
		t.Fatalf("stops = %d", sim.Stops)
	}
}

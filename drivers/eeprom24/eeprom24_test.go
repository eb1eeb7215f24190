package eeprom24_test

import (
	"bytes"
	"errors"
	"testing"

	"eeprog-go/drivers/eeprom24"
	"eeprog-go/drivers/twi"
	"eeprog-go/drivers/twi/twitest"
	"eeprog-go/errcode"
)

func newCamera(t *testing.T) (*eeprom24.Device, *twitest.EEPROM) {
	t.Helper()
	sim := twitest.NewEEPROM(8192, 8, 2, 0)
	sim.BusyPolls = 3
	d := eeprom24.New(sim)
	return &d, sim
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

func noViolations(t *testing.T, sim *twitest.EEPROM) {
	t.Helper()
	if len(sim.Violations) != 0 {
		t.Fatalf("bus violations: %v", sim.Violations)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, c := range []struct {
		addr uint16
		n    int
	}{
		{0x0000, 1},
		{0x0000, 8},
		{0x0003, 5},
		{0x0123, 100},
		{0x1FF0, 16},
	} {
		d, sim := newCamera(t)
		want := pattern(c.n, byte(c.addr))
		n, err := d.WriteBytes(c.addr, want)
		if err != nil || n != c.n {
			t.Fatalf("WriteBytes(0x%04X, %d) = %d, %v", c.addr, c.n, n, err)
		}
		got := make([]byte, c.n)
		n, err = d.ReadBytes(c.addr, got)
		if err != nil || n != c.n {
			t.Fatalf("ReadBytes(0x%04X, %d) = %d, %v", c.addr, c.n, n, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("read back % X, want % X", got, want)
		}
		noViolations(t, sim)
	}
}

func TestExactReadTrace(t *testing.T) {
	sim := twitest.NewEEPROM(8192, 8, 2, 0)
	sim.Mem[0x0100], sim.Mem[0x0101] = 0x21, 0x46
	rec := &twitest.Recorder{C: sim}
	d := eeprom24.New(rec)

	buf := make([]byte, 2)
	if n, err := d.ReadBytes(0x0100, buf); err != nil || n != 2 {
		t.Fatalf("ReadBytes = %d, %v", n, err)
	}
	const want = "S/08 W AC/18 W 01/28 W 00/28 S/10 W AD/40 R+/50 R-/58 P"
	if got := rec.Trace(); got != want {
		t.Fatalf("trace\n got %s\nwant %s", got, want)
	}
	if buf[0] != 0x21 || buf[1] != 0x46 {
		t.Fatalf("buf = % X", buf)
	}
}

func TestWriteSplitsAtPageBoundaries(t *testing.T) {
	for addr := uint16(0); addr < 24; addr++ {
		for n := 1; n <= 40; n++ {
			sim := twitest.NewEEPROM(8192, 8, 2, 0)
			d := eeprom24.New(sim)
			var pages []eeprom24.PageTrace
			if err := d.Configure(eeprom24.Config{Trace: func(p eeprom24.PageTrace) { pages = append(pages, p) }}); err != nil {
				t.Fatal(err)
			}
			total, err := d.WriteBytes(addr, pattern(n, 1))
			if err != nil || total != n {
				t.Fatalf("WriteBytes(%d, %d) = %d, %v", addr, n, total, err)
			}
			next := addr
			for _, p := range pages {
				if p.Addr != next {
					t.Fatalf("page at 0x%04X, want 0x%04X", p.Addr, next)
				}
				if p.Written == 0 || int(p.Addr)/8 != (int(p.Addr)+p.Written-1)/8 {
					t.Fatalf("page 0x%04X len %d crosses a boundary", p.Addr, p.Written)
				}
				next += uint16(p.Written)
			}
			if sim.Commits != len(pages) {
				t.Fatalf("commits = %d, pages = %d", sim.Commits, len(pages))
			}
		}
	}
}

func TestWritePageTruncates(t *testing.T) {
	d, sim := newCamera(t)
	n, err := d.WritePage(0x0006, []byte{1, 2, 3, 4, 5})
	if err != nil || n != 2 {
		t.Fatalf("WritePage = %d, %v; want 2, nil", n, err)
	}
	if sim.Mem[6] != 1 || sim.Mem[7] != 2 || sim.Mem[8] != 0xFF {
		t.Fatalf("mem[6:9] = % X", sim.Mem[6:9])
	}
}

func TestPageEnd(t *testing.T) {
	for _, c := range []struct {
		addr uint16
		n    int
		want int
	}{
		{0x00, 8, 0x08},
		{0x00, 9, 0x08},
		{0x07, 4, 0x08},
		{0x08, 4, 0x0C},
		{0x08, 8, 0x10},
		{0x0F, 1, 0x10},
	} {
		if got := eeprom24.PageEnd(c.addr, c.n, 8); got != c.want {
			t.Errorf("PageEnd(0x%02X, %d, 8) = 0x%02X, want 0x%02X", c.addr, c.n, got, c.want)
		}
	}
}

func TestShortReadIsWarning(t *testing.T) {
	d, sim := newCamera(t)
	copy(sim.Mem, pattern(16, 0x40))
	sim.NackAfter = 10

	buf := make([]byte, 16)
	n, err := d.ReadBytes(0x0000, buf)
	if n != 10 {
		t.Fatalf("n = %d, want 10", n)
	}
	if !errors.Is(err, errcode.ShortRead) || !eeprom24.Warning(err) {
		t.Fatalf("err = %v, want short read warning", err)
	}
	if !bytes.Equal(buf[:10], sim.Mem[:10]) {
		t.Fatalf("data % X", buf[:10])
	}
	if sim.Stops != 1 {
		t.Fatalf("stops = %d, want 1", sim.Stops)
	}
	noViolations(t, sim)
}

func TestBusyTimeoutIsExact(t *testing.T) {
	d, sim := newCamera(t)
	sim.Absent = true

	n, err := d.ReadBytes(0x0000, make([]byte, 4))
	if n != 0 || !errors.Is(err, errcode.DeviceBusyTimeout) {
		t.Fatalf("ReadBytes = %d, %v", n, err)
	}
	if sim.SelectWrites != eeprom24.DefaultMaxIter {
		t.Fatalf("select attempts = %d, want %d", sim.SelectWrites, eeprom24.DefaultMaxIter)
	}
	if sim.Stops != eeprom24.DefaultMaxIter {
		t.Fatalf("stops = %d, want one per refused attempt", sim.Stops)
	}
	var te *eeprom24.TxError
	if !errors.As(err, &te) {
		t.Fatalf("err %T is not *TxError", err)
	}
	const want = "eeprom24: read 0x0000: device_busy_timeout (status mt_sla_nack at select_write, attempt 200)"
	if te.Error() != want {
		t.Fatalf("Error() = %q", te.Error())
	}
	noViolations(t, sim)
}

func TestBusyRetryCustomBound(t *testing.T) {
	d, sim := newCamera(t)
	if err := d.Configure(eeprom24.Config{MaxIter: 5}); err != nil {
		t.Fatal(err)
	}
	sim.Absent = true
	if _, err := d.WriteBytes(0x0010, []byte{1}); errcode.Of(err) != errcode.DeviceBusyTimeout {
		t.Fatalf("err = %v", err)
	}
	if sim.SelectWrites != 5 {
		t.Fatalf("select attempts = %d, want 5", sim.SelectWrites)
	}
}

func TestBusyDeviceRecovers(t *testing.T) {
	d, sim := newCamera(t)
	sim.BusyPolls = 50
	if _, err := d.WriteBytes(0x0000, []byte{0xAA}); err != nil {
		t.Fatal(err)
	}
	buf := []byte{0}
	if n, err := d.ReadBytes(0x0000, buf); err != nil || n != 1 || buf[0] != 0xAA {
		t.Fatalf("ReadBytes = %d, %v, % X", n, err, buf)
	}
	if sim.SelectWrites != 2+50 {
		t.Fatalf("select attempts = %d", sim.SelectWrites)
	}
}

func TestArbitrationLossDoesNotConsumeAttempts(t *testing.T) {
	d, sim := newCamera(t)
	if err := d.Configure(eeprom24.Config{MaxIter: 1}); err != nil {
		t.Fatal(err)
	}
	sim.Mem[0] = 0x5A
	sim.InjectStatus(twi.StepSelectWrite, twi.StatusArbLost, 3)
	sim.InjectStatus(twi.StepSelectRead, twi.StatusArbLost, 2)

	buf := []byte{0}
	if n, err := d.ReadBytes(0x0000, buf); err != nil || n != 1 || buf[0] != 0x5A {
		t.Fatalf("ReadBytes = %d, %v, % X", n, err, buf)
	}
	if sim.Stops != 1 {
		t.Fatalf("stops = %d, want 1", sim.Stops)
	}
	noViolations(t, sim)
}

func TestArbitrationRestartsAreBounded(t *testing.T) {
	d, sim := newCamera(t)
	if err := d.Configure(eeprom24.Config{MaxArbitration: 4}); err != nil {
		t.Fatal(err)
	}
	sim.InjectStatus(twi.StepStart, twi.StatusArbLost, 1000)
	_, err := d.WriteBytes(0x0000, []byte{1, 2})
	if errcode.Of(err) != errcode.BusProtocol {
		t.Fatalf("err = %v, want bus protocol", err)
	}
	if sim.Stops != 0 {
		t.Fatalf("stops = %d after arbitration loss", sim.Stops)
	}
	noViolations(t, sim)
}

func TestStartFailureSkipsStop(t *testing.T) {
	d, sim := newCamera(t)
	sim.InjectStatus(twi.StepStart, twi.StatusBusError, 1)

	n, err := d.ReadBytes(0x0000, make([]byte, 4))
	if n != 0 || errcode.Of(err) != errcode.BusProtocol {
		t.Fatalf("ReadBytes = %d, %v", n, err)
	}
	var te *eeprom24.TxError
	if !errors.As(err, &te) || te.Step != twi.StepStart || te.Status != twi.StatusBusError {
		t.Fatalf("err = %#v", err)
	}
	if sim.Stops != 0 {
		t.Fatalf("stop issued after a refused start")
	}
	noViolations(t, sim)
}

func TestDataPhaseProtocolErrorStops(t *testing.T) {
	d, sim := newCamera(t)
	sim.InjectStatus(twi.StepData, twi.StatusNoInfo, 1)

	n, err := d.ReadBytes(0x0000, make([]byte, 4))
	if n != 0 || errcode.Of(err) != errcode.BusProtocol {
		t.Fatalf("ReadBytes = %d, %v", n, err)
	}
	var te *eeprom24.TxError
	if !errors.As(err, &te) || te.Step != twi.StepData || te.Status != twi.StatusNoInfo {
		t.Fatalf("err = %v", err)
	}
	if sim.Stops != 1 {
		t.Fatalf("stops = %d, want 1", sim.Stops)
	}
	noViolations(t, sim)
}

func TestSelectionEdgeCases(t *testing.T) {
	for _, c := range []struct {
		name    string
		step    twi.Step
		st      twi.Status
		count   int
		maxIter int
		n       int
		code    errcode.Code
		selects int
	}{
		// A declined read selection ends the read without a busy retry.
		{"read select nack", twi.StepSelectRead, twi.StatusMRSLANack, 1, 0, 0, errcode.DeviceDeclined, 1},
		// A refused repeated start still holds the bus.
		{"rep start refused", twi.StepRepStart, twi.StatusBusError, 1, 0, 0, errcode.BusProtocol, 1},
		// Address-phase arbitration loss restarts without spending attempts.
		{"addr high arb lost", twi.StepAddrHigh, twi.StatusArbLost, 2, 1, 1, errcode.OK, 3},
		{"addr low arb lost", twi.StepAddrLow, twi.StatusArbLost, 2, 1, 1, errcode.OK, 3},
	} {
		d, sim := newCamera(t)
		if c.maxIter > 0 {
			if err := d.Configure(eeprom24.Config{MaxIter: c.maxIter}); err != nil {
				t.Fatal(err)
			}
		}
		sim.Mem[0x0040] = 0xC3
		sim.InjectStatus(c.step, c.st, c.count)

		buf := []byte{0}
		n, err := d.ReadBytes(0x0040, buf)
		if n != c.n || errcode.Of(err) != c.code {
			t.Fatalf("%s: ReadBytes = %d, %v; want %d, %s", c.name, n, err, c.n, c.code)
		}
		if c.code == errcode.OK && buf[0] != 0xC3 {
			t.Fatalf("%s: read 0x%02X", c.name, buf[0])
		}
		if c.code != errcode.OK {
			var te *eeprom24.TxError
			if !errors.As(err, &te) || te.Step != c.step || te.Status != c.st || te.Attempts != 1 {
				t.Fatalf("%s: err = %v", c.name, err)
			}
		}
		if sim.Stops != 1 {
			t.Fatalf("%s: stops = %d, want 1", c.name, sim.Stops)
		}
		if sim.SelectWrites != c.selects {
			t.Fatalf("%s: select attempts = %d, want %d", c.name, sim.SelectWrites, c.selects)
		}
		noViolations(t, sim)
	}
}

func TestWriteProtectDeclines(t *testing.T) {
	d, sim := newCamera(t)
	sim.WriteProtect = true

	n, err := d.WriteBytes(0x0010, pattern(12, 3))
	if n != 0 || !errors.Is(err, errcode.DeviceDeclined) {
		t.Fatalf("WriteBytes = %d, %v", n, err)
	}
	for _, b := range sim.Mem[0x10:0x1C] {
		if b != 0xFF {
			t.Fatalf("write-protected memory changed: % X", sim.Mem[0x10:0x1C])
		}
	}
	if sim.Stops != 1 {
		t.Fatalf("stops = %d, want 1", sim.Stops)
	}
}

func TestDeclinedAddressReadsNothing(t *testing.T) {
	d, sim := newCamera(t)
	sim.InjectStatus(twi.StepAddrLow, twi.StatusMTDataNack, 1)

	n, err := d.ReadBytes(0x0000, make([]byte, 4))
	if n != 0 || !errors.Is(err, errcode.DeviceDeclined) {
		t.Fatalf("ReadBytes = %d, %v", n, err)
	}
	if sim.Stops != 1 {
		t.Fatalf("stops = %d", sim.Stops)
	}
}

func TestFailingPageIsReported(t *testing.T) {
	d, sim := newCamera(t)
	if err := d.Configure(eeprom24.Config{Trace: func(p eeprom24.PageTrace) {
		if p.Err == nil {
			sim.WriteProtect = true
		}
	}}); err != nil {
		t.Fatal(err)
	}
	total, err := d.WriteBytes(0x0000, pattern(20, 9))
	if total != 8 {
		t.Fatalf("total = %d, want 8", total)
	}
	var te *eeprom24.TxError
	if !errors.As(err, &te) || te.Addr != 0x0008 || te.Kind != errcode.DeviceDeclined {
		t.Fatalf("err = %v", err)
	}
}

func TestAddressFolding(t *testing.T) {
	sim := twitest.NewEEPROM(2048, 16, 1, 3)
	rec := &twitest.Recorder{C: sim}
	d := eeprom24.New(rec)
	if err := d.Configure(eeprom24.Config{Family: eeprom24.Family24C16}); err != nil {
		t.Fatal(err)
	}
	if got := d.SlaveAddress(0x0345); got != 0x53 {
		t.Fatalf("SlaveAddress = 0x%02X, want 0x53", got)
	}
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if _, err := d.WriteBytes(0x0345, want); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sim.Mem[0x345:0x349], want) {
		t.Fatalf("mem = % X", sim.Mem[0x345:0x349])
	}
	if ev := rec.Events[1]; ev.Op != 'W' || ev.Byte != 0xA6 {
		t.Fatalf("select = %v, want W A6", ev)
	}
	got := make([]byte, 4)
	if _, err := d.ReadBytes(0x0345, got); err != nil || !bytes.Equal(got, want) {
		t.Fatalf("read back % X, %v", got, err)
	}
}

func TestConfigureValidation(t *testing.T) {
	var d eeprom24.Device
	for _, cfg := range []eeprom24.Config{
		{Address: 0x80},
		{PageSize: 12},
		{Family: eeprom24.Family{Name: "odd", PageSize: 8, AddrLen: 3}},
		{Family: eeprom24.Family{Name: "odd", PageSize: 16, AddrLen: 1, FoldBits: 4}},
	} {
		if err := d.Configure(cfg); errcode.Of(err) != errcode.InvalidParams {
			t.Errorf("Configure(%+v) = %v, want invalid params", cfg, err)
		}
	}
	if err := d.Configure(eeprom24.Config{}); err != nil {
		t.Fatal(err)
	}
	c := d.Config()
	if c.Address != eeprom24.AddressDefault || c.PageSize != 8 || c.Family.Name != "camera" || c.MaxIter != 200 {
		t.Fatalf("defaults = %+v", c)
	}
}

func TestRangeChecked(t *testing.T) {
	sim := twitest.NewEEPROM(256, 8, 1, 0)
	d := eeprom24.New(sim)
	if err := d.Configure(eeprom24.Config{Family: eeprom24.Family24C02}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ReadBytes(250, make([]byte, 10)); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("err = %v", err)
	}
	if sim.Starts != 0 {
		t.Fatalf("bus touched for an out-of-range request")
	}
}

func TestFamilyByName(t *testing.T) {
	f, ok := eeprom24.FamilyByName("24C64")
	if !ok || f.Size != 8192 || f.PageSize != 32 || f.AddrLen != 2 {
		t.Fatalf("24C64 = %+v, %v", f, ok)
	}
	if _, ok := eeprom24.FamilyByName("24C99"); ok {
		t.Fatal("unknown family found")
	}
}

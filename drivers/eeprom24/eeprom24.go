// Package eeprom24 reads and programs 24Cxx serial EEPROMs through a polled
// two-wire bus master (twi.Controller).
//
//	d := eeprom24.New(bus)
//	_ = d.Configure(eeprom24.Config{Family: eeprom24.Family24C64})
//	n, err := d.WriteBytes(0x0100, payload)  // split at page boundaries
//	n, err = d.ReadBytes(0x0100, buf)        // errors.Is(err, errcode.ShortRead) is a warning
//
// Every transaction retries while the part refuses selection (it does so
// while committing a page to non-volatile storage) up to Config.MaxIter
// attempts, restarts on arbitration loss without spending that budget, and
// releases the bus with a stop condition on every exit path except a start
// condition that was never granted.
//
// A Device is not safe for concurrent use: one transaction at a time.
package eeprom24

import (
	"eeprog-go/drivers/twi"
	"eeprog-go/errcode"
	"eeprog-go/x/mathx"
)

// AddressDefault is the 7-bit selector for a part strapped E2 E1 E0 = 1 1 0
// (0xAC in 8-bit notation).
const AddressDefault = 0x56

// Defaults applied by Configure when the corresponding field is zero.
const (
	DefaultMaxIter        = 200
	DefaultMaxArbitration = 200
)

// Family describes the addressing geometry of a 24Cxx part.
type Family struct {
	Name     string
	Size     int   // bytes; 0 disables range checks
	PageSize int   // power of two
	AddrLen  int   // memory address bytes on the wire: 1 or 2
	FoldBits uint8 // low slave-address bits carrying memory address bits A8 and up
}

// Presets. Smaller parts carry the high memory address bits in the slave
// address; from 24C32 upwards the address is sent as two bytes.
var (
	Family24C01  = Family{Name: "24C01", Size: 128, PageSize: 8, AddrLen: 1}
	Family24C02  = Family{Name: "24C02", Size: 256, PageSize: 8, AddrLen: 1}
	Family24C04  = Family{Name: "24C04", Size: 512, PageSize: 16, AddrLen: 1, FoldBits: 1}
	Family24C08  = Family{Name: "24C08", Size: 1024, PageSize: 16, AddrLen: 1, FoldBits: 2}
	Family24C16  = Family{Name: "24C16", Size: 2048, PageSize: 16, AddrLen: 1, FoldBits: 3}
	Family24C32  = Family{Name: "24C32", Size: 4096, PageSize: 32, AddrLen: 2}
	Family24C64  = Family{Name: "24C64", Size: 8192, PageSize: 32, AddrLen: 2}
	Family24C128 = Family{Name: "24C128", Size: 16384, PageSize: 64, AddrLen: 2}
	Family24C256 = Family{Name: "24C256", Size: 32768, PageSize: 64, AddrLen: 2}

	// FamilyCamera is an 8 KiB two-byte-address part driven with 8-byte
	// pages, the lowest common denominator across vendors.
	FamilyCamera = Family{Name: "camera", Size: 8192, PageSize: 8, AddrLen: 2}
)

var families = []Family{
	Family24C01, Family24C02, Family24C04, Family24C08, Family24C16,
	Family24C32, Family24C64, Family24C128, Family24C256, FamilyCamera,
}

// FamilyByName returns the preset with the given name.
func FamilyByName(name string) (Family, bool) {
	for _, f := range families {
		if f.Name == name {
			return f, true
		}
	}
	return Family{}, false
}

// PageTrace describes one page transaction issued by WriteBytes.
type PageTrace struct {
	Addr    uint16
	Want    int // bytes offered to the page writer
	Written int
	Err     error
}

// Config controls addressing and retry behaviour. Zero fields take defaults.
type Config struct {
	Family Family // default FamilyCamera
	// Address is the 7-bit slave address. Defaults to AddressDefault.
	Address uint8
	// PageSize overrides Family.PageSize when non-zero.
	PageSize int
	// MaxIter bounds busy-retry attempts per transaction.
	MaxIter int
	// MaxArbitration bounds restarts after arbitration loss per transaction.
	MaxArbitration int
	// Trace, when set, is called after every page transaction of WriteBytes.
	Trace func(PageTrace)
}

// Device is a 24Cxx part on a two-wire bus.
type Device struct {
	bus twi.Controller
	cfg Config
}

// New creates a Device with the default configuration. It does not touch the bus.
func New(bus twi.Controller) Device {
	d := Device{bus: bus}
	_ = d.Configure(Config{})
	return d
}

// Configure validates cfg and applies defaults.
func (d *Device) Configure(cfg Config) error {
	if cfg.Family.PageSize == 0 && cfg.Family.AddrLen == 0 {
		cfg.Family = FamilyCamera
	}
	if cfg.Address == 0 {
		cfg.Address = AddressDefault
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = cfg.Family.PageSize
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = DefaultMaxIter
	}
	if cfg.MaxArbitration <= 0 {
		cfg.MaxArbitration = DefaultMaxArbitration
	}
	switch {
	case cfg.Address > 0x7F:
		return &errcode.E{C: errcode.InvalidParams, Op: "eeprom24.configure", Msg: "slave address exceeds 7 bits"}
	case cfg.PageSize <= 0 || cfg.PageSize&(cfg.PageSize-1) != 0:
		return &errcode.E{C: errcode.InvalidParams, Op: "eeprom24.configure", Msg: "page size must be a power of two"}
	case cfg.Family.AddrLen != 1 && cfg.Family.AddrLen != 2:
		return &errcode.E{C: errcode.InvalidParams, Op: "eeprom24.configure", Msg: "address length must be 1 or 2 bytes"}
	case cfg.Family.FoldBits > 3:
		return &errcode.E{C: errcode.InvalidParams, Op: "eeprom24.configure", Msg: "at most 3 folded address bits"}
	}
	d.cfg = cfg
	return nil
}

// Config returns the effective configuration.
func (d *Device) Config() Config { return d.cfg }

// PageSize returns the effective page size.
func (d *Device) PageSize() int { return d.cfg.PageSize }

// Size returns the capacity in bytes, or 0 when unknown.
func (d *Device) Size() int { return d.cfg.Family.Size }

// SlaveAddress returns the 7-bit selector used for memory address addr.
func (d *Device) SlaveAddress(addr uint16) uint8 {
	mask := uint8(1)<<d.cfg.Family.FoldBits - 1
	return d.cfg.Address&^mask | uint8(addr>>8)&mask
}

func (d *Device) checkRange(op string, addr uint16, n int) error {
	size := d.cfg.Family.Size
	if size > 0 && int(addr)+n > size {
		return &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "range exceeds device size"}
	}
	return nil
}

// PageEnd returns the end (exclusive) of the single-transaction write
// starting at addr with n bytes: the next multiple of pageSize above addr, or
// addr+n when that comes first. pageSize must be a power of two.
func PageEnd(addr uint16, n int, pageSize int) int {
	boundary := int(addr)&^(pageSize-1) + pageSize
	return mathx.Min(int(addr)+n, boundary)
}

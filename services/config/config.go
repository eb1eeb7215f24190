// Package config resolves programmer profiles: which EEPROM family sits on
// the bus, how to address it, how much of it to dump and which pins and
// baud rate the firmware console uses. Profiles are embedded JSON documents
// keyed by device ID and decoded with tinyjson.
package config

import (
	"slices"

	"eeprog-go/drivers/eeprom24"
	"eeprog-go/errcode"
	"eeprog-go/x/conv"

	"github.com/andreyvit/tinyjson"
)

const (
	serviceName    = "config"
	DefaultDevice  = "camera"
	DefaultBaud    = 38400
	DefaultBusHz   = 100000
	DefaultTimeout = 2000 // ms, host serial read timeout
)

// EmbeddedConfigLookup allows overriding how profiles are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// Profile is one decoded device profile. Pin numbers are GPIO numbers;
// -1 means "board default".
type Profile struct {
	Device   string
	Family   string
	Address  uint8
	PageSize int
	MaxIter  int

	DumpStart uint16
	DumpEnd   int // exclusive; 0 means the family size

	Baud  uint32
	BusHz uint32

	SDA, SCL int
	TX, RX   int
}

func defaults(device string) Profile {
	return Profile{
		Device: device,
		Family: eeprom24.FamilyCamera.Name,
		Baud:   DefaultBaud,
		BusHz:  DefaultBusHz,
		SDA:    -1,
		SCL:    -1,
		TX:     -1,
		RX:     -1,
	}
}

// Load resolves the embedded profile for device.
func Load(device string) (Profile, error) {
	if device == "" {
		return Profile{}, &errcode.E{C: errcode.InvalidParams, Op: serviceName + ".load", Msg: "missing device ID"}
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return Profile{}, &errcode.E{C: errcode.UnknownDevice, Op: serviceName + ".load", Msg: "no embedded profile for device: " + device}
	}
	return Decode(device, raw)
}

// Decode parses a profile document. Unknown keys and malformed JSON are
// errcode.InvalidPayload; numbers outside their field's range are
// errcode.InvalidParams and are never truncated.
func Decode(device string, raw []byte) (p Profile, err error) {
	defer func() {
		if r := recover(); r != nil {
			e := &errcode.E{C: errcode.InvalidPayload, Op: serviceName + ".decode"}
			switch v := r.(type) {
			case *errcode.E:
				p, err = Profile{}, v
				return
			case string:
				e.Msg = v
			case error:
				e.Err = v
			}
			p, err = Profile{}, e
		}
	}()
	p = defaults(device)
	r := tinyjson.Raw(raw)
	p.decode(&r)
	r.EnsureEOF()
	return p, p.validate()
}

// maxPin is the highest GPIO number a profile may name.
const maxPin = 63

// num reads an integer for key and rejects it unless lo <= v <= hi, so
// callers can narrow it safely.
func num(r *tinyjson.Raw, key string, lo, hi int) int {
	v := r.Int()
	if v < lo || v > hi {
		var a, b, c [20]byte
		panic(&errcode.E{C: errcode.InvalidParams, Op: serviceName + ".decode",
			Msg: key + " " + string(conv.Itoa(a[:], int64(v))) + " outside " +
				string(conv.Itoa(b[:], int64(lo))) + ".." + string(conv.Itoa(c[:], int64(hi)))})
	}
	return v
}

func (p *Profile) decode(r *tinyjson.Raw) {
	for key := r.StartObject(); key != nil; key = r.ContinueObject() {
		switch key.Str() {
		case "family":
			p.Family = r.Str()
		case "address":
			p.Address = uint8(num(r, "address", 0, 0x7F))
		case "page_size":
			p.PageSize = num(r, "page_size", 0, 0x8000)
		case "max_iter":
			p.MaxIter = num(r, "max_iter", 0, 100000)
		case "dump":
			for k := r.StartObject(); k != nil; k = r.ContinueObject() {
				switch k.Str() {
				case "start":
					p.DumpStart = uint16(num(r, "dump.start", 0, 0xFFFF))
				case "end":
					p.DumpEnd = num(r, "dump.end", 0, 0x10000)
				default:
					panic("unknown key dump." + k.Str())
				}
			}
		case "console":
			for k := r.StartObject(); k != nil; k = r.ContinueObject() {
				switch k.Str() {
				case "baud":
					p.Baud = uint32(num(r, "console.baud", 1, 4000000))
				case "tx":
					p.TX = num(r, "console.tx", -1, maxPin)
				case "rx":
					p.RX = num(r, "console.rx", -1, maxPin)
				default:
					panic("unknown key console." + k.Str())
				}
			}
		case "bus":
			for k := r.StartObject(); k != nil; k = r.ContinueObject() {
				switch k.Str() {
				case "hz":
					p.BusHz = uint32(num(r, "bus.hz", 1, 1000000))
				case "sda":
					p.SDA = num(r, "bus.sda", -1, maxPin)
				case "scl":
					p.SCL = num(r, "bus.scl", -1, maxPin)
				default:
					panic("unknown key bus." + k.Str())
				}
			}
		default:
			panic("unknown key " + key.Str())
		}
	}
}

func (p Profile) validate() error {
	if _, ok := eeprom24.FamilyByName(p.Family); !ok {
		return &errcode.E{C: errcode.UnknownDevice, Op: serviceName + ".decode", Msg: "unknown family " + p.Family}
	}
	if p.DumpEnd != 0 && p.DumpEnd <= int(p.DumpStart) {
		return &errcode.E{C: errcode.InvalidParams, Op: serviceName + ".decode", Msg: "empty dump range"}
	}
	return nil
}

// DeviceConfig returns the eeprom24 configuration the profile describes.
func (p Profile) DeviceConfig() eeprom24.Config {
	f, _ := eeprom24.FamilyByName(p.Family)
	return eeprom24.Config{
		Family:   f,
		Address:  p.Address,
		PageSize: p.PageSize,
		MaxIter:  p.MaxIter,
	}
}

// DumpRange returns the [start, end) range the read command covers.
func (p Profile) DumpRange() (uint16, int) {
	end := p.DumpEnd
	if end == 0 {
		f, _ := eeprom24.FamilyByName(p.Family)
		end = f.Size
	}
	return p.DumpStart, end
}

// Devices lists the embedded profile IDs in order.
func Devices() []string {
	ids := make([]string, 0, len(embeddedConfigs))
	for id := range embeddedConfigs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Package ihex decodes and encodes Intel-hex records as exchanged with the
// programmer console: one record per line, leading ':' already stripped on
// input, data (00) and end-of-file (01) records only.
package ihex

import (
	"eeprog-go/errcode"
	"eeprog-go/x/conv"
)

// MaxLineBytes is the number of decoded bytes a line may carry, header and
// checksum included.
const MaxLineBytes = 40

// Record types.
const (
	TypeData uint8 = 0x00
	TypeEOF  uint8 = 0x01
)

// Record is one decoded line. Data aliases the decoder's buffer.
type Record struct {
	Length   uint8
	Address  uint16
	Type     uint8
	Data     []byte
	Checksum uint8
}

// Writer receives the payload of data records. *eeprom24.Device satisfies it.
type Writer interface {
	WriteBytes(addr uint16, data []byte) (int, error)
}

// Decoder holds the scratch buffer for one line. The zero value is ready to use.
type Decoder struct {
	buf [MaxLineBytes]byte
}

func terminator(c byte) bool { return c == '\r' || c == '\n' || c == 0 }

// Parse decodes and validates line without acting on it.
//
// Pairs of hex digits are decoded until a terminator (CR, LF, NUL or the end
// of line) appears where a pair should start. Any other non-hex character is
// errcode.InvalidCharacter. Overflow is detected as soon as the decoded count
// exceeds MaxLineBytes.
func (d *Decoder) Parse(line []byte) (Record, error) {
	n := 0
	var sum byte
	for i := 0; i < len(line) && !terminator(line[i]); i += 2 {
		hi, ok := conv.HexNibble(line[i])
		if !ok || i+1 >= len(line) {
			return Record{}, errcode.InvalidCharacter
		}
		lo, ok := conv.HexNibble(line[i+1])
		if !ok {
			return Record{}, errcode.InvalidCharacter
		}
		if n == MaxLineBytes {
			return Record{}, errcode.LineOverflow
		}
		b := hi<<4 | lo
		d.buf[n] = b
		sum += b
		n++
	}
	if n < 5 {
		return Record{}, errcode.TooShort
	}
	if sum != 0 {
		return Record{}, errcode.ChecksumMismatch
	}
	r := Record{
		Length:   d.buf[0],
		Address:  uint16(d.buf[1])<<8 | uint16(d.buf[2]),
		Type:     d.buf[3],
		Data:     d.buf[4 : n-1],
		Checksum: d.buf[n-1],
	}
	switch r.Type {
	case TypeData:
		if int(r.Length) != n-5 {
			return Record{}, errcode.LengthMismatch
		}
	case TypeEOF:
	default:
		return Record{}, errcode.UnsupportedRecord
	}
	return r, nil
}

// Decode parses line and writes the payload of a data record through w. It
// returns the number of bytes w accepted; an end-of-file record returns 0.
// A write failure is reported as errcode.WriteFailed wrapping w's error.
func (d *Decoder) Decode(line []byte, w Writer) (int, error) {
	r, err := d.Parse(line)
	if err != nil || r.Type != TypeData {
		return 0, err
	}
	n, err := w.WriteBytes(r.Address, r.Data)
	if err != nil {
		return n, errcode.Wrap(errcode.WriteFailed, "ihex.decode", err)
	}
	return n, nil
}

// DecodeLine is Decode with a temporary Decoder.
func DecodeLine(line []byte, w Writer) (int, error) {
	var d Decoder
	return d.Decode(line, w)
}

// ParseLine is Parse with a temporary Decoder; the record owns its data.
func ParseLine(line []byte) (Record, error) {
	d := new(Decoder)
	return d.Parse(line)
}

// ConsoleCode maps a decode or write error to the small negative number the
// console prints after "ERROR". It returns 0 for nil.
func ConsoleCode(err error) int {
	if err == nil {
		return 0
	}
	switch errcode.Of(err) {
	case errcode.InvalidCharacter:
		return -1
	case errcode.LineOverflow:
		return -2
	case errcode.TooShort:
		return -3
	case errcode.ChecksumMismatch:
		return -4
	case errcode.LengthMismatch:
		return -5
	case errcode.UnsupportedRecord:
		return -6
	}
	return -7
}

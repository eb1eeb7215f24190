package ihex

import (
	"io"

	"eeprog-go/x/conv"
	"eeprog-go/x/mathx"
)

// RecordLen is the payload carried by each data record a Dumper writes.
const RecordLen = 16

// EOFRecord terminates a dump.
const EOFRecord = ":00000001FF"

// AppendRecord appends one record, ":" through checksum, without a line end.
func AppendRecord(dst []byte, typ uint8, addr uint16, data []byte) []byte {
	sum := byte(len(data)) + byte(addr>>8) + byte(addr) + typ
	dst = append(dst, ':')
	dst = conv.AppendHex8(dst, byte(len(data)))
	dst = conv.AppendHex16(dst, addr)
	dst = conv.AppendHex8(dst, typ)
	for _, b := range data {
		dst = conv.AppendHex8(dst, b)
		sum += b
	}
	return conv.AppendHex8(dst, -sum)
}

// Dumper writes memory as data records of up to RecordLen bytes, one per line.
type Dumper struct {
	W   io.Writer
	buf []byte
}

// Data writes data, which starts at addr, as one or more records.
func (d *Dumper) Data(addr uint16, data []byte) error {
	for len(data) > 0 {
		n := mathx.Min(len(data), RecordLen)
		d.buf = append(AppendRecord(d.buf[:0], TypeData, addr, data[:n]), '\n')
		if _, err := d.W.Write(d.buf); err != nil {
			return err
		}
		addr += uint16(n)
		data = data[n:]
	}
	return nil
}

// EOF writes the end-of-file record followed by a blank line.
func (d *Dumper) EOF() error {
	_, err := io.WriteString(d.W, EOFRecord+"\n\n")
	return err
}

// Package programmer drives whole-image operations from the host: program
// an Intel hex file into the EEPROM with optional read-back verification,
// dump a range as Intel hex, and probe or scan the bus.
package programmer

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"eeprog-go/drivers/eeprom24"
	"eeprog-go/errcode"
	"eeprog-go/x/ihex"
	"eeprog-go/x/mathx"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"tinygo.org/x/drivers"
)

// Device is the EEPROM being programmed. *eeprom24.Device satisfies it.
type Device interface {
	ReadBytes(addr uint16, buf []byte) (int, error)
	WriteBytes(addr uint16, data []byte) (int, error)
}

// Options controls Program.
type Options struct {
	// Verify reads every data record back after writing it.
	Verify bool
	Log    zerolog.Logger
}

// Result summarises a Program run.
type Result struct {
	Lines   int // lines read, including blank ones
	Records int // data records written
	Bytes   int
}

// Program writes every data record of the Intel hex text in r, stopping at
// the end-of-file record or the end of input. Blank lines are skipped. Each
// error names the line it came from and keeps its errcode kind.
func Program(ctx context.Context, dev Device, r io.Reader, opt Options) (Result, error) {
	var (
		res  Result
		dec  ihex.Decoder
		back [ihex.MaxLineBytes]byte
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		res.Lines++
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != ':' {
			return res, errors.Wrapf(errcode.InvalidCharacter, "line %d: missing ':'", res.Lines)
		}
		rec, err := dec.Parse(line[1:])
		if err != nil {
			return res, errors.Wrapf(err, "line %d", res.Lines)
		}
		if rec.Type == ihex.TypeEOF {
			opt.Log.Debug().Int("line", res.Lines).Msg("end of file record")
			break
		}
		n, err := dev.WriteBytes(rec.Address, rec.Data)
		res.Bytes += n
		if err != nil {
			return res, errors.Wrapf(errcode.Wrap(errcode.WriteFailed, "programmer", err), "line %d", res.Lines)
		}
		res.Records++
		opt.Log.Debug().Int("line", res.Lines).Uint16("addr", rec.Address).Int("len", n).Msg("wrote record")

		if !opt.Verify || len(rec.Data) == 0 {
			continue
		}
		got := back[:len(rec.Data)]
		if m, err := dev.ReadBytes(rec.Address, got); err != nil || m != len(got) {
			if err == nil {
				err = errcode.ShortRead
			}
			return res, errors.Wrapf(err, "line %d: verify read", res.Lines)
		}
		if i := mismatch(got, rec.Data); i >= 0 {
			return res, errors.Wrapf(errcode.VerifyMismatch, "line %d: address 0x%04X reads 0x%02X, want 0x%02X",
				res.Lines, int(rec.Address)+i, got[i], rec.Data[i])
		}
	}
	if err := sc.Err(); err != nil {
		return res, errors.Wrap(err, "reading hex input")
	}
	opt.Log.Info().Int("records", res.Records).Int("bytes", res.Bytes).Bool("verified", opt.Verify).Msg("programmed")
	return res, nil
}

func mismatch(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return -1
}

// Dump writes [start, end) as Intel hex data records followed by the EOF
// record and returns the bytes read. A short read is logged and the dump
// continues after the bytes that were returned; any other failure ends it.
func Dump(ctx context.Context, dev Device, w io.Writer, start uint16, end int, log zerolog.Logger) (int, error) {
	var buf [ihex.RecordLen]byte
	d := ihex.Dumper{W: w}
	total := 0
	if end > int(start) {
		log.Debug().Int("records", mathx.CeilDiv(end-int(start), ihex.RecordLen)).Msg("dump")
	}
	for a := int(start); a < end; {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		chunk := buf[:mathx.Min(ihex.RecordLen, end-a)]
		n, err := dev.ReadBytes(uint16(a), chunk)
		if n == 0 || (err != nil && !eeprom24.Warning(err)) {
			if err == nil {
				err = errcode.ShortRead
			}
			return total, errors.Wrapf(err, "dump at 0x%04X", a)
		}
		if err != nil {
			log.Warn().Int("addr", a).Int("n", n).Msg("short read")
		}
		if err := d.Data(uint16(a), chunk[:n]); err != nil {
			return total, errors.Wrap(err, "writing dump")
		}
		total += n
		a += n
	}
	if err := d.EOF(); err != nil {
		return total, errors.Wrap(err, "writing dump")
	}
	return total, nil
}

// Probe reports whether a target acknowledges addr with an empty write.
func Probe(bus drivers.I2C, addr uint16) (bool, error) {
	err := bus.Tx(addr, nil, nil)
	switch errcode.Of(err) {
	case errcode.OK:
		return true, nil
	case errcode.DeviceDeclined:
		return false, nil
	}
	return false, errors.Wrapf(err, "probe 0x%02X", addr)
}

// Scan probes the non-reserved 7-bit addresses 0x08 to 0x77 and returns
// those that answered.
func Scan(bus drivers.I2C, log zerolog.Logger) ([]uint16, error) {
	var found []uint16
	for a := uint16(0x08); a <= 0x77; a++ {
		ok, err := Probe(bus, a)
		if err != nil {
			return found, err
		}
		if ok {
			log.Debug().Uint16("addr", a).Msg("target answered")
			found = append(found, a)
		}
	}
	return found, nil
}

// TraceLogger returns an eeprom24.Config.Trace hook that logs each page
// transaction at debug level.
func TraceLogger(log zerolog.Logger) func(eeprom24.PageTrace) {
	return func(p eeprom24.PageTrace) {
		ev := log.Debug()
		if p.Err != nil {
			ev = log.Warn().Err(p.Err)
		}
		ev.Uint16("addr", p.Addr).Int("len", p.Want).Int("written", p.Written).Msg("write page")
	}
}

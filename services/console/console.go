// Package console runs the programmer's serial menu:
//
//	r               dump the configured range as Intel hex
//	:<record>       program one Intel-hex record
//	d <addr> <len>  hex dump a range for inspection
//
// It reads single bytes and writes plain text, so it runs unchanged over a
// UART on the board or over stdin/stdout on the host.
package console

import (
	"context"
	"errors"
	"io"
	"strconv"

	"eeprog-go/drivers/eeprom24"
	"eeprog-go/x/conv"
	"eeprog-go/x/ihex"
	"eeprog-go/x/mathx"

	"github.com/google/shlex"
)

// MaxLine is the longest input line accepted after ':' or 'd'.
const MaxLine = 70

// Target is the EEPROM the console drives. *eeprom24.Device satisfies it.
type Target interface {
	ReadBytes(addr uint16, buf []byte) (int, error)
	WriteBytes(addr uint16, data []byte) (int, error)
}

// Config selects the banner and the range dumped by 'r'.
type Config struct {
	Title     string // default "EEPROM Programmer"
	DumpStart uint16
	DumpEnd   int // exclusive; default 0x2000
}

// Session is one console on one byte stream. Not safe for concurrent use.
type Session struct {
	in   io.ByteReader
	out  io.Writer
	dev  Target
	cfg  Config
	dec  ihex.Decoder
	dump ihex.Dumper

	line [MaxLine]byte
	data [ihex.RecordLen]byte
	wbuf []byte
	err  error // first output failure
}

// New creates a session. It writes nothing until Run.
func New(in io.ByteReader, out io.Writer, dev Target, cfg Config) *Session {
	if cfg.Title == "" {
		cfg.Title = "EEPROM Programmer"
	}
	if cfg.DumpEnd == 0 {
		cfg.DumpEnd = 0x2000
	}
	s := &Session{in: in, out: out, dev: dev, cfg: cfg}
	s.dump.W = out
	return s
}

// Run serves commands until the input ends (nil), ctx is done or output
// fails.
func (s *Session) Run(ctx context.Context) error {
	s.menu()
	for s.err == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := s.in.ReadByte()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch c {
		case 'r':
			s.puts("READ\n\n")
			s.readROM()
		case ':':
			s.program()
		case 'd':
			s.hexdump()
		default:
			// Line ends and stray characters between commands.
			continue
		}
		s.menu()
	}
	return s.err
}

func (s *Session) menu() {
	s.puts(" " + s.cfg.Title + "\n" +
		"    r = read EEPROM\n" +
		"    :.... = write a HEX data line\n" +
		"    d <addr> <len> = dump a range\n" +
		"\n")
}

func (s *Session) puts(str string) {
	if s.err == nil {
		_, s.err = io.WriteString(s.out, str)
	}
}

func (s *Session) flush() {
	if s.err == nil {
		_, s.err = s.out.Write(s.wbuf)
	}
	s.wbuf = s.wbuf[:0]
}

// readLine collects characters up to the first control character. On
// overflow it prints "Line Overflow", drops the rest of the line and
// returns false.
func (s *Session) readLine() ([]byte, bool) {
	n := 0
	for {
		c, err := s.in.ReadByte()
		if err != nil || c < ' ' {
			return s.line[:n], true
		}
		if n == MaxLine {
			s.puts("Line Overflow\n")
			for err == nil && c >= ' ' {
				c, err = s.in.ReadByte()
			}
			return nil, false
		}
		s.line[n] = c
		n++
	}
}

func (s *Session) program() {
	line, ok := s.readLine()
	if !ok {
		return
	}
	var tmp [20]byte
	n, err := s.dec.Decode(line, s.dev)
	if err != nil {
		s.wbuf = append(s.wbuf, "ERROR "...)
		s.wbuf = append(s.wbuf, conv.Itoa(tmp[:], int64(ihex.ConsoleCode(err)))...)
	} else {
		s.wbuf = append(s.wbuf, "Wrote "...)
		s.wbuf = append(s.wbuf, conv.Utoa(tmp[:], uint64(n))...)
	}
	s.wbuf = append(s.wbuf, '\n')
	s.flush()
}

// readROM dumps the configured range as data records and the EOF record.
// A failed read prints the captured bus status and ends the dump.
func (s *Session) readROM() {
	for a := int(s.cfg.DumpStart); a < s.cfg.DumpEnd && s.err == nil; {
		buf := s.data[:mathx.Min(ihex.RecordLen, s.cfg.DumpEnd-a)]
		n, err := s.dev.ReadBytes(uint16(a), buf)
		if n == 0 || (err != nil && !eeprom24.Warning(err)) {
			s.busError(err)
			return
		}
		if err != nil {
			var tmp [20]byte
			s.wbuf = append(s.wbuf, "warning: short read "...)
			s.wbuf = append(s.wbuf, conv.Utoa(tmp[:], uint64(n))...)
			s.wbuf = append(s.wbuf, '\n')
			s.flush()
		}
		if err := s.dump.Data(uint16(a), buf[:n]); err != nil && s.err == nil {
			s.err = err
		}
		a += n
	}
	if err := s.dump.EOF(); err != nil && s.err == nil {
		s.err = err
	}
}

func (s *Session) busError(err error) {
	var te *eeprom24.TxError
	if !errors.As(err, &te) {
		msg := "no data"
		if err != nil {
			msg = err.Error()
		}
		s.puts("error: " + msg + "\n")
		return
	}
	var tmp [4]byte
	s.wbuf = append(s.wbuf, "error: TWI status 0x"...)
	s.wbuf = append(s.wbuf, conv.U8Hex(tmp[:], uint8(te.Status))...)
	s.wbuf = append(s.wbuf, " step "...)
	s.wbuf = append(s.wbuf, te.Step.String()...)
	s.wbuf = append(s.wbuf, " ("...)
	s.wbuf = append(s.wbuf, string(te.Kind)...)
	s.wbuf = append(s.wbuf, ")\n"...)
	s.flush()
}

// hexdump handles "d <addr> <len>". Numbers take Go literal syntax
// (0x100, 256, 0o400).
func (s *Session) hexdump() {
	line, ok := s.readLine()
	if !ok {
		return
	}
	args, err := shlex.Split(string(line))
	if err != nil || len(args) != 2 {
		s.puts("usage: d <addr> <len>\n")
		return
	}
	addr, err1 := strconv.ParseUint(args[0], 0, 16)
	length, err2 := strconv.ParseUint(args[1], 0, 16)
	if err1 != nil || err2 != nil {
		s.puts("usage: d <addr> <len>\n")
		return
	}
	end := int(addr) + int(length)
	for a := int(addr); a < end && s.err == nil; {
		buf := s.data[:mathx.Min(ihex.RecordLen, end-a)]
		n, err := s.dev.ReadBytes(uint16(a), buf)
		if n == 0 || (err != nil && !eeprom24.Warning(err)) {
			s.busError(err)
			return
		}
		s.row(uint16(a), buf[:n])
		a += n
	}
}

func (s *Session) row(addr uint16, b []byte) {
	s.wbuf = append(s.wbuf, "0x"...)
	s.wbuf = conv.AppendHex16(s.wbuf, addr)
	s.wbuf = append(s.wbuf, ':')
	for _, v := range b {
		s.wbuf = append(s.wbuf, ' ')
		s.wbuf = conv.AppendHex8(s.wbuf, v)
	}
	s.wbuf = append(s.wbuf, '\n')
	s.flush()
}

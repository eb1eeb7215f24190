package twitest

import (
	"strings"

	"eeprog-go/drivers/twi"
	"eeprog-go/x/conv"
)

// Event is one bus phase seen by a Recorder.
type Event struct {
	Op     byte // 'S' start, 'W' write, 'R' read, 'P' stop
	Byte   byte
	Ack    bool // for 'R': the master asked to ACK
	Status twi.Status
}

func (ev Event) String() string {
	var b []byte
	b = append(b, ev.Op)
	switch ev.Op {
	case 'W':
		b = append(b, ' ')
		b = conv.AppendHex8(b, ev.Byte)
	case 'R':
		if ev.Ack {
			b = append(b, '+')
		} else {
			b = append(b, '-')
		}
	case 'P':
		return string(b)
	}
	b = append(b, '/')
	b = conv.AppendHex8(b, byte(ev.Status))
	return string(b)
}

// Recorder wraps a Controller and logs every phase.
type Recorder struct {
	C      twi.Controller
	Events []Event
}

func (r *Recorder) Start() twi.Status {
	st := r.C.Start()
	r.Events = append(r.Events, Event{Op: 'S', Status: st})
	return st
}

func (r *Recorder) Write(b byte) twi.Status {
	st := r.C.Write(b)
	r.Events = append(r.Events, Event{Op: 'W', Byte: b, Status: st})
	return st
}

func (r *Recorder) Read(ack bool) (byte, twi.Status) {
	b, st := r.C.Read(ack)
	r.Events = append(r.Events, Event{Op: 'R', Byte: b, Ack: ack, Status: st})
	return b, st
}

func (r *Recorder) Stop() {
	r.C.Stop()
	r.Events = append(r.Events, Event{Op: 'P'})
}

// Trace renders the log as space-separated events, e.g. "S/08 W AC/18 P".
func (r *Recorder) Trace() string {
	s := make([]string, len(r.Events))
	for i, ev := range r.Events {
		s[i] = ev.String()
	}
	return strings.Join(s, " ")
}

// Count returns how many events have the given op.
func (r *Recorder) Count(op byte) int {
	n := 0
	for _, ev := range r.Events {
		if ev.Op == op {
			n++
		}
	}
	return n
}

// Reset clears the log.
func (r *Recorder) Reset() { r.Events = r.Events[:0] }

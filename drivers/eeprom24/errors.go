package eeprom24

import (
	"eeprog-go/drivers/twi"
	"eeprog-go/errcode"
	"eeprog-go/x/conv"
)

// TxError reports a failed (or short) bus transaction together with the
// status and protocol step captured when it ended.
//
// Kind is one of errcode.BusProtocol, errcode.DeviceBusyTimeout,
// errcode.DeviceDeclined or errcode.ShortRead; errors.Is matches it.
type TxError struct {
	Kind     errcode.Code
	Op       string // "read" or "write"
	Addr     uint16 // memory address of the failing transaction
	Status   twi.Status
	Step     twi.Step
	Attempts int
}

func (e *TxError) Error() string {
	var a, n [20]byte
	return "eeprom24: " + e.Op + " 0x" + string(conv.U16Hex(a[:], e.Addr)) + ": " + string(e.Kind) +
		" (status " + e.Status.String() + " at " + e.Step.String() +
		", attempt " + string(conv.Itoa(n[:], int64(e.Attempts))) + ")"
}

func (e *TxError) Unwrap() error      { return e.Kind }
func (e *TxError) Code() errcode.Code { return e.Kind }

// Warning reports whether err only signals a short read: the bytes that were
// returned are valid.
func Warning(err error) bool {
	return errcode.Of(err) == errcode.ShortRead
}

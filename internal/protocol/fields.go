package protocol

import (
	"time"
)

// Epoch is the zero point of PakBus time stamps.
var Epoch = time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)

// NSec is a seconds + nanoseconds pair relative to Epoch.
type NSec struct {
	Sec  int32
	Nsec int32
}

// Time converts n to wall-clock time.
func (n NSec) Time() time.Time {
	return Epoch.Add(n.Duration())
}

// Duration reads n as a span, as used for table intervals.
func (n NSec) Duration() time.Duration {
	return time.Duration(n.Sec)*time.Second + time.Duration(n.Nsec)
}

// NSecFromTime converts t to an Epoch-relative pair.
func NSecFromTime(t time.Time) NSec {
	return NSecFromDuration(t.Sub(Epoch))
}

// NSecFromDuration expresses an offset (for clock adjustments) as a pair.
// Nsec is kept in [0, 1e9), so negative spans borrow from Sec.
func NSecFromDuration(d time.Duration) NSec {
	sec, ns := d/time.Second, d%time.Second
	if ns < 0 {
		ns += time.Second
		sec--
	}
	return NSec{Sec: int32(sec), Nsec: int32(ns)}
}

// Value is one decoded or to-be-encoded field. Only the member matching the
// type's family is meaningful; Uint also carries the raw code of FP2 and
// bool types.
type Value struct {
	Type   FieldType
	Uint   uint64
	Int    int64
	Float  float64
	Bool   bool
	String string
	Time   NSec
	Bytes  []byte
}

func Byte(v uint8) Value { return Value{Type: TypeByte, Uint: uint64(v)} }
func UInt2(v uint16) Value { return Value{Type: TypeUInt2, Uint: uint64(v)} }
func UInt4(v uint32) Value { return Value{Type: TypeUInt4, Uint: uint64(v)} }
func Int1(v int8) Value { return Value{Type: TypeInt1, Int: int64(v)} }
func Int2(v int16) Value { return Value{Type: TypeInt2, Int: int64(v)} }
func Int4(v int32) Value { return Value{Type: TypeInt4, Int: int64(v)} }
func FP2(v float64) Value { return Value{Type: TypeFP2, Float: v} }
func IEEE4(v float32) Value { return Value{Type: TypeIEEE4B, Float: float64(v)} }
func IEEE8(v float64) Value { return Value{Type: TypeIEEE8B, Float: v} }
func Sec(v int32) Value { return Value{Type: TypeSec, Int: int64(v)} }
func Time(v NSec) Value { return Value{Type: TypeNSec, Time: v} }
func ASCIIZ(s string) Value { return Value{Type: TypeASCIIZ, String: s} }
func ASCII(s string) Value { return Value{Type: TypeASCII, String: s} }

// Bool returns a one-byte boolean value.
func Bool(v bool) Value {
	out := Value{Type: TypeBool, Bool: v}
	if v {
		out.Uint = 1
	}
	return out
}

// Raw carries an opaque fixed-size value such as FP3, FP4 or USec.
func Raw(t FieldType, b []byte) Value {
	buf := make([]byte, len(b))
	copy(buf, b)
	return Value{Type: t, Bytes: buf}
}

// Float64 returns v as a number when its type is numeric.
func (v Value) Float64() (float64, bool) {
	info, ok := registry[v.Type]
	if !ok {
		return 0, false
	}
	switch info.kind {
	case kindUint, kindBool:
		return float64(v.Uint), true
	case kindInt:
		return float64(v.Int), true
	case kindFloat, kindFP2:
		return v.Float, true
	default:
		return 0, false
	}
}

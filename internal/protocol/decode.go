package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Decode unpacks one value per entry of types from buf and returns the
// number of bytes consumed. asciiLen sizes any ASCII entries. A fixed-size
// field that runs past the end of buf yields a *ShortBufferError and no
// values.
func Decode(types []FieldType, buf []byte, asciiLen int) ([]Value, int, error) {
	values := make([]Value, 0, len(types))
	off := 0
	for _, t := range types {
		v, n, err := decodeValue(t, buf[off:], asciiLen, off)
		if err != nil {
			return nil, 0, err
		}
		values = append(values, v)
		off += n
	}
	return values, off, nil
}

// DecodeRepeated unpacks count values of a single type.
func DecodeRepeated(t FieldType, count int, buf []byte) ([]Value, int, error) {
	types := make([]FieldType, count)
	for i := range types {
		types[i] = t
	}
	return Decode(types, buf, 0)
}

func decodeValue(t FieldType, b []byte, asciiLen int, base int) (Value, int, error) {
	info, err := lookup(t)
	if err != nil {
		return Value{}, 0, err
	}
	if info.size > 0 && len(b) < info.size {
		return Value{}, 0, &ShortBufferError{Type: t, Offset: base, Need: info.size, Have: len(b)}
	}
	switch info.kind {
	case kindUint:
		return Value{Type: t, Uint: readUint(b, info.size, info.order)}, info.size, nil
	case kindBool:
		u := readUint(b, info.size, info.order)
		return Value{Type: t, Uint: u, Bool: u != 0}, info.size, nil
	case kindInt:
		u := readUint(b, info.size, info.order)
		var i int64
		switch info.size {
		case 1:
			i = int64(int8(u))
		case 2:
			i = int64(int16(u))
		default:
			i = int64(int32(u))
		}
		return Value{Type: t, Int: i}, info.size, nil
	case kindFloat:
		u := readUint(b, info.size, info.order)
		if info.size == 4 {
			return Value{Type: t, Float: float64(math.Float32frombits(uint32(u)))}, 4, nil
		}
		return Value{Type: t, Float: math.Float64frombits(u)}, 8, nil
	case kindFP2:
		raw := uint16(readUint(b, 2, info.order))
		return Value{Type: t, Uint: uint64(raw), Float: DecodeFP2(raw)}, 2, nil
	case kindRaw:
		return Raw(t, b[:info.size]), info.size, nil
	case kindTime:
		sec := int32(readUint(b[0:4], 4, info.order))
		nsec := int32(readUint(b[4:8], 4, info.order))
		return Value{Type: t, Time: NSec{Sec: sec, Nsec: nsec}}, 8, nil
	case kindASCII:
		if asciiLen < 0 {
			return Value{}, 0, fmt.Errorf("%w: %d", ErrInvalidASCII, asciiLen)
		}
		if len(b) < asciiLen {
			return Value{}, 0, &ShortBufferError{Type: t, Offset: base, Need: asciiLen, Have: len(b)}
		}
		s := bytes.TrimRight(b[:asciiLen], "\x00")
		return Value{Type: t, String: string(s)}, asciiLen, nil
	case kindASCIIZ:
		end := bytes.IndexByte(b, 0)
		if end < 0 {
			return Value{Type: t, String: string(b)}, len(b), nil
		}
		return Value{Type: t, String: string(b[:end])}, end + 1, nil
	default:
		return Value{}, 0, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
}

func readUint(b []byte, size int, order binary.ByteOrder) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	default:
		return order.Uint64(b)
	}
}

// Cursor walks a message body field by field. The first error sticks and
// later reads return zero values.
type Cursor struct {
	buf []byte
	off int
	err error
}

func NewCursor(b []byte) *Cursor {
	return &Cursor{buf: b}
}

func (c *Cursor) Next(t FieldType) Value {
	return c.next(t, 0)
}

// NextASCII reads a fixed-length ASCII field of n bytes.
func (c *Cursor) NextASCII(n int) string {
	return c.next(TypeASCII, n).String
}

func (c *Cursor) Byte() uint8 { return uint8(c.Next(TypeByte).Uint) }
func (c *Cursor) UInt2() uint16 { return uint16(c.Next(TypeUInt2).Uint) }
func (c *Cursor) UInt4() uint32 { return uint32(c.Next(TypeUInt4).Uint) }
func (c *Cursor) ASCIIZ() string { return c.Next(TypeASCIIZ).String }
func (c *Cursor) NSec() NSec { return c.Next(TypeNSec).Time }

// Bytes reads n raw bytes.
func (c *Cursor) Bytes(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.Len() < n {
		c.err = &ShortBufferError{Type: TypeByte, Offset: c.off, Need: n, Have: c.Len()}
		return nil
	}
	out := make([]byte, n)
	copy(out, c.buf[c.off:c.off+n])
	c.off += n
	return out
}

// PeekByte returns the next byte without consuming it.
func (c *Cursor) PeekByte() (byte, bool) {
	if c.err != nil || c.Len() == 0 {
		return 0, false
	}
	return c.buf[c.off], true
}

// Rest consumes and returns everything left.
func (c *Cursor) Rest() []byte {
	if c.err != nil {
		return nil
	}
	return c.Bytes(c.Len())
}

func (c *Cursor) Len() int { return len(c.buf) - c.off }
func (c *Cursor) Offset() int { return c.off }
func (c *Cursor) Err() error { return c.err }

func (c *Cursor) next(t FieldType, asciiLen int) Value {
	if c.err != nil {
		return Value{Type: t}
	}
	v, n, err := decodeValue(t, c.buf[c.off:], asciiLen, c.off)
	if err != nil {
		c.err = err
		return Value{Type: t}
	}
	c.off += n
	return v
}

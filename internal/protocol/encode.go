package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode packs values in order using the matching entry of types.
func Encode(types []FieldType, values []Value) ([]byte, error) {
	if len(types) != len(values) {
		return nil, fmt.Errorf("%w: types=%d values=%d", ErrValueCount, len(types), len(values))
	}
	out := make([]byte, 0, 32)
	for i, t := range types {
		var err error
		out, err = AppendValue(out, t, values[i])
		if err != nil {
			return nil, fmt.Errorf("protocol: field %d: %w", i, err)
		}
	}
	return out, nil
}

// EncodeValues packs values using each value's own Type.
func EncodeValues(values ...Value) ([]byte, error) {
	types := make([]FieldType, len(values))
	for i, v := range values {
		types[i] = v.Type
	}
	return Encode(types, values)
}

// AppendValue packs v as type t onto dst.
func AppendValue(dst []byte, t FieldType, v Value) ([]byte, error) {
	info, err := lookup(t)
	if err != nil {
		return nil, err
	}
	switch info.kind {
	case kindUint, kindBool:
		u := v.Uint
		if info.kind == kindBool && v.Bool && u == 0 {
			u = 1
		}
		if info.size < 8 && u >= 1<<(8*info.size) {
			return nil, fmt.Errorf("%w: %s %d", ErrValueRange, t, u)
		}
		return appendUint(dst, info.size, info.order, u), nil
	case kindInt:
		bits := uint(8 * info.size)
		lo, hi := -int64(1)<<(bits-1), int64(1)<<(bits-1)-1
		if v.Int < lo || v.Int > hi {
			return nil, fmt.Errorf("%w: %s %d", ErrValueRange, t, v.Int)
		}
		return appendUint(dst, info.size, info.order, uint64(v.Int)), nil
	case kindFloat:
		if info.size == 4 {
			return appendUint(dst, 4, info.order, uint64(math.Float32bits(float32(v.Float)))), nil
		}
		return appendUint(dst, 8, info.order, math.Float64bits(v.Float)), nil
	case kindFP2:
		raw, err := EncodeFP2(v.Float)
		if err != nil {
			return nil, err
		}
		return appendUint(dst, 2, info.order, uint64(raw)), nil
	case kindRaw:
		if len(v.Bytes) != info.size {
			return nil, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrValueRange, t, info.size, len(v.Bytes))
		}
		return append(dst, v.Bytes...), nil
	case kindTime:
		dst = appendUint(dst, 4, info.order, uint64(uint32(v.Time.Sec)))
		return appendUint(dst, 4, info.order, uint64(uint32(v.Time.Nsec))), nil
	case kindASCII:
		return append(dst, v.String...), nil
	case kindASCIIZ:
		dst = append(dst, v.String...)
		return append(dst, 0), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
}

func appendUint(dst []byte, size int, order binary.ByteOrder, u uint64) []byte {
	var buf [8]byte
	switch size {
	case 1:
		buf[0] = byte(u)
	case 2:
		order.PutUint16(buf[:2], uint16(u))
	case 4:
		order.PutUint32(buf[:4], uint32(u))
	default:
		order.PutUint64(buf[:8], u)
	}
	return append(dst, buf[:size]...)
}

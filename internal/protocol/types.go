package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// FieldType is the stable PakBus data type code.
type FieldType uint8

const (
	TypeByte    FieldType = 1
	TypeUInt2   FieldType = 2
	TypeUInt4   FieldType = 3
	TypeInt1    FieldType = 4
	TypeInt2    FieldType = 5
	TypeInt4    FieldType = 6
	TypeFP2     FieldType = 7
	TypeFP4     FieldType = 8
	TypeIEEE4B  FieldType = 9
	TypeBool    FieldType = 10
	TypeASCII   FieldType = 11
	TypeSec     FieldType = 12
	TypeUSec    FieldType = 13
	TypeNSec    FieldType = 14
	TypeFP3     FieldType = 15
	TypeASCIIZ  FieldType = 16
	TypeBool8   FieldType = 17
	TypeIEEE8B  FieldType = 18
	TypeShort   FieldType = 19
	TypeLong    FieldType = 20
	TypeUShort  FieldType = 21
	TypeULong   FieldType = 22
	TypeSecNano FieldType = 23
	TypeIEEE4L  FieldType = 24
	TypeIEEE8L  FieldType = 25
	TypeBool2   FieldType = 27
	TypeBool4   FieldType = 28
)

type kind uint8

const (
	kindUint kind = iota + 1
	kindInt
	kindFloat
	kindFP2
	kindBool
	kindRaw
	kindTime
	kindASCII
	kindASCIIZ
)

type typeInfo struct {
	name  string
	size  int
	kind  kind
	order binary.ByteOrder
}

var registry = map[FieldType]typeInfo{
	TypeByte:    {"Byte", 1, kindUint, binary.BigEndian},
	TypeUInt2:   {"UInt2", 2, kindUint, binary.BigEndian},
	TypeUInt4:   {"UInt4", 4, kindUint, binary.BigEndian},
	TypeInt1:    {"Int1", 1, kindInt, binary.BigEndian},
	TypeInt2:    {"Int2", 2, kindInt, binary.BigEndian},
	TypeInt4:    {"Int4", 4, kindInt, binary.BigEndian},
	TypeFP2:     {"FP2", 2, kindFP2, binary.BigEndian},
	TypeFP3:     {"FP3", 3, kindRaw, binary.BigEndian},
	TypeFP4:     {"FP4", 4, kindRaw, binary.BigEndian},
	TypeIEEE4B:  {"IEEE4B", 4, kindFloat, binary.BigEndian},
	TypeIEEE8B:  {"IEEE8B", 8, kindFloat, binary.BigEndian},
	TypeBool8:   {"Bool8", 1, kindBool, binary.BigEndian},
	TypeBool:    {"Bool", 1, kindBool, binary.BigEndian},
	TypeBool2:   {"Bool2", 2, kindBool, binary.BigEndian},
	TypeBool4:   {"Bool4", 4, kindBool, binary.BigEndian},
	TypeSec:     {"Sec", 4, kindInt, binary.BigEndian},
	TypeUSec:    {"USec", 6, kindRaw, binary.BigEndian},
	TypeNSec:    {"NSec", 8, kindTime, binary.BigEndian},
	TypeASCII:   {"ASCII", 0, kindASCII, nil},
	TypeASCIIZ:  {"ASCIIZ", 0, kindASCIIZ, nil},
	TypeShort:   {"Short", 2, kindInt, binary.LittleEndian},
	TypeLong:    {"Long", 4, kindInt, binary.LittleEndian},
	TypeUShort:  {"UShort", 2, kindUint, binary.LittleEndian},
	TypeULong:   {"ULong", 4, kindUint, binary.LittleEndian},
	TypeIEEE4L:  {"IEEE4L", 4, kindFloat, binary.LittleEndian},
	TypeIEEE8L:  {"IEEE8L", 8, kindFloat, binary.LittleEndian},
	TypeSecNano: {"SecNano", 8, kindTime, binary.LittleEndian},
}

var byName = func() map[string]FieldType {
	out := make(map[string]FieldType, len(registry))
	for t, info := range registry {
		out[strings.ToLower(info.name)] = t
	}
	return out
}()

func (t FieldType) String() string {
	if info, ok := registry[t]; ok {
		return info.name
	}
	return fmt.Sprintf("FieldType(%d)", uint8(t))
}

// Valid reports whether t is a registered type code.
func (t FieldType) Valid() bool {
	_, ok := registry[t]
	return ok
}

// Size returns the fixed wire size of t. Variable-length types report false.
func (t FieldType) Size() (int, bool) {
	info, ok := registry[t]
	if !ok || info.size == 0 {
		return 0, false
	}
	return info.size, true
}

// LookupType resolves a type name such as "IEEE4B" (case-insensitive).
func LookupType(name string) (FieldType, bool) {
	t, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

func lookup(t FieldType) (typeInfo, error) {
	info, ok := registry[t]
	if !ok {
		return typeInfo{}, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	return info, nil
}

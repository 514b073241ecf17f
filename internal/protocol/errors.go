package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrShortBuffer  = errors.New("protocol: short buffer")
	ErrUnknownType  = errors.New("protocol: unknown field type")
	ErrValueCount   = errors.New("protocol: value count does not match type count")
	ErrValueRange   = errors.New("protocol: value out of range for field type")
	ErrInvalidASCII = errors.New("protocol: invalid ascii length")
)

// ShortBufferError reports a fixed-size field that ran past the end of the
// input. Callers may retry once more bytes are available.
type ShortBufferError struct {
	Type   FieldType
	Offset int
	Need   int
	Have   int
}

func (e *ShortBufferError) Error() string {
	return fmt.Sprintf("protocol: short buffer decoding %s at offset %d: need=%d have=%d", e.Type, e.Offset, e.Need, e.Have)
}

func (e *ShortBufferError) Is(target error) bool {
	return target == ErrShortBuffer
}

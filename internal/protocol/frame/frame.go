package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/dataplex/internal/protocol/sig"
)

const (
	Flag  byte = 0xBD
	Quote byte = 0xBC

	quotedFlag  byte = 0xDD
	quotedQuote byte = 0xDC
)

var (
	ErrFraming  = errors.New("frame: framing error")
	ErrChecksum = errors.New("frame: signature mismatch")
	ErrTimeout  = errors.New("frame: read timeout")
)

// Limits constrains how much a reader buffers for one frame.
type Limits struct {
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 4096}
}

// QuoteBytes escapes flag and quote bytes in one pass.
func QuoteBytes(p []byte) []byte {
	out := make([]byte, 0, len(p)+len(p)/8)
	for _, b := range p {
		switch b {
		case Quote:
			out = append(out, Quote, quotedQuote)
		case Flag:
			out = append(out, Quote, quotedFlag)
		default:
			out = append(out, b)
		}
	}
	return out
}

// UnquoteBytes reverses QuoteBytes. A quote byte that does not start a
// known escape is kept as-is.
func UnquoteBytes(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		b := p[i]
		if b == Quote && i+1 < len(p) {
			switch p[i+1] {
			case quotedFlag:
				out = append(out, Flag)
				i++
				continue
			case quotedQuote:
				out = append(out, Quote)
				i++
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

// Encode signs payload and wraps it in flag bytes.
func Encode(payload []byte) []byte {
	body := QuoteBytes(sig.Sign(payload))
	out := make([]byte, 0, len(body)+2)
	out = append(out, Flag)
	out = append(out, body...)
	return append(out, Flag)
}

func WriteFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(Encode(payload))
	return err
}

// Reader pulls signed frames off a byte stream. A Read that returns no
// bytes and no error is treated as a read timeout.
type Reader struct {
	r      io.Reader
	limits Limits
	buf    []byte
	pos    int
	end    int
}

func NewReader(r io.Reader, limits Limits) *Reader {
	if limits.MaxFrameBytes <= 0 {
		limits = DefaultLimits()
	}
	return &Reader{r: r, limits: limits, buf: make([]byte, 512)}
}

// ReadFrame returns the next verified payload with its nullifier removed.
func (fr *Reader) ReadFrame() ([]byte, error) {
	b, err := fr.readByte("start of frame")
	if err != nil {
		return nil, err
	}
	for b != Flag {
		if b, err = fr.readByte("start of frame"); err != nil {
			return nil, err
		}
	}
	for b == Flag {
		if b, err = fr.readByte("packet content"); err != nil {
			return nil, err
		}
	}

	quoted := make([]byte, 0, 64)
	for b != Flag {
		if len(quoted) >= fr.limits.MaxFrameBytes {
			return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrFraming, fr.limits.MaxFrameBytes)
		}
		quoted = append(quoted, b)
		if b, err = fr.readByte("end of frame"); err != nil {
			return nil, err
		}
	}

	signed := UnquoteBytes(quoted)
	if !sig.Verify(signed) {
		return nil, ErrChecksum
	}
	return signed[:len(signed)-sig.NullifierLen], nil
}

func (fr *Reader) readByte(stage string) (byte, error) {
	if fr.pos < fr.end {
		b := fr.buf[fr.pos]
		fr.pos++
		return b, nil
	}
	n, err := fr.r.Read(fr.buf)
	if n > 0 {
		fr.pos, fr.end = 1, n
		return fr.buf[0], nil
	}
	switch {
	case err == nil:
		return 0, fmt.Errorf("%w: %w waiting for %s", ErrFraming, ErrTimeout, stage)
	case errors.Is(err, io.EOF):
		return 0, fmt.Errorf("frame: stream closed waiting for %s: %w", stage, err)
	default:
		return 0, err
	}
}

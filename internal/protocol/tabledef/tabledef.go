// Package tabledef decodes logger table definitions (the .TDF file) and the
// record data returned by collect-data transactions.
package tabledef

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/dataplex/internal/protocol"
	"github.com/danmuck/dataplex/internal/protocol/sig"
)

// FileName is the logger file holding the table definitions.
const FileName = ".TDF"

var (
	ErrUnknownTable = errors.New("tabledef: unknown table")
	ErrUnknownField = errors.New("tabledef: unknown field")
)

type Field struct {
	Type        protocol.FieldType
	ReadOnly    bool
	Name        string
	Aliases     []string
	Processing  string
	Units       string
	Description string
	BeginIndex  uint32
	Dimension   uint32
	SubDims     []uint32
}

type Table struct {
	// Number is the 1-based position in the definitions file, used as the
	// table number in collect requests.
	Number    uint16
	Name      string
	Size      uint32
	TimeType  uint8
	TimeInto  protocol.NSec
	Interval  protocol.NSec
	Fields    []Field
	Signature uint16
}

// EventDriven reports whether records carry their own time stamps.
func (t Table) EventDriven() bool {
	return t.Interval == protocol.NSec{}
}

// FieldNumber returns the 1-based number of the named field.
func (t Table) FieldNumber(name string) (uint16, bool) {
	for i, f := range t.Fields {
		if strings.EqualFold(f.Name, name) {
			return uint16(i + 1), true
		}
	}
	return 0, false
}

type Definitions struct {
	FSLVersion uint8
	Tables     []Table
}

// Table looks a table up by name (case-insensitive).
func (d Definitions) Table(name string) (Table, bool) {
	for _, t := range d.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}

func (d Definitions) ByNumber(n uint16) (Table, bool) {
	if n == 0 || int(n) > len(d.Tables) {
		return Table{}, false
	}
	return d.Tables[n-1], true
}

// Parse decodes a table definitions file.
func Parse(raw []byte) (Definitions, error) {
	c := protocol.NewCursor(raw)
	defs := Definitions{FSLVersion: c.Byte()}
	for c.Err() == nil && c.Len() > 0 {
		start := c.Offset()
		t := Table{
			Number:   uint16(len(defs.Tables) + 1),
			Name:     c.ASCIIZ(),
			Size:     c.UInt4(),
			TimeType: c.Byte(),
			TimeInto: c.NSec(),
			Interval: c.NSec(),
		}
		for c.Err() == nil {
			code := c.Byte()
			if code == 0 {
				break
			}
			t.Fields = append(t.Fields, parseField(c, code))
		}
		if err := c.Err(); err != nil {
			return Definitions{}, fmt.Errorf("tabledef: table %d (%q): %w", t.Number, t.Name, err)
		}
		t.Signature = sig.Signature(raw[start:c.Offset()], sig.Seed)
		defs.Tables = append(defs.Tables, t)
	}
	if err := c.Err(); err != nil {
		return Definitions{}, fmt.Errorf("tabledef: %w", err)
	}
	return defs, nil
}

func parseField(c *protocol.Cursor, code uint8) Field {
	f := Field{
		Type:     protocol.FieldType(code & 0x7F),
		ReadOnly: code&0x80 != 0,
		Name:     c.ASCIIZ(),
	}
	for c.Err() == nil {
		alias := c.ASCIIZ()
		if alias == "" {
			break
		}
		f.Aliases = append(f.Aliases, alias)
	}
	f.Processing = c.ASCIIZ()
	f.Units = c.ASCIIZ()
	f.Description = c.ASCIIZ()
	f.BeginIndex = c.UInt4()
	f.Dimension = c.UInt4()
	for c.Err() == nil {
		d := c.UInt4()
		if d == 0 {
			break
		}
		f.SubDims = append(f.SubDims, d)
	}
	return f
}

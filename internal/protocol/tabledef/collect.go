package tabledef

import (
	"fmt"
	"time"

	"github.com/danmuck/dataplex/internal/protocol"
)

// FieldValue is one field of a decoded record.
type FieldValue struct {
	Name  string
	Value protocol.Result
}

type Record struct {
	Number uint32
	Time   time.Time
	Fields []FieldValue
}

// Fragment is one table's slice of a collect-data response. Records that
// did not fit in one response arrive as Partial bytes at ByteOffset.
type Fragment struct {
	TableNbr    uint16
	TableName   string
	BeginRecord uint32
	Records     []Record
	IsOffset    bool
	ByteOffset  uint32
	Partial     []byte
}

type CollectResult struct {
	Fragments   []Fragment
	MoreRecords bool
}

// ParseCollectData decodes collect-data record bytes. fieldNbrs must match
// the field list of the request; empty means every field of the table.
func ParseCollectData(raw []byte, defs Definitions, fieldNbrs []uint16) (CollectResult, error) {
	var out CollectResult
	if len(raw) == 0 {
		return out, nil
	}
	out.MoreRecords = raw[len(raw)-1] != 0
	c := protocol.NewCursor(raw[:len(raw)-1])

	for c.Err() == nil && c.Len() > 0 {
		frag := Fragment{TableNbr: c.UInt2(), BeginRecord: c.UInt4()}
		if c.Err() != nil {
			break
		}
		table, ok := defs.ByNumber(frag.TableNbr)
		if !ok {
			return CollectResult{}, fmt.Errorf("%w: number %d", ErrUnknownTable, frag.TableNbr)
		}
		frag.TableName = table.Name

		if b, ok := c.PeekByte(); ok && b&0x80 != 0 {
			frag.IsOffset = true
			frag.ByteOffset = c.UInt4() & 0x7FFFFFFF
			frag.Partial = c.Rest()
			out.Fragments = append(out.Fragments, frag)
			break
		}
		count := int(c.UInt2() & 0x7FFF)

		fields, err := selectFields(table, fieldNbrs)
		if err != nil {
			return CollectResult{}, err
		}
		var first time.Time
		if !table.EventDriven() {
			first = c.NSec().Time()
		}
		step := table.Interval.Duration()
		for n := 0; n < count && c.Err() == nil; n++ {
			rec := Record{Number: frag.BeginRecord + uint32(n)}
			if table.EventDriven() {
				rec.Time = c.NSec().Time()
			} else {
				rec.Time = first.Add(time.Duration(n) * step)
			}
			for _, f := range fields {
				rec.Fields = append(rec.Fields, FieldValue{Name: f.Name, Value: decodeField(c, f)})
			}
			frag.Records = append(frag.Records, rec)
		}
		out.Fragments = append(out.Fragments, frag)
	}
	if err := c.Err(); err != nil {
		return CollectResult{}, fmt.Errorf("tabledef: collect data: %w", err)
	}
	return out, nil
}

func selectFields(t Table, nbrs []uint16) ([]Field, error) {
	if len(nbrs) == 0 {
		return t.Fields, nil
	}
	out := make([]Field, 0, len(nbrs))
	for _, n := range nbrs {
		if n == 0 || int(n) > len(t.Fields) {
			return nil, fmt.Errorf("%w: table %q field %d", ErrUnknownField, t.Name, n)
		}
		out = append(out, t.Fields[n-1])
	}
	return out, nil
}

func decodeField(c *protocol.Cursor, f Field) protocol.Result {
	dim := int(f.Dimension)
	if dim < 1 {
		dim = 1
	}
	if f.Type == protocol.TypeASCII {
		return protocol.Scalar(protocol.ASCII(c.NextASCII(dim)))
	}
	// Dimension comes off the wire; never reserve more than the record holds.
	capacity := min(dim, c.Len())
	if size, ok := f.Type.Size(); ok {
		capacity = min(capacity, c.Len()/size)
	}
	vals := make([]protocol.Value, 0, capacity)
	for i := 0; i < dim && c.Err() == nil; i++ {
		vals = append(vals, c.Next(f.Type))
	}
	return protocol.ResultFor(vals, dim)
}

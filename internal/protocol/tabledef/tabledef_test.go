package tabledef

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/dataplex/internal/protocol"
	"github.com/danmuck/dataplex/internal/protocol/sig"
	"github.com/danmuck/dataplex/internal/testutil/testlog"
)

func encode(t *testing.T, values ...protocol.Value) []byte {
	t.Helper()
	b, err := protocol.EncodeValues(values...)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func field(t *testing.T, code uint8, name string, aliases []string, units string, dim uint32, subdims ...uint32) []byte {
	t.Helper()
	vals := []protocol.Value{protocol.Byte(code), protocol.ASCIIZ(name)}
	for _, a := range aliases {
		vals = append(vals, protocol.ASCIIZ(a))
	}
	vals = append(vals, protocol.ASCIIZ(""), protocol.ASCIIZ("Smp"), protocol.ASCIIZ(units), protocol.ASCIIZ(""),
		protocol.UInt4(1), protocol.UInt4(dim))
	for _, d := range subdims {
		vals = append(vals, protocol.UInt4(d))
	}
	vals = append(vals, protocol.UInt4(0))
	return encode(t, vals...)
}

func tableHeader(t *testing.T, name string, interval protocol.NSec) []byte {
	return encode(t, protocol.ASCIIZ(name), protocol.UInt4(1000), protocol.Byte(uint8(protocol.TypeNSec)),
		protocol.Time(protocol.NSec{}), protocol.Time(interval))
}

func sampleDefinitions(t *testing.T) ([]byte, []byte) {
	t.Helper()
	public := tableHeader(t, "Public", protocol.NSec{Sec: 5})
	public = append(public, field(t, 0x80|uint8(protocol.TypeIEEE4B), "AirTC", nil, "Deg C", 1)...)
	public = append(public, field(t, uint8(protocol.TypeIEEE4B), "Temp_Arr", []string{"T", "Temp"}, "Deg C", 3, 3)...)
	public = append(public, field(t, uint8(protocol.TypeASCII), "Label", nil, "", 8)...)
	public = append(public, 0)

	events := tableHeader(t, "Events", protocol.NSec{})
	events = append(events, field(t, uint8(protocol.TypeFP2), "Count", nil, "", 1)...)
	events = append(events, 0)

	raw := append([]byte{1}, public...)
	return append(raw, events...), public
}

func TestParseDefinitions(t *testing.T) {
	testlog.Start(t)
	raw, public := sampleDefinitions(t)
	defs, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if defs.FSLVersion != 1 || len(defs.Tables) != 2 {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
	tbl, ok := defs.Table("public")
	if !ok {
		t.Fatalf("missing Public table")
	}
	if tbl.Number != 1 || tbl.Size != 1000 || tbl.Interval.Sec != 5 || len(tbl.Fields) != 3 {
		t.Fatalf("unexpected table: %+v", tbl)
	}
	if want := sig.Signature(public, sig.Seed); tbl.Signature != want {
		t.Fatalf("signature got=%#04x want=%#04x", tbl.Signature, want)
	}
	air := tbl.Fields[0]
	if !air.ReadOnly || air.Type != protocol.TypeIEEE4B || air.Units != "Deg C" || air.Processing != "Smp" {
		t.Fatalf("unexpected field: %+v", air)
	}
	arr := tbl.Fields[1]
	if arr.ReadOnly || arr.Dimension != 3 || len(arr.Aliases) != 2 || len(arr.SubDims) != 1 || arr.SubDims[0] != 3 {
		t.Fatalf("unexpected array field: %+v", arr)
	}
	if n, ok := tbl.FieldNumber("Label"); !ok || n != 3 {
		t.Fatalf("field number got=%d ok=%v", n, ok)
	}
	ev, ok := defs.ByNumber(2)
	if !ok || ev.Name != "Events" || !ev.EventDriven() {
		t.Fatalf("unexpected events table: %+v", ev)
	}
}

func TestParseDefinitionsTruncated(t *testing.T) {
	testlog.Start(t)
	raw, _ := sampleDefinitions(t)
	if _, err := Parse(raw[:20]); !errors.Is(err, protocol.ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestParseCollectData(t *testing.T) {
	testlog.Start(t)
	raw, _ := sampleDefinitions(t)
	defs, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	rec := encode(t,
		protocol.UInt2(1), protocol.UInt4(10), protocol.UInt2(2), protocol.Time(protocol.NSec{Sec: 100}),
		protocol.IEEE4(1.5), protocol.IEEE4(1), protocol.IEEE4(2), protocol.IEEE4(3), protocol.ASCII("abc\x00\x00\x00\x00\x00"),
		protocol.IEEE4(2.5), protocol.IEEE4(4), protocol.IEEE4(5), protocol.IEEE4(6), protocol.ASCII("defghijk"),
		protocol.UInt2(2), protocol.UInt4(7), protocol.UInt2(1), protocol.Time(protocol.NSec{Sec: 200}), protocol.FP2(2.5),
		protocol.Byte(0),
	)
	got, err := ParseCollectData(rec, defs, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got.MoreRecords || len(got.Fragments) != 2 {
		t.Fatalf("unexpected result: %+v", got)
	}
	pub := got.Fragments[0]
	if pub.TableName != "Public" || len(pub.Records) != 2 {
		t.Fatalf("unexpected public fragment: %+v", pub)
	}
	second := pub.Records[1]
	if second.Number != 11 || !second.Time.Equal(protocol.Epoch.Add(105*time.Second)) {
		t.Fatalf("unexpected record header: %+v", second)
	}
	if v, ok := second.Fields[0].Value.Scalar(); !ok || v.Float != 2.5 {
		t.Fatalf("AirTC got=%+v", second.Fields[0])
	}
	if arr := second.Fields[1].Value; !arr.IsSequence() || arr.Len() != 3 || arr.Values()[2].Float != 6 {
		t.Fatalf("Temp_Arr got=%+v", arr)
	}
	if label, _ := pub.Records[0].Fields[2].Value.Scalar(); label.String != "abc" {
		t.Fatalf("label got=%q", label.String)
	}
	ev := got.Fragments[1]
	if len(ev.Records) != 1 || !ev.Records[0].Time.Equal(protocol.Epoch.Add(200*time.Second)) {
		t.Fatalf("unexpected event fragment: %+v", ev)
	}
	if v, _ := ev.Records[0].Fields[0].Value.Scalar(); v.Float != 2.5 {
		t.Fatalf("Count got=%+v", v)
	}
}

func TestParseCollectDataSelectedFieldsAndPartial(t *testing.T) {
	testlog.Start(t)
	raw, _ := sampleDefinitions(t)
	defs, _ := Parse(raw)

	rec := encode(t,
		protocol.UInt2(1), protocol.UInt4(3), protocol.UInt2(1), protocol.Time(protocol.NSec{Sec: 1}),
		protocol.IEEE4(9),
		protocol.UInt2(1), protocol.UInt4(4), protocol.UInt4(0x80000010), protocol.ASCII("xyz"),
		protocol.Byte(1),
	)
	got, err := ParseCollectData(rec, defs, []uint16{1})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !got.MoreRecords || len(got.Fragments) != 2 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if f := got.Fragments[0].Records[0].Fields; len(f) != 1 || f[0].Name != "AirTC" {
		t.Fatalf("unexpected selected fields: %+v", f)
	}
	part := got.Fragments[1]
	if !part.IsOffset || part.ByteOffset != 0x10 || string(part.Partial) != "xyz" {
		t.Fatalf("unexpected partial fragment: %+v", part)
	}

	if _, err := ParseCollectData(rec, defs, []uint16{9}); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	bad := encode(t, protocol.UInt2(5), protocol.UInt4(0), protocol.UInt2(0), protocol.Byte(0))
	if _, err := ParseCollectData(bad, defs, nil); !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
}

func TestParseCollectDataOversizedDimensionFailsShort(t *testing.T) {
	testlog.Start(t)
	tbl := tableHeader(t, "Burst", protocol.NSec{})
	tbl = append(tbl, field(t, uint8(protocol.TypeFP2), "Samples", nil, "", 0x10000000)...)
	tbl = append(tbl, 0)
	defs, err := Parse(append([]byte{1}, tbl...))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	rec := encode(t,
		protocol.UInt2(1), protocol.UInt4(0), protocol.UInt2(1), protocol.Time(protocol.NSec{Sec: 1}),
		protocol.FP2(1.5),
		protocol.Byte(0),
	)
	if _, err := ParseCollectData(rec, defs, nil); !errors.Is(err, protocol.ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

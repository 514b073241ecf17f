package sinks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

const defaultArrowBatch = 60

// ReadingSchema is the Arrow layout of readings: time, station, then one
// nullable float64 column per field.
func ReadingSchema(fields []string) *arrow.Schema {
	cols := []arrow.Field{
		{Name: "time", Type: arrow.FixedWidthTypes.Timestamp_ms},
		{Name: "station", Type: arrow.BinaryTypes.String},
	}
	for _, name := range fields {
		cols = append(cols, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
	}
	return arrow.NewSchema(cols, nil)
}

// ArrowSink buffers readings and writes them as record batches to an
// Arrow IPC file. The file footer is written on Close.
type ArrowSink struct {
	mu      sync.Mutex
	fields  []string
	batch   int
	pending int
	file    *os.File
	writer  *ipc.FileWriter
	builder *array.RecordBuilder
}

func NewArrowSink(path string, fields []string, batch int) (*ArrowSink, error) {
	if batch <= 0 {
		batch = defaultArrowBatch
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sinks: arrow dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sinks: arrow create: %w", err)
	}
	mem := memory.DefaultAllocator
	schema := ReadingSchema(fields)
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sinks: arrow writer: %w", err)
	}
	return &ArrowSink{
		fields:  append([]string(nil), fields...),
		batch:   batch,
		file:    f,
		writer:  w,
		builder: array.NewRecordBuilder(mem, schema),
	}, nil
}

func (s *ArrowSink) Name() string { return "arrow" }

func (s *ArrowSink) Write(_ context.Context, r Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return fmt.Errorf("sinks: arrow sink closed")
	}
	s.builder.Field(0).(*array.TimestampBuilder).Append(arrow.Timestamp(r.Time.UnixMilli()))
	s.builder.Field(1).(*array.StringBuilder).Append(r.Station)
	for i, name := range s.fields {
		b := s.builder.Field(i + 2).(*array.Float64Builder)
		if v, ok := r.Values[name]; ok {
			b.Append(v)
		} else {
			b.AppendNull()
		}
	}
	s.pending++
	if s.pending >= s.batch {
		return s.flush()
	}
	return nil
}

func (s *ArrowSink) flush() error {
	if s.pending == 0 {
		return nil
	}
	rec := s.builder.NewRecord()
	defer rec.Release()
	s.pending = 0
	if err := s.writer.Write(rec); err != nil {
		return fmt.Errorf("sinks: arrow write: %w", err)
	}
	return nil
}

func (s *ArrowSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return nil
	}
	err := s.flush()
	if cerr := s.writer.Close(); err == nil {
		err = cerr
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.builder.Release()
	s.writer = nil
	return err
}

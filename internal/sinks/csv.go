package sinks

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CSVTimeLayout replaces the {time} placeholder in CSV paths.
const CSVTimeLayout = "20060102.150405"

// CSVSink appends one row per reading, columns in field order. Missing
// values are left empty.
type CSVSink struct {
	mu     sync.Mutex
	path   string
	fields []string
	file   *os.File
	w      *csv.Writer
}

func NewCSVSink(pathTemplate string, fields []string, now time.Time) (*CSVSink, error) {
	path := strings.ReplaceAll(pathTemplate, "{time}", now.Format(CSVTimeLayout))
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sinks: csv dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sinks: csv create: %w", err)
	}
	s := &CSVSink{path: path, fields: append([]string(nil), fields...), file: f, w: csv.NewWriter(f)}
	if err := s.writeRow(append([]string{"time"}, fields...)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *CSVSink) Name() string { return "csv" }

// Path is the file being written.
func (s *CSVSink) Path() string { return s.path }

func (s *CSVSink) Write(_ context.Context, r Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := make([]string, 0, len(s.fields)+1)
	row = append(row, strconv.FormatInt(r.Time.Unix(), 10))
	for _, name := range s.fields {
		v, ok := r.Values[name]
		if !ok || math.IsNaN(v) {
			row = append(row, "")
			continue
		}
		row = append(row, strconv.FormatFloat(v, 'f', 3, 64))
	}
	return s.writeRow(row)
}

func (s *CSVSink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("sinks: csv write: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	s.w.Flush()
	err := s.file.Close()
	s.file = nil
	return err
}

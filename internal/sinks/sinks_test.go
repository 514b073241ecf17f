package sinks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/danmuck/dataplex/internal/config"
	"github.com/danmuck/dataplex/internal/testutil/testlog"
)

var fields = []string{"temperature", "humidity"}

func reading(sec int64, temp float64) Reading {
	return Reading{
		Time:    time.Unix(sec, 0).UTC(),
		Station: "weather-a",
		Values:  map[string]float64{"temperature": temp, "humidity": 40},
	}
}

type failingSink struct {
	writes int
	closed bool
}

func (f *failingSink) Name() string { return "failing" }
func (f *failingSink) Write(context.Context, Reading) error {
	f.writes++
	return errors.New("disk full")
}
func (f *failingSink) Close() error {
	f.closed = true
	return nil
}

func TestFanoutContinuesPastFailingSink(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	bad := &failingSink{}
	out := NewFanout(bad, NewLogSinkWith(zerolog.New(&buf)))
	err := out.Write(context.Background(), reading(1, 20))
	if err == nil || !strings.Contains(err.Error(), "sink failing: disk full") {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if !strings.Contains(buf.String(), `"temperature":20`) {
		t.Fatalf("log sink missed reading: %s", buf.String())
	}
	if err := out.Close(); err != nil || !bad.closed {
		t.Fatalf("close err=%v closed=%v", err, bad.closed)
	}
}

func TestCSVSinkRows(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	s, err := NewCSVSink(filepath.Join(dir, "logs", "data.{time}.csv"), fields, now)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if want := filepath.Join(dir, "logs", "data.20240501.123000.csv"); s.Path() != want {
		t.Fatalf("path got=%s want=%s", s.Path(), want)
	}
	ctx := context.Background()
	if err := s.Write(ctx, reading(100, 21.5)); err != nil {
		t.Fatalf("write: %v", err)
	}
	partial := Reading{Time: time.Unix(105, 0), Values: map[string]float64{"humidity": 41.25}}
	if err := s.Write(ctx, partial); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "time,temperature,humidity\n100,21.500,40.000\n105,,41.250\n"
	if string(data) != want {
		t.Fatalf("csv got=%q want=%q", data, want)
	}
}

func TestArrowSinkBatches(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "readings.arrow")
	s, err := NewArrowSink(path, fields, 2)
	if err != nil {
		t.Fatalf("arrow: %v", err)
	}
	ctx := context.Background()
	for i := range 3 {
		r := reading(int64(100+i), float64(20+i))
		if i == 2 {
			delete(r.Values, "humidity")
		}
		if err := s.Write(ctx, r); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	r, err := ipc.NewFileReader(f)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer r.Close()
	if r.NumRecords() != 2 || r.Schema().NumFields() != 4 {
		t.Fatalf("unexpected file: records=%d fields=%d", r.NumRecords(), r.Schema().NumFields())
	}
	last, err := r.Record(1)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if last.NumRows() != 1 {
		t.Fatalf("expected 1 row in last batch, got %d", last.NumRows())
	}
	temp := last.Column(2).(*array.Float64)
	hum := last.Column(3).(*array.Float64)
	if temp.Value(0) != 22 || !hum.IsNull(0) {
		t.Fatalf("unexpected last row temp=%v hum_null=%v", temp.Value(0), hum.IsNull(0))
	}
}

func TestSQLiteSinkLatest(t *testing.T) {
	testlog.Start(t)
	s, err := NewSQLiteSink(filepath.Join(t.TempDir(), "db", "readings.db"))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	if _, ok, err := s.Latest(ctx, "weather-a"); err != nil || ok {
		t.Fatalf("empty latest ok=%v err=%v", ok, err)
	}
	for i := range 3 {
		if err := s.Write(ctx, reading(int64(100+i), float64(20+i))); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got, ok, err := s.Latest(ctx, "weather-a")
	if err != nil || !ok {
		t.Fatalf("latest ok=%v err=%v", ok, err)
	}
	if got.Time.Unix() != 102 || got.Values["temperature"] != 22 || got.Values["humidity"] != 40 {
		t.Fatalf("unexpected latest: %+v", got)
	}
}

func TestEncodeReadingJSONAndCBOR(t *testing.T) {
	testlog.Start(t)
	in := reading(1700000000, 18.5)
	for _, enc := range []string{"json", "cbor"} {
		data, err := EncodeReading(in, enc)
		if err != nil {
			t.Fatalf("%s encode: %v", enc, err)
		}
		out, err := DecodeReading(data, enc)
		if err != nil {
			t.Fatalf("%s decode: %v", enc, err)
		}
		if !out.Time.Equal(in.Time) || out.Station != in.Station || out.Values["temperature"] != 18.5 {
			t.Fatalf("%s round trip got=%+v", enc, out)
		}
	}
	if _, err := EncodeReading(in, "xml"); err == nil {
		t.Fatalf("expected unknown encoding error")
	}
}

func TestZMQSinkPublishes(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := NewZMQSink(ctx, "tcp://127.0.0.1:0", "weather-a", "cbor")
	if err != nil {
		t.Fatalf("zmq: %v", err)
	}
	defer s.Close()

	sub := zmq4.NewSub(ctx)
	defer sub.Close()
	if err := sub.Dial("tcp://" + s.Addr()); err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, "weather-a"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				_ = s.Write(ctx, reading(7, 19))
			}
		}
	}()

	msg, err := sub.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if len(msg.Frames) != 2 || string(msg.Frames[0]) != "weather-a" {
		t.Fatalf("unexpected frames: %d", len(msg.Frames))
	}
	got, err := DecodeReading(msg.Frames[1], "cbor")
	if err != nil || got.Values["temperature"] != 19 {
		t.Fatalf("decoded got=%+v err=%v", got, err)
	}
}

func TestOpenBuildsConfiguredSinks(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	cfg := config.StationConfig{
		Station: "weather-a",
		Fields:  []config.FieldConfig{{Field: "AirTC"}},
		Sinks: []config.SinkConfig{
			{Kind: "log"},
			{Kind: "csv", Path: filepath.Join(dir, "data.csv")},
			{Kind: "sqlite", Path: filepath.Join(dir, "readings.db")},
		},
	}.WithDefaults()
	out, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := out.Write(context.Background(), reading(1, 20)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cfg.Sinks = append(cfg.Sinks, config.SinkConfig{Kind: "kafka"})
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatalf("expected unknown sink error")
	}
}

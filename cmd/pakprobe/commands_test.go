package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/dataplex/internal/datalogger"
	"github.com/danmuck/dataplex/internal/protocol"
	"github.com/danmuck/dataplex/internal/testutil/serialtest"
	"github.com/danmuck/dataplex/internal/testutil/testlog"
)

func openProbe(t *testing.T) (*datalogger.Client, *serialtest.Station) {
	t.Helper()
	station := serialtest.NewStation(0x001)
	cfg := datalogger.DefaultConfig()
	cfg.Session.ResponseTimeout = 150 * time.Millisecond
	c, err := datalogger.Open(context.Background(), serialtest.NewPeer(station.Respond), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, station
}

func run(t *testing.T, c *datalogger.Client, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := runCommand(context.Background(), c, args, &out)
	return out.String(), err
}

func TestPingAndClock(t *testing.T) {
	testlog.Start(t)
	c, station := openProbe(t)
	station.SetClock(protocol.NSec{Sec: 100})

	out, err := run(t, c, "ping")
	if err != nil || !strings.HasPrefix(out, "node 0x001: router=0 hop_metric=2 verify=1800s") {
		t.Fatalf("ping out=%q err=%v", out, err)
	}
	out, err = run(t, c, "clock")
	if err != nil || out != "1990-01-01T00:01:40Z\n" {
		t.Fatalf("clock out=%q err=%v", out, err)
	}
}

func TestGetFormatsScalarsAndSequences(t *testing.T) {
	testlog.Start(t)
	c, station := openProbe(t)
	station.SetValue("Public", "AirTC", protocol.IEEE4(21.5))
	station.SetValue("Public", "Temp", protocol.IEEE4(1), protocol.IEEE4(2), protocol.IEEE4(3))
	station.SetValue("Public", "Label", protocol.ASCII("site"))

	cases := []struct {
		args []string
		want string
	}{
		{[]string{"get", "Public", "IEEE4B", "AirTC"}, "Public.AirTC = 21.5\n"},
		{[]string{"get", "Public", "IEEE4B", "Temp", "3"}, "Public.Temp = [1, 2, 3]\n"},
		{[]string{"get", "Public", "ASCII", "Label", "6"}, "Public.Label = \"site\"\n"},
	}
	for _, tc := range cases {
		out, err := run(t, c, tc.args...)
		if err != nil || out != tc.want {
			t.Fatalf("%v: out=%q err=%v", tc.args, out, err)
		}
	}

	var rc *datalogger.ResponseCodeError
	if _, err := run(t, c, "get", "Public", "IEEE4B", "Missing"); !errors.As(err, &rc) {
		t.Fatalf("expected response code error, got %v", err)
	}
	if _, err := run(t, c, "get", "Public", "Float128", "AirTC"); !errors.Is(err, protocol.ErrUnknownType) {
		t.Fatalf("expected unknown type, got %v", err)
	}
}

func TestUploadDownloadAndUsageErrors(t *testing.T) {
	testlog.Start(t)
	c, station := openProbe(t)
	station.SetFile("CPU:prog.cr1", []byte("BeginProg\nEndProg\n"))

	out, err := run(t, c, "upload", "CPU:prog.cr1")
	if err != nil || out != "BeginProg\nEndProg\n" {
		t.Fatalf("upload out=%q err=%v", out, err)
	}
	local := filepath.Join(t.TempDir(), "new.cr1")
	if err := os.WriteFile(local, []byte("BeginProg\n"), 0o644); err != nil {
		t.Fatalf("write local: %v", err)
	}
	if out, err := run(t, c, "download", local, "CPU:new.cr1"); err != nil || out != "CPU:new.cr1: 10 bytes written\n" {
		t.Fatalf("download out=%q err=%v", out, err)
	}
	if got, ok := station.File("CPU:new.cr1"); !ok || string(got) != "BeginProg\n" {
		t.Fatalf("station file got=%q ok=%v", got, ok)
	}
	for _, args := range [][]string{{"get", "Public"}, {"collect"}, {"clock", "later"}, {"download", "x"}, {"reboot"}} {
		if _, err := run(t, c, args...); !errors.Is(err, errUsage) {
			t.Fatalf("%v: expected usage error, got %v", args, err)
		}
	}
}

func TestFormatValue(t *testing.T) {
	testlog.Start(t)
	if got := formatValue(protocol.Raw(protocol.TypeFP3, []byte{1, 2, 3})); got != "010203" {
		t.Fatalf("raw got=%q", got)
	}
	if got := formatValue(protocol.Time(protocol.NSec{Sec: 1, Nsec: 500})); got != "1990-01-01T00:00:01.0000005Z" {
		t.Fatalf("nsec got=%q", got)
	}
	if got := formatValue(protocol.Int2(-7)); got != "-7" {
		t.Fatalf("int got=%q", got)
	}
}

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/dataplex/internal/datalogger"
	"github.com/danmuck/dataplex/internal/protocol"
	"github.com/danmuck/dataplex/internal/protocol/catalog"
	"github.com/danmuck/dataplex/internal/serialport"
)

var errUsage = errors.New("bad arguments")

func runCommand(ctx context.Context, c *datalogger.Client, args []string, w io.Writer) error {
	switch args[0] {
	case "ping":
		start := time.Now()
		hello, err := c.Ping(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "node 0x%03x: router=%d hop_metric=%d verify=%ds rtt=%s\n",
			c.Addr().Dst, hello.IsRouter, hello.HopMetric, hello.VerifyIntv, time.Since(start).Round(time.Millisecond))
	case "clock":
		var adjust time.Duration
		if len(args) > 1 {
			d, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("%w: clock adjust: %v", errUsage, err)
			}
			adjust = d
		}
		t, err := c.Clock(ctx, adjust)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, t.Format(time.RFC3339Nano))
	case "get":
		if len(args) < 4 {
			return fmt.Errorf("%w: get <table> <type> <field> [swath]", errUsage)
		}
		ft, ok := protocol.LookupType(args[2])
		if !ok {
			return fmt.Errorf("%w: %q", protocol.ErrUnknownType, args[2])
		}
		swath := 1
		if len(args) > 4 {
			n, err := strconv.Atoi(args[4])
			if err != nil {
				return fmt.Errorf("%w: swath: %v", errUsage, err)
			}
			swath = n
		}
		res, err := c.GetValue(ctx, args[1], ft, args[3], swath)
		if err != nil {
			return err
		}
		vals := res.Values()
		out := make([]string, len(vals))
		for i, v := range vals {
			out[i] = formatValue(v)
		}
		if res.IsSequence() {
			fmt.Fprintf(w, "%s.%s = [%s]\n", args[1], args[3], strings.Join(out, ", "))
		} else {
			fmt.Fprintf(w, "%s.%s = %s\n", args[1], args[3], out[0])
		}
	case "progstats":
		ps, err := c.ProgStats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "os=%s serial=%s program=%s sig=0x%04x compiled=%s result=%q\n",
			ps.OSVersion, ps.SerialNbr, ps.ProgName, ps.ProgSig,
			ps.CompileTime.Time().Format(time.RFC3339), ps.CompileResult)
	case "tables":
		defs, err := c.TableDefinitions(ctx)
		if err != nil {
			return err
		}
		for _, t := range defs.Tables {
			interval := "event"
			if !t.EventDriven() {
				interval = t.Interval.Duration().String()
			}
			fmt.Fprintf(w, "%d %s size=%d interval=%s sig=0x%04x\n", t.Number, t.Name, t.Size, interval, t.Signature)
			for _, f := range t.Fields {
				fmt.Fprintf(w, "  %s %s[%d] %s\n", f.Name, f.Type, f.Dimension, f.Units)
			}
		}
	case "collect":
		if len(args) < 2 {
			return fmt.Errorf("%w: collect <table> [field...]", errUsage)
		}
		return collect(ctx, c, args[1], args[2:], w)
	case "upload":
		if len(args) < 2 {
			return fmt.Errorf("%w: upload <file>", errUsage)
		}
		data, err := c.UploadFile(ctx, args[1])
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "download":
		if len(args) < 3 {
			return fmt.Errorf("%w: download <local> <file>", errUsage)
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		if err := c.DownloadFile(ctx, args[2], data); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %d bytes written\n", args[2], len(data))
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return nil
}

func collect(ctx context.Context, c *datalogger.Client, table string, fields []string, w io.Writer) error {
	defs, err := c.TableDefinitions(ctx)
	if err != nil {
		return err
	}
	t, ok := defs.Table(table)
	if !ok {
		return fmt.Errorf("no table %q", table)
	}
	nbrs := make([]uint16, 0, len(fields))
	for _, name := range fields {
		n, ok := t.FieldNumber(name)
		if !ok {
			return fmt.Errorf("no field %q in %s", name, t.Name)
		}
		nbrs = append(nbrs, n)
	}
	res, err := c.CollectData(ctx, defs, catalog.CollectRequest{
		Mode:     catalog.CollectMostRecent,
		TableNbr: t.Number,
		P1:       1,
		Fields:   nbrs,
	})
	if err != nil {
		return err
	}
	for _, frag := range res.Fragments {
		for _, rec := range frag.Records {
			parts := make([]string, 0, len(rec.Fields))
			for _, fv := range rec.Fields {
				vals := fv.Value.Values()
				text := make([]string, len(vals))
				for i, v := range vals {
					text[i] = formatValue(v)
				}
				parts = append(parts, fv.Name+"="+strings.Join(text, ","))
			}
			fmt.Fprintf(w, "%s #%d %s %s\n", frag.TableName, rec.Number, rec.Time.Format(time.RFC3339), strings.Join(parts, " "))
		}
	}
	return nil
}

func formatValue(v protocol.Value) string {
	if f, ok := v.Float64(); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	switch v.Type {
	case protocol.TypeASCII, protocol.TypeASCIIZ:
		return strconv.Quote(v.String)
	case protocol.TypeNSec, protocol.TypeSecNano:
		return v.Time.Time().Format(time.RFC3339Nano)
	default:
		return hex.EncodeToString(v.Bytes)
	}
}

func listPorts(w io.Writer) error {
	ports, err := serialport.Ports()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Fprintln(w, p)
	}
	return nil
}

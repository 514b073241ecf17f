package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/dataplex/internal/datalogger"
	"github.com/danmuck/dataplex/internal/logging"
	"github.com/danmuck/dataplex/internal/serialport"
)

const usage = `usage: pakprobe [flags] <command> [args]

commands:
  ports                              list serial ports
  ping                               hello round trip
  clock [adjust]                     read (and optionally shift) the logger clock
  get <table> <type> <field> [swath] read a value
  progstats                          program status
  tables                             list table definitions
  collect <table> [field...]         most recent record of a table
  upload <file>                      download a file from the logger to stdout
  download <local> <file>            write a local file to the logger

flags:
`

func main() {
	device := flag.String("device", "/dev/ttyUSB0", "serial device")
	baud := flag.Int("baud", 9600, "baud rate")
	parity := flag.String("parity", "none", "parity: none|odd|even|mark|space")
	loggerNode := flag.Uint("logger", 0x001, "logger PakBus node id")
	localNode := flag.Uint("local", 0x802, "local PakBus node id")
	security := flag.Uint("security", 0, "security code")
	ring := flag.Bool("ring", false, "send a link ring before the first hello")
	timeout := flag.Duration("timeout", time.Second, "response timeout")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	logging.ConfigureRuntime()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if args[0] == "ports" {
		if err := listPorts(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "pakprobe: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serialCfg := serialport.DefaultConfig()
	serialCfg.Device = *device
	serialCfg.Baud = *baud
	serialCfg.Parity = *parity

	cfg := datalogger.DefaultConfig()
	cfg.LoggerNode = uint16(*loggerNode)
	cfg.LocalNode = uint16(*localNode)
	cfg.SecurityCode = uint16(*security)
	cfg.RingOnOpen = *ring
	cfg.Session.ResponseTimeout = *timeout

	if err := probe(ctx, serialCfg, cfg, args); err != nil {
		fmt.Fprintf(os.Stderr, "pakprobe: %v\n", err)
		os.Exit(1)
	}
}

func probe(ctx context.Context, serialCfg serialport.Config, cfg datalogger.Config, args []string) error {
	if cfg.LoggerNode > 0xFFF || cfg.LocalNode > 0xFFF {
		return fmt.Errorf("node ids must fit 12 bits")
	}
	port, err := serialport.Open(serialCfg)
	if err != nil {
		return err
	}
	client, err := datalogger.Open(ctx, port, cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	return runCommand(ctx, client, args, os.Stdout)
}

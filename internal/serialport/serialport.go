// Package serialport opens the logger's serial line with the read timeout
// the transaction engine expects.
package serialport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

var ErrDeviceRequired = errors.New("serialport: device required")

type Config struct {
	Device   string
	Baud     int
	DataBits int
	// Parity is one of none, odd, even, mark or space.
	Parity   string
	StopBits int
	// ReadTimeout bounds each Read; an elapsed timeout reads (0, nil).
	ReadTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Baud:        9600,
		DataBits:    8,
		Parity:      "none",
		StopBits:    1,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Open opens cfg.Device and applies the read timeout.
func Open(cfg Config) (serial.Port, error) {
	if strings.TrimSpace(cfg.Device) == "" {
		return nil, ErrDeviceRequired
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", cfg.Device, err)
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serialport: read timeout %s: %w", cfg.Device, err)
	}
	log.Debug().
		Str("device", cfg.Device).
		Int("baud", mode.BaudRate).
		Dur("read_timeout", timeout).
		Msg("serialport.Open")
	return port, nil
}

// Mode converts cfg to the driver's mode. Zero fields take defaults.
func (cfg Config) Mode() (*serial.Mode, error) {
	def := DefaultConfig()
	mode := &serial.Mode{BaudRate: cfg.Baud, DataBits: cfg.DataBits}
	if mode.BaudRate <= 0 {
		mode.BaudRate = def.Baud
	}
	if mode.DataBits == 0 {
		mode.DataBits = def.DataBits
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("serialport: invalid data bits %d", mode.DataBits)
	}

	parity, err := ParseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	mode.Parity = parity

	switch cfg.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("serialport: invalid stop bits %d", cfg.StopBits)
	}
	return mode, nil
}

func ParseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	case "mark", "m":
		return serial.MarkParity, nil
	case "space", "s":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("serialport: unknown parity %q", s)
	}
}

// Ports lists the serial devices present on this host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Sink kinds.
const (
	SinkLog    = "log"
	SinkCSV    = "csv"
	SinkZMQ    = "zmq"
	SinkArrow  = "arrow"
	SinkSQLite = "sqlite"
)

type StationConfig struct {
	Station string        `toml:"station"`
	Fields  []FieldConfig `toml:"fields"`
	Sinks   []SinkConfig  `toml:"sinks"`
}

// FieldConfig is one logger field polled every cycle and relayed under
// Alias.
type FieldConfig struct {
	Table string `toml:"table"`
	Field string `toml:"field"`
	Type  string `toml:"type"`
	Alias string `toml:"alias"`
	Swath int    `toml:"swath"`
}

type SinkConfig struct {
	Kind      string `toml:"kind"`
	Path      string `toml:"path"`
	Endpoint  string `toml:"endpoint"`
	Encoding  string `toml:"encoding"`
	Topic     string `toml:"topic"`
	BatchSize int    `toml:"batch_size"`
}

// FieldAliases maps weather station field names to relay names.
var FieldAliases = map[string]string{
	"Batt_Volt": "battery",
	"AirTC":     "temperature",
	"RH":        "humidity",
	"WS_ms":     "wind_speed",
	"WindDir":   "wind_dir",
	"Rain_mm":   "rain",
	"Solar_W":   "sun",
	"TdC":       "dewpoint",
	"WindRun":   "windrun",
	"Solar_kJ":  "sunkj",
}

// DefaultFields is the weather station field set, in relay order.
func DefaultFields() []FieldConfig {
	names := []string{"AirTC", "RH", "WS_ms", "WindDir", "Rain_mm", "Solar_W", "Batt_Volt"}
	out := make([]FieldConfig, 0, len(names))
	for _, name := range names {
		out = append(out, FieldConfig{
			Table: "Public",
			Field: name,
			Type:  "IEEE4B",
			Alias: FieldAliases[name],
			Swath: 1,
		})
	}
	return out
}

func DefaultStationConfig() StationConfig {
	return StationConfig{
		Station: "dataplex",
		Fields:  DefaultFields(),
		Sinks:   []SinkConfig{{Kind: SinkLog}},
	}
}

func LoadStationConfig(path string) (StationConfig, error) {
	var cfg StationConfig
	if err := loadToml(path, &cfg); err != nil {
		return StationConfig{}, err
	}
	cfg = cfg.WithDefaults()
	if err := ValidateStationConfig(cfg); err != nil {
		return StationConfig{}, err
	}
	return cfg, nil
}

// WithDefaults fills unset station, field and sink settings.
func (c StationConfig) WithDefaults() StationConfig {
	def := DefaultStationConfig()
	if strings.TrimSpace(c.Station) == "" {
		c.Station = def.Station
	}
	if len(c.Fields) == 0 {
		c.Fields = def.Fields
	}
	fields := make([]FieldConfig, len(c.Fields))
	for i, f := range c.Fields {
		if strings.TrimSpace(f.Table) == "" {
			f.Table = "Public"
		}
		if strings.TrimSpace(f.Type) == "" {
			f.Type = "IEEE4B"
		}
		if f.Swath == 0 {
			f.Swath = 1
		}
		if strings.TrimSpace(f.Alias) == "" {
			if alias, ok := FieldAliases[f.Field]; ok {
				f.Alias = alias
			} else {
				f.Alias = f.Field
			}
		}
		fields[i] = f
	}
	c.Fields = fields
	if len(c.Sinks) == 0 {
		c.Sinks = def.Sinks
	}
	sinks := make([]SinkConfig, len(c.Sinks))
	for i, s := range c.Sinks {
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.Kind == SinkZMQ {
			if s.Encoding == "" {
				s.Encoding = "json"
			}
			if s.Topic == "" {
				s.Topic = c.Station
			}
		}
		sinks[i] = s
	}
	c.Sinks = sinks
	return c
}

// Aliases returns the relay names in field order.
func (c StationConfig) Aliases() []string {
	out := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		out = append(out, f.Alias)
	}
	return out
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateStationConfig(cfg StationConfig) error {
	if strings.TrimSpace(cfg.Station) == "" {
		return fmt.Errorf("station config missing station")
	}
	if len(cfg.Fields) == 0 {
		return fmt.Errorf("station config has no fields")
	}
	seen := make(map[string]bool, len(cfg.Fields))
	for i, f := range cfg.Fields {
		if err := ValidateFieldEntry(f); err != nil {
			return fmt.Errorf("field[%d] invalid: %w", i, err)
		}
		if seen[f.Alias] {
			return fmt.Errorf("field[%d] invalid: duplicate alias %q", i, f.Alias)
		}
		seen[f.Alias] = true
	}
	for i, s := range cfg.Sinks {
		if err := ValidateSinkEntry(s); err != nil {
			return fmt.Errorf("sink[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateFieldEntry(f FieldConfig) error {
	if strings.TrimSpace(f.Table) == "" {
		return fmt.Errorf("table is required")
	}
	if strings.TrimSpace(f.Field) == "" {
		return fmt.Errorf("field is required")
	}
	if strings.TrimSpace(f.Alias) == "" {
		return fmt.Errorf("alias is required")
	}
	if _, err := f.FieldType(); err != nil {
		return err
	}
	if f.Swath < 1 || f.Swath > 0xFFFF {
		return fmt.Errorf("swath out of range: %d", f.Swath)
	}
	return nil
}

func ValidateSinkEntry(s SinkConfig) error {
	switch s.Kind {
	case SinkLog:
		return nil
	case SinkCSV, SinkArrow, SinkSQLite:
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("%s sink requires path", s.Kind)
		}
		if s.BatchSize < 0 {
			return fmt.Errorf("%s sink batch_size must not be negative", s.Kind)
		}
		return nil
	case SinkZMQ:
		if strings.TrimSpace(s.Endpoint) == "" {
			return fmt.Errorf("zmq sink requires endpoint")
		}
		if s.Encoding != "json" && s.Encoding != "cbor" {
			return fmt.Errorf("zmq sink encoding must be json or cbor, got %q", s.Encoding)
		}
		return nil
	default:
		return fmt.Errorf("unknown sink kind %q", s.Kind)
	}
}

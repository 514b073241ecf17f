package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "station":
		return stationTemplate, nil
	case "dataplexd":
		return daemonTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const stationTemplate = `station = "weather-a"

[[fields]]
table = "Public"
field = "AirTC"
type = "IEEE4B"
alias = "temperature"

[[fields]]
table = "Public"
field = "RH"
alias = "humidity"

[[fields]]
table = "Public"
field = "WS_ms"
alias = "wind_speed"

[[fields]]
table = "Public"
field = "WindDir"
alias = "wind_dir"

[[fields]]
table = "Public"
field = "Rain_mm"
alias = "rain"

[[fields]]
table = "Public"
field = "Solar_W"
alias = "sun"

[[fields]]
table = "Public"
field = "Batt_Volt"
alias = "battery"

[[sinks]]
kind = "log"

[[sinks]]
kind = "csv"
path = "logs/data.{time}.csv"

[[sinks]]
kind = "zmq"
endpoint = "tcp://*:5556"
encoding = "json"

[[sinks]]
kind = "sqlite"
path = "local/readings.db"
`

const daemonTemplate = `device = "/dev/ttyUSB0"
baud = 9600
parity = "none"
read_timeout = "100ms"
logger_node = 1
local_node = 2050
security_code = 0
ring_on_open = false
response_timeout = "1s"
poll_interval = "5s"
reconnect_initial = "1s"
reconnect_max = "1m"
status_addr = "127.0.0.1:9110"
cors_origins = ["http://localhost:3000"]
station_config = "station.toml"
`

// DaemonKeys lists every key the dataplexd config accepts.
var DaemonKeys = []string{
	"device", "baud", "parity", "stop_bits", "read_timeout",
	"logger_node", "local_node", "security_code", "ring_on_open",
	"response_timeout", "poll_interval", "reconnect_initial", "reconnect_max",
	"status_addr", "cors_origins", "station_config",
}

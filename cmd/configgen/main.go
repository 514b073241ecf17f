package main

import (
	"flag"
	"fmt"
	"log"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/dataplex/internal/config"
)

func main() {
	kind := flag.String("kind", "station", "config kind: station|dataplexd")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	path, err := defaultPath(*kind)
	if err != nil {
		log.Fatal(err)
	}

	if *validate {
		if *input != "" {
			path = *input
		}
		switch *kind {
		case "station":
			cfg, err := config.LoadStationConfig(path)
			if err != nil {
				log.Fatal(err)
			}
			log.Printf("station %q: %d fields, %d sinks", cfg.Station, len(cfg.Fields), len(cfg.Sinks))
		case "dataplexd":
			if err := validateDaemon(path); err != nil {
				log.Fatal(err)
			}
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	if *output != "" {
		path = *output
	}
	if err := config.WriteTemplate(path, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, path)
}

func defaultPath(kind string) (string, error) {
	switch kind {
	case "station":
		return "cmd/dataplexd/station.toml", nil
	case "dataplexd":
		return "cmd/dataplexd/config.toml", nil
	default:
		return "", fmt.Errorf("unknown kind: %s", kind)
	}
}

func validateDaemon(path string) error {
	var raw map[string]any
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, key := range meta.Keys() {
		if !slices.Contains(config.DaemonKeys, key.String()) {
			return fmt.Errorf("%s: unknown key %q", path, key.String())
		}
	}
	return nil
}

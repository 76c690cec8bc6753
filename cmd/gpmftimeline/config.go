package main

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the optional file read via --config. Its fields are thin on
// purpose: anything expressible as a single flag stays a flag, this file
// only carries the things with more than a couple of knobs.
type Config struct {
	// DeviceNames maps a device ID, keyed by its decimal string, to a
	// replacement device name (GPMF device IDs have no fixed registry, so
	// operators commonly want to relabel them for a shoot). gpmftimeline
	// logs each entry at debug level; it does not apply them to the
	// exported device names.
	DeviceNames map[string]string `yaml:"deviceNames"`
	// DefaultMode is the stabilization mode used when --mode is not
	// passed on the command line: one of "off", "antishake", "worldlock",
	// "horizonlevel", "allon".
	DefaultMode string `yaml:"defaultMode"`
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

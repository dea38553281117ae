// Package config reads the YAML configuration of the osdplacement tool
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/jrife/osdplacement/command"
	"github.com/jrife/osdplacement/command/xtfsutil"
	"github.com/jrife/osdplacement/manager"
	"github.com/jrife/osdplacement/placement"
	"github.com/jrife/osdplacement/placement/osd"
	"github.com/jrife/osdplacement/realizer"
	"github.com/jrife/osdplacement/storage/kv"
	"github.com/jrife/osdplacement/storage/kv/plugins/bbolt"
	"gopkg.in/yaml.v3"
)

// ErrInvalid indicates that a configuration cannot be used
var ErrInvalid = errors.New("invalid configuration")

// OSD describes one object storage device. A zero capacity means
// unbounded and a zero bandwidth means the default bandwidth.
type OSD struct {
	Capacity  float64 `yaml:"capacity"`
	Bandwidth float64 `yaml:"bandwidth"`
}

// Config is the configuration of one managed folder
type Config struct {
	// Volume is the name of the volume. Folder ids start with it.
	Volume string `yaml:"volume"`
	// MountPoint is where the volume is mounted
	MountPoint string `yaml:"mount_point"`
	// ManagedFolder is the directory whose depth-2 subdirectories
	// are placed. It defaults to the mount point.
	ManagedFolder string `yaml:"managed_folder"`
	// StorePath is the bbolt file holding the distribution snapshot
	StorePath string `yaml:"store_path"`
	// Name is the snapshot name inside the store
	Name               string         `yaml:"name"`
	OSDs               map[string]OSD `yaml:"osds"`
	AssignmentMode     string         `yaml:"assignment_mode"`
	RebalanceAlgorithm string         `yaml:"rebalance_algorithm"`
	Strategy           string         `yaml:"strategy"`
	// Seed seeds the random choices of the placement engine and the
	// realizer. Zero picks a seed from the clock.
	Seed           int64         `yaml:"seed"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	Xtfsutil       string        `yaml:"xtfsutil"`
	// SelectionPolicy pushes assignments to the prefix based OSD
	// selection policy of the volume
	SelectionPolicy bool            `yaml:"selection_policy"`
	Realizer        realizer.Config `yaml:"realizer"`
}

// Default returns a configuration with every optional field set
func Default() Config {
	return Config{
		Name:           manager.DefaultName,
		CommandTimeout: command.DefaultTimeout,
		Xtfsutil:       xtfsutil.DefaultBinary,
		Realizer:       realizer.DefaultConfig(),
	}
}

// Load reads and validates the configuration file at path
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)

	if err != nil {
		return Config{}, fmt.Errorf("could not read config file: %w", err)
	}

	config, err := Parse(data)

	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	return config, nil
}

// Parse decodes and validates a configuration. Fields missing from
// data keep their defaults. Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	config := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("could not decode config: %s: %w", err, ErrInvalid)
	}

	if config.ManagedFolder == "" {
		config.ManagedFolder = config.MountPoint
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks that the configuration is complete and that every
// name in it is known
func (config Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"volume", config.Volume},
		{"mount_point", config.MountPoint},
		{"store_path", config.StorePath},
		{"name", config.Name},
		{"xtfsutil", config.Xtfsutil},
	}

	for _, field := range required {
		if field.value == "" {
			return fmt.Errorf("%s is required: %w", field.name, ErrInvalid)
		}
	}

	if len(config.OSDs) == 0 {
		return fmt.Errorf("at least one osd is required: %w", ErrInvalid)
	}

	for uuid, device := range config.OSDs {
		if device.Capacity < 0 || device.Bandwidth < 0 {
			return fmt.Errorf("osd %s has a negative capacity or bandwidth: %w", uuid, ErrInvalid)
		}
	}

	if config.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive: %w", ErrInvalid)
	}

	if _, err := config.Mode(); err != nil {
		return fmt.Errorf("%s: %w", err, ErrInvalid)
	}

	if _, err := config.Algorithm(); err != nil {
		return fmt.Errorf("%s: %w", err, ErrInvalid)
	}

	if _, err := config.RealizeStrategy(); err != nil {
		return fmt.Errorf("%s: %w", err, ErrInvalid)
	}

	if err := config.Realizer.Validate(); err != nil {
		return fmt.Errorf("realizer: %s: %w", err, ErrInvalid)
	}

	return nil
}

// UUIDs returns the configured OSD uuids in lexical order
func (config Config) UUIDs() []string {
	uuids := make([]string, 0, len(config.OSDs))

	for uuid := range config.OSDs {
		uuids = append(uuids, uuid)
	}

	sort.Strings(uuids)

	return uuids
}

// Capacities returns the capacity of every OSD
func (config Config) Capacities() map[string]float64 {
	capacities := make(map[string]float64, len(config.OSDs))

	for uuid, device := range config.OSDs {
		capacities[uuid] = device.Capacity

		if device.Capacity == 0 {
			capacities[uuid] = osd.Unbounded
		}
	}

	return capacities
}

// Bandwidths returns the bandwidth of every OSD
func (config Config) Bandwidths() map[string]float64 {
	bandwidths := make(map[string]float64, len(config.OSDs))

	for uuid, device := range config.OSDs {
		bandwidths[uuid] = device.Bandwidth

		if device.Bandwidth == 0 {
			bandwidths[uuid] = osd.DefaultBandwidth
		}
	}

	return bandwidths
}

// Mode returns the assignment mode for new folders
func (config Config) Mode() (placement.AssignmentMode, error) {
	return placement.ParseAssignmentMode(config.AssignmentMode)
}

// Algorithm returns the rebalance algorithm
func (config Config) Algorithm() (placement.Algorithm, error) {
	return placement.ParseAlgorithm(config.RebalanceAlgorithm)
}

// RealizeStrategy returns the batching strategy of the realizer
func (config Config) RealizeStrategy() (realizer.Strategy, error) {
	return realizer.ParseStrategy(config.Strategy)
}

// StoreOptions returns the options of the bbolt root store
func (config Config) StoreOptions() kv.PluginOptions {
	return kv.PluginOptions{"path": config.StorePath}
}

// StoreDriver is the kv plugin holding snapshots
const StoreDriver = bbolt.DriverName

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Load builds Options from defaults, an optional YAML file, an optional
// launch-options file and the environment. Empty paths are skipped. A
// launch-options path that does not exist is not an error.
func Load(yamlPath, launchPath string) (Options, error) {
	opts := DefaultOptions()

	if yamlPath != "" {
		if err := LoadYAML(yamlPath, &opts); err != nil {
			return opts, err
		}
	}
	if launchPath != "" {
		if err := LoadLaunchOptions(launchPath, &opts); err != nil {
			return opts, err
		}
	}
	ApplyEnv(&opts)

	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("invalid options: %w", err)
	}
	return opts, nil
}

// LoadYAML overlays the YAML file at path onto opts. Fields absent from the
// file keep their current values.
func LoadYAML(path string, opts *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(opts); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadLaunchOptions overlays a launch-options file onto opts. Lines starting
// with '#' are comments; the remaining lines are joined and parsed as flags.
func LoadLaunchOptions(path string, opts *Options) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read launch options %s: %w", path, err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return ParseLaunchOptions(strings.Join(lines, " "), opts)
}

// ParseLaunchOptions parses a command-line style string such as
// `-s 10.0.0.5 -f 50 --topology lan` onto opts.
func ParseLaunchOptions(line string, opts *Options) error {
	args, err := shellwords.Parse(line)
	if err != nil {
		return fmt.Errorf("split launch options: %w", err)
	}

	network := string(opts.ClientNetwork)
	topology := string(opts.Topology)

	fs := pflag.NewFlagSet("launch-options", pflag.ContinueOnError)
	fs.StringVarP(&opts.ServerAddress, "server", "s", opts.ServerAddress, "render server address")
	fs.Uint32VarP(&opts.MaxVideoBitrateKbps, "max-bitrate", "b", opts.MaxVideoBitrateKbps, "max video bitrate (kbps)")
	fs.IntVarP(&opts.Foveation, "foveation", "f", opts.Foveation, "foveation percentage override (1-99)")
	fs.StringVar(&network, "client-network", network, "client network type")
	fs.StringVar(&topology, "topology", topology, "network topology")
	fs.Uint32Var(&opts.DebugFlags, "debug-flags", opts.DebugFlags, "debug flag bitmask")
	fs.StringVar(&opts.DeviceModel, "device-model", opts.DeviceModel, "device model name")
	fs.StringVar(&opts.SignallingToken, "token", opts.SignallingToken, "signalling bearer token")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse launch options: %w", err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("parse launch options: unexpected arguments %v", fs.Args())
	}
	opts.ClientNetwork = ClientNetwork(network)
	opts.Topology = Topology(topology)
	return nil
}

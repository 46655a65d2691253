package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultOptions_Valid(t *testing.T) {
	opts := DefaultOptions()
	if err := opts.Validate(); err != nil {
		t.Fatalf("default options invalid: %v", err)
	}
	if opts.ServerAddress != "" {
		t.Errorf("ServerAddress: got %q, want empty", opts.ServerAddress)
	}
	if opts.LatchTimeout != 500*time.Millisecond {
		t.Errorf("LatchTimeout: got %v, want 500ms", opts.LatchTimeout)
	}
	if opts.BackgroundColor != 0xFF000000 {
		t.Errorf("BackgroundColor: got %#x", opts.BackgroundColor)
	}
}

func TestFoveationOverride(t *testing.T) {
	tests := []struct {
		in    int
		want  int
		valid bool
	}{
		{0, 0, false},
		{1, 1, true},
		{50, 50, true},
		{99, 99, true},
		{100, 0, false},
	}
	for _, tc := range tests {
		opts := DefaultOptions()
		opts.Foveation = tc.in
		got, ok := opts.FoveationOverride()
		if got != tc.want || ok != tc.valid {
			t.Errorf("Foveation %d: got (%d,%v), want (%d,%v)", tc.in, got, ok, tc.want, tc.valid)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"network", func(o *Options) { o.ClientNetwork = "carrier-pigeon" }},
		{"topology", func(o *Options) { o.Topology = "mesh" }},
		{"foveation", func(o *Options) { o.Foveation = 101 }},
		{"latch timeout", func(o *Options) { o.LatchTimeout = 0 }},
		{"stats interval", func(o *Options) { o.StatsInterval = -time.Second }},
		{"eye height", func(o *Options) { o.EyeHeight = -1 }},
		{"log level", func(o *Options) { o.LogLevel = "chatty" }},
		{"log format", func(o *Options) { o.LogFormat = "xml" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mutate(&opts)
			if err := opts.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseLaunchOptions(t *testing.T) {
	opts := DefaultOptions()
	err := ParseLaunchOptions(`-s 10.0.0.5 -f 50 --max-bitrate 20000 --topology lan --client-network wifi5 --device-model "Pico Neo 3"`, &opts)
	if err != nil {
		t.Fatalf("ParseLaunchOptions: %v", err)
	}
	if opts.ServerAddress != "10.0.0.5" {
		t.Errorf("ServerAddress: got %q", opts.ServerAddress)
	}
	if opts.Foveation != 50 {
		t.Errorf("Foveation: got %d", opts.Foveation)
	}
	if opts.MaxVideoBitrateKbps != 20000 {
		t.Errorf("MaxVideoBitrateKbps: got %d", opts.MaxVideoBitrateKbps)
	}
	if opts.Topology != TopologyLAN || opts.ClientNetwork != NetworkWiFi5 {
		t.Errorf("hints: got %q/%q", opts.Topology, opts.ClientNetwork)
	}
	if opts.DeviceModel != "Pico Neo 3" {
		t.Errorf("DeviceModel: got %q", opts.DeviceModel)
	}
	// Untouched fields keep their values.
	if opts.LatchTimeout != DefaultLatchTimeout {
		t.Errorf("LatchTimeout changed: %v", opts.LatchTimeout)
	}
}

func TestParseLaunchOptions_Errors(t *testing.T) {
	opts := DefaultOptions()
	if err := ParseLaunchOptions(`--no-such-flag`, &opts); err == nil {
		t.Error("expected error for unknown flag")
	}
	if err := ParseLaunchOptions(`-s "unterminated`, &opts); err == nil {
		t.Error("expected error for bad quoting")
	}
	if err := ParseLaunchOptions(`-s host extra`, &opts); err == nil {
		t.Error("expected error for positional args")
	}
}

func TestLoad_Layers(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "xr.yaml")
	launchPath := filepath.Join(dir, "launch.txt")

	yamlData := "server: 192.168.1.10\nfoveation: 40\nlatch_timeout: 250ms\ntopology: wan\n"
	if err := os.WriteFile(yamlPath, []byte(yamlData), 0o644); err != nil {
		t.Fatal(err)
	}
	launchData := "# provisioning\n-s 192.168.1.20\n"
	if err := os.WriteFile(launchPath, []byte(launchData), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("XR_SERVER", "")
	t.Setenv("XR_DEVICE_MODEL", "Test Headset")

	opts, err := Load(yamlPath, launchPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.ServerAddress != "192.168.1.20" {
		t.Errorf("launch options should override YAML: got %q", opts.ServerAddress)
	}
	if opts.Foveation != 40 {
		t.Errorf("Foveation: got %d", opts.Foveation)
	}
	if opts.LatchTimeout != 250*time.Millisecond {
		t.Errorf("LatchTimeout: got %v", opts.LatchTimeout)
	}
	if opts.Topology != TopologyWAN {
		t.Errorf("Topology: got %q", opts.Topology)
	}
	if opts.DeviceModel != "Test Headset" {
		t.Errorf("DeviceModel: got %q", opts.DeviceModel)
	}
}

func TestLoad_EnvOverridesAll(t *testing.T) {
	t.Setenv("XR_SERVER", "from-env")
	opts, err := Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.ServerAddress != "from-env" {
		t.Errorf("ServerAddress: got %q", opts.ServerAddress)
	}
}

func TestLoad_MissingLaunchFileIgnored(t *testing.T) {
	t.Setenv("XR_SERVER", "")
	if _, err := Load("", filepath.Join(t.TempDir(), "missing.txt")); err != nil {
		t.Errorf("missing launch file should be ignored: %v", err)
	}
}

func TestLoadYAML_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("sever: typo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := DefaultOptions()
	if err := LoadYAML(path, &opts); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestSignallingURL(t *testing.T) {
	if got := SignallingURL("10.0.0.5"); got != "ws://10.0.0.5:48010/signalling" {
		t.Errorf("got %q", got)
	}
	if got := SignallingURL("10.0.0.5:9000"); got != "ws://10.0.0.5:9000/signalling" {
		t.Errorf("got %q", got)
	}
}

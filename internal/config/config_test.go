package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string `help:"Config file path"`

	Device     string        `toml:"stream.device" env:"DEVICE"`
	Verbose    bool          `toml:"verbose" env:"VERBOSE"`
	Port       int           `toml:"api.port" env:"PORT"`
	Scale      float64       `toml:"api.scale" env:"SCALE"`
	Grace      time.Duration `toml:"api.grace" env:"GRACE"`
	Exclude    []string      `toml:"library.exclude" env:"EXCLUDE"`
	NotTagged  string
	LoggingDir string `toml:"logging.dir"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleTOML = `
verbose = true

[stream]
device = "/dev/video21"

[api]
port = 9000
scale = 1.5
grace = "3s"

[library]
exclude = ["node_modules", ".cache"]

[logging]
dir = "/var/log"
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeFile(t, sampleTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	want := testOptions{
		Config:     opts.Config,
		Device:     "/dev/video21",
		Verbose:    true,
		Port:       9000,
		Scale:      1.5,
		Grace:      3 * time.Second,
		Exclude:    []string{"node_modules", ".cache"},
		LoggingDir: "/var/log",
	}
	if !reflect.DeepEqual(*opts, want) {
		t.Errorf("got %+v\nwant %+v", *opts, want)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("V4L2TRICKS_DEVICE", "/dev/video30")
	t.Setenv("V4L2TRICKS_PORT", "7000")
	t.Setenv("V4L2TRICKS_EXCLUDE", "a, b")
	t.Setenv("V4L2TRICKS_GRACE", "250ms")
	t.Setenv("V4L2TRICKS_VERBOSE", "not-a-bool")

	opts := &testOptions{Config: writeFile(t, sampleTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatal(err)
	}

	if opts.Device != "/dev/video30" {
		t.Errorf("Device = %q", opts.Device)
	}
	if opts.Port != 7000 {
		t.Errorf("Port = %d", opts.Port)
	}
	if !reflect.DeepEqual(opts.Exclude, []string{"a", "b"}) {
		t.Errorf("Exclude = %v", opts.Exclude)
	}
	if opts.Grace != 250*time.Millisecond {
		t.Errorf("Grace = %v", opts.Grace)
	}
	if !opts.Verbose {
		t.Error("unparsable env value should leave the file value")
	}
}

func TestLoadConfigKeepsExplicitFlags(t *testing.T) {
	t.Setenv("V4L2TRICKS_PORT", "7000")

	opts := &testOptions{Config: writeFile(t, sampleTOML)}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.Device, "device", "", "")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "")
	if err := cmd.Flags().Parse([]string{"--device", "/dev/video40", "--port", "8080"}); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatal(err)
	}
	if opts.Device != "/dev/video40" {
		t.Errorf("Device = %q, flag should win over file", opts.Device)
	}
	if opts.Port != 8080 {
		t.Errorf("Port = %d, flag should win over env", opts.Port)
	}
	if !opts.Verbose {
		t.Error("unset flags still load from file")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Device: "/dev/video20"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if opts.Device != "/dev/video20" {
		t.Errorf("Device = %q", opts.Device)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	opts := &testOptions{Config: writeFile(t, "[stream\n")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Fatal("expected error for non-pointer")
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":              "port",
		"PreviewIncrements": "preview-increments",
		"Config":            "config",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeFile(t, `
[logging]
level = "debug"
format = "json"
stream = "warn"
ffmpeg = "error"
`)
	cfg := LoadLoggingConfig(path)
	if cfg.Level != "debug" || cfg.Format != "json" {
		t.Errorf("got level=%q format=%q", cfg.Level, cfg.Format)
	}
	if cfg.Modules["stream"] != "warn" || cfg.Modules["ffmpeg"] != "error" {
		t.Errorf("modules = %v", cfg.Modules)
	}

	def := LoadLoggingConfig("")
	if def.Level != "info" || def.Format != "text" {
		t.Errorf("defaults = %+v", def)
	}
}

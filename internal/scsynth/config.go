package scsynth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/nerrad567/synthd/internal/process"
)

// DefaultUDPPort is the port scsynth listens on for OSC unless told otherwise.
const DefaultUDPPort = 57110

// searchPaths are tried when Binary is a bare name that is not on PATH.
var searchPaths = []string{
	"/usr/bin/scsynth",
	"/usr/local/bin/scsynth",
	"/opt/homebrew/bin/scsynth",
	"/Applications/SuperCollider.app/Contents/Resources/scsynth",
}

// Config holds the configuration for the scsynth server process.
//
// Zero values mean "scsynth's own default": the matching flag is left off
// the command line.
type Config struct {
	// Binary is the scsynth executable. A bare name is resolved via PATH.
	// Default: "scsynth"
	Binary string `yaml:"binary"`

	// Host is where OSC datagrams are sent.
	// Default: "127.0.0.1"
	Host string `yaml:"host"`

	// UDPPort is scsynth's OSC port (-u). Always passed.
	// Default: 57110
	UDPPort int `yaml:"udp_port"`

	// BindAddress is the interface scsynth listens on (-B).
	BindAddress string `yaml:"bind_address,omitempty"`

	// Bus and channel counts (-c -a -i -o).
	ControlBuses   int `yaml:"control_buses,omitempty"`
	AudioBuses     int `yaml:"audio_buses,omitempty"`
	InputChannels  int `yaml:"input_channels,omitempty"`
	OutputChannels int `yaml:"output_channels,omitempty"`

	// BlockSize is the calculation block size in samples (-z).
	BlockSize int `yaml:"block_size,omitempty"`

	// HardwareBufferSize is the audio device buffer size (-Z).
	HardwareBufferSize int `yaml:"hardware_buffer_size,omitempty"`

	// SampleRate requests a hardware sample rate (-S). 0 uses the device's.
	SampleRate int `yaml:"sample_rate,omitempty"`

	// Resource limits (-b -n -d -m -w -r).
	Buffers        int `yaml:"buffers,omitempty"`
	MaxNodes       int `yaml:"max_nodes,omitempty"`
	MaxSynthDefs   int `yaml:"max_synthdefs,omitempty"`
	RealtimeMemory int `yaml:"realtime_memory_kb,omitempty"`
	WireBuffers    int `yaml:"wire_buffers,omitempty"`
	RandomSeeds    int `yaml:"random_seeds,omitempty"`

	// LoadSynthDefs loads synthdefs from disk at startup (-D).
	// Default: true
	LoadSynthDefs bool `yaml:"load_synthdefs"`

	// PublishRendezvous advertises the server via zeroconf (-R).
	// Default: true
	PublishRendezvous bool `yaml:"publish_rendezvous"`

	// MaxLogins limits concurrent clients (-l).
	MaxLogins int `yaml:"max_logins,omitempty"`

	// Password is required from TCP clients (-p).
	Password string `yaml:"password,omitempty"`

	// Verbosity: 0 normal, -1 quieter, -2 no printing, >0 more (-V).
	Verbosity int `yaml:"verbosity,omitempty"`

	// UGenPluginsPath replaces the default plugin search path (-U).
	UGenPluginsPath []string `yaml:"ugen_plugins_path,omitempty"`

	// RestrictedPath limits file access for buffers and synthdefs (-P).
	RestrictedPath string `yaml:"restricted_path,omitempty"`

	// Device is the audio hardware device name (-H).
	Device string `yaml:"device,omitempty"`

	// ExtraArgs are appended verbatim after the generated flags.
	ExtraArgs []string `yaml:"extra_args,omitempty"`
}

// DefaultConfig returns a Config that starts scsynth with its own defaults on
// the standard port.
func DefaultConfig() Config {
	return Config{
		Binary:            "scsynth",
		Host:              "127.0.0.1",
		UDPPort:           DefaultUDPPort,
		LoadSynthDefs:     true,
		PublishRendezvous: true,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("scsynth binary path is required")
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.UDPPort < 1 || c.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535")
	}

	counts := []struct {
		name  string
		value int
	}{
		{"control_buses", c.ControlBuses},
		{"audio_buses", c.AudioBuses},
		{"input_channels", c.InputChannels},
		{"output_channels", c.OutputChannels},
		{"block_size", c.BlockSize},
		{"hardware_buffer_size", c.HardwareBufferSize},
		{"sample_rate", c.SampleRate},
		{"buffers", c.Buffers},
		{"max_nodes", c.MaxNodes},
		{"max_synthdefs", c.MaxSynthDefs},
		{"realtime_memory_kb", c.RealtimeMemory},
		{"wire_buffers", c.WireBuffers},
		{"random_seeds", c.RandomSeeds},
		{"max_logins", c.MaxLogins},
	}
	for _, n := range counts {
		if n.value < 0 {
			return fmt.Errorf("%s must not be negative", n.name)
		}
	}

	// scsynth rejects block sizes that are not a power of two.
	if c.BlockSize > 0 && c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block_size must be a power of two")
	}

	for _, p := range c.UGenPluginsPath {
		if strings.Contains(p, string(os.PathListSeparator)) {
			return fmt.Errorf("ugen_plugins_path entry %q must not contain %q", p, os.PathListSeparator)
		}
	}

	for _, arg := range append([]string{c.Password, c.Device, c.RestrictedPath, c.BindAddress}, c.ExtraArgs...) {
		if strings.ContainsRune(arg, 0) {
			return fmt.Errorf("arguments must not contain NUL bytes")
		}
	}

	return nil
}

// option maps one Config field to a scsynth flag. The flag is omitted when
// the formatted value is in omit.
type option struct {
	flag  string
	value func(c *Config) string
	omit  []string
}

func intOption(flag string, get func(c *Config) int, engineDefault int) option {
	return option{
		flag:  flag,
		value: func(c *Config) string { return strconv.Itoa(get(c)) },
		omit:  []string{"0", strconv.Itoa(engineDefault)},
	}
}

func boolOption(flag string, get func(c *Config) bool) option {
	return option{
		flag: flag,
		value: func(c *Config) string {
			if get(c) {
				return "1"
			}
			return "0"
		},
		omit: []string{"1"},
	}
}

func stringOption(flag string, get func(c *Config) string) option {
	return option{flag: flag, value: get, omit: []string{""}}
}

// options lists every generated flag in command-line order.
var options = []option{
	stringOption("-B", func(c *Config) string { return c.BindAddress }),
	intOption("-c", func(c *Config) int { return c.ControlBuses }, 16384),
	intOption("-a", func(c *Config) int { return c.AudioBuses }, 1024),
	intOption("-i", func(c *Config) int { return c.InputChannels }, 8),
	intOption("-o", func(c *Config) int { return c.OutputChannels }, 8),
	intOption("-z", func(c *Config) int { return c.BlockSize }, 64),
	intOption("-Z", func(c *Config) int { return c.HardwareBufferSize }, 0),
	intOption("-S", func(c *Config) int { return c.SampleRate }, 0),
	intOption("-b", func(c *Config) int { return c.Buffers }, 1024),
	intOption("-n", func(c *Config) int { return c.MaxNodes }, 1024),
	intOption("-d", func(c *Config) int { return c.MaxSynthDefs }, 1024),
	intOption("-m", func(c *Config) int { return c.RealtimeMemory }, 8192),
	intOption("-w", func(c *Config) int { return c.WireBuffers }, 64),
	intOption("-r", func(c *Config) int { return c.RandomSeeds }, 64),
	boolOption("-D", func(c *Config) bool { return c.LoadSynthDefs }),
	boolOption("-R", func(c *Config) bool { return c.PublishRendezvous }),
	intOption("-l", func(c *Config) int { return c.MaxLogins }, 64),
	stringOption("-p", func(c *Config) string { return c.Password }),
	intOption("-V", func(c *Config) int { return c.Verbosity }, 0),
	stringOption("-U", func(c *Config) string { return strings.Join(c.UGenPluginsPath, string(os.PathListSeparator)) }),
	stringOption("-P", func(c *Config) string { return c.RestrictedPath }),
	stringOption("-H", func(c *Config) string { return c.Device }),
}

// BuildArgs constructs the command-line arguments for scsynth.
//
// "-u <port>" always comes first. Every other flag is emitted only when its
// value differs from both the zero value and scsynth's built-in default.
func (c *Config) BuildArgs() []string {
	args := []string{"-u", strconv.Itoa(c.UDPPort)}

	for _, opt := range options {
		v := opt.value(c)
		if slices.Contains(opt.omit, v) {
			continue
		}
		args = append(args, opt.flag, v)
	}

	return append(args, c.ExtraArgs...)
}

// ResolveBinary returns the path of the executable to launch.
//
// Paths containing a separator are returned as given. Bare names are looked
// up on PATH, then in the usual install locations. A name that cannot be
// found anywhere yields process.ErrFileNotFound.
func (c *Config) ResolveBinary() (string, error) {
	if strings.ContainsRune(c.Binary, filepath.Separator) {
		return c.Binary, nil
	}

	path, err := exec.LookPath(c.Binary)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, exec.ErrNotFound) {
		return "", fmt.Errorf("looking up %s: %w", c.Binary, err)
	}

	if c.Binary == "scsynth" {
		for _, candidate := range searchPaths {
			if info, statErr := os.Stat(candidate); statErr == nil && info.Mode().IsRegular() {
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("%w: %s not found in PATH", process.ErrFileNotFound, c.Binary)
}

// Destination returns where OSC datagrams for this server are sent.
func (c *Config) Destination() (string, int) {
	return c.Host, c.UDPPort
}

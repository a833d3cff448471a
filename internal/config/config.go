// Package config holds the run configuration: command-line flags, an optional
// config file and MERCURY_* environment variables, merged by viper.
package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/viper"

	"github.com/truebasic2011/mercury/internal/core"
	"github.com/truebasic2011/mercury/internal/output"
	"github.com/truebasic2011/mercury/internal/processor"
)

// EnvPrefix is the environment variable prefix (MERCURY_OUTPUT_LIMIT, ...).
const EnvPrefix = "MERCURY"

// ThreadsCPU requests one producer thread per logical CPU.
const ThreadsCPU = "cpu"

// Config is the complete run configuration.
type Config struct {
	Input     InputConfig   `mapstructure:"input"`
	Output    OutputConfig  `mapstructure:"output"`
	Threads   string        `mapstructure:"threads"` // number or "cpu"
	QueueSize int           `mapstructure:"queue_size"`
	Adaptive  bool          `mapstructure:"adaptive"`
	User      string        `mapstructure:"user"`
	Directory string        `mapstructure:"directory"`
	Verbose   bool          `mapstructure:"verbose"`
	Metrics   MetricsConfig `mapstructure:"metrics"`
	Log       LogConfig     `mapstructure:"log"`

	// ThreadCount is Threads resolved by Validate.
	ThreadCount int `mapstructure:"-"`
	// Selection is Output.Select resolved by Validate.
	Selection processor.Selection `mapstructure:"-"`
}

// InputConfig selects live capture or file replay.
type InputConfig struct {
	Capture        string  `mapstructure:"capture"` // interface name
	Read           string  `mapstructure:"read"`    // pcap or pcapng file
	Test           bool    `mapstructure:"test"`    // built-in test packet
	Loop           int     `mapstructure:"loop"`
	BPF            string  `mapstructure:"bpf"` // tcpdump -ddd output
	BufferFraction float64 `mapstructure:"buffer_fraction"`
}

// OutputConfig selects where records go.
type OutputConfig struct {
	Fingerprint string             `mapstructure:"fingerprint"` // JSON records file
	Write       string             `mapstructure:"write"`       // pcap records file
	Limit       uint64             `mapstructure:"limit"`       // records per file, 0 disables rotation
	Overwrite   bool               `mapstructure:"overwrite"`
	Compress    bool               `mapstructure:"compress"`
	Select      string             `mapstructure:"select"` // "", "all" or e.g. "tls,http"
	Kafka       output.KafkaConfig `mapstructure:"kafka"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // empty disables the endpoint
	Path   string `mapstructure:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string           `mapstructure:"level"`  // debug / info / warn / error
	Format string           `mapstructure:"format"` // json / text
	File   FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Path     string         `mapstructure:"path"` // empty disables file output
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// SetDefaults registers default values on v. Every key gets one so that
// environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("input.capture", "")
	v.SetDefault("input.read", "")
	v.SetDefault("input.test", false)
	v.SetDefault("input.bpf", "")
	v.SetDefault("input.loop", 1)
	v.SetDefault("input.buffer_fraction", 0.01)
	v.SetDefault("threads", "1")
	v.SetDefault("queue_size", 1<<16)
	v.SetDefault("adaptive", false)
	v.SetDefault("user", "")
	v.SetDefault("directory", "")
	v.SetDefault("verbose", false)

	v.SetDefault("output.fingerprint", "")
	v.SetDefault("output.write", "")
	v.SetDefault("output.limit", 0)
	v.SetDefault("output.overwrite", false)
	v.SetDefault("output.compress", false)
	v.SetDefault("output.select", "")

	v.SetDefault("output.kafka.brokers", []string{})
	v.SetDefault("output.kafka.topic", "")
	v.SetDefault("output.kafka.compression", "snappy")
	v.SetDefault("output.kafka.batch_size", 100)
	v.SetDefault("output.kafka.batch_timeout", "100ms")
	v.SetDefault("output.kafka.max_attempts", 3)

	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.rotation.max_size_mb", 100)
	v.SetDefault("log.file.rotation.max_age_days", 30)
	v.SetDefault("log.file.rotation.max_backups", 5)
	v.SetDefault("log.file.rotation.compress", true)
}

// Load reads the optional config file, applies environment overrides and
// defaults, and unmarshals into a Config. Flags must already be bound to v.
// The result is not validated.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w: %w", file, core.ErrConfigInvalid, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w: %w", core.ErrConfigInvalid, err)
	}
	return &cfg, nil
}

// Kind is the record kind the configured output expects.
func (c *Config) Kind() core.RecordKind {
	if c.Output.Write != "" {
		return core.KindPacket
	}
	return core.KindFingerprint
}

// OutputPath returns the configured output file path, or "" for stdout/Kafka.
func (c *Config) OutputPath() string {
	if c.Output.Write != "" {
		return c.Output.Write
	}
	return c.Output.Fingerprint
}

// KafkaEnabled reports whether fingerprint records go to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.Output.Kafka.Brokers) > 0
}

// Validate enforces option compatibility and resolves the thread count.
// Every failure wraps core.ErrConfigInvalid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf(format+": %w", append(args, core.ErrConfigInvalid)...)
	}

	in := c.Input
	inputs := 0
	for _, set := range []bool{in.Capture != "", in.Read != "", in.Test} {
		if set {
			inputs++
		}
	}
	switch {
	case inputs == 0:
		return invalid("one of capture, read or test is required")
	case inputs > 1:
		return invalid("capture, read and test are mutually exclusive")
	}
	if in.Loop < 1 {
		return invalid("loop count %d must be at least 1", in.Loop)
	}
	if in.BufferFraction < 0 || in.BufferFraction > 1 {
		return invalid("buffer fraction %g outside [0,1]", in.BufferFraction)
	}
	if in.BPF != "" && in.Capture == "" {
		return invalid("bpf filter applies to live capture only")
	}

	out := c.Output
	if out.Fingerprint != "" && out.Write != "" {
		return invalid("fingerprint and write outputs are mutually exclusive")
	}
	if c.KafkaEnabled() {
		if out.Write != "" || out.Fingerprint != "" {
			return invalid("kafka output replaces the fingerprint and write files")
		}
		if out.Kafka.Topic == "" {
			return invalid("kafka topic is required")
		}
	}
	if c.Adaptive && (in.Capture == "" || out.Write == "") {
		return invalid("adaptive mode requires capture and write")
	}
	sel, err := processor.ParseSelection(out.Select)
	if err != nil {
		return err
	}
	c.Selection = sel

	if c.QueueSize < 1 {
		return invalid("queue size %d must be positive", c.QueueSize)
	}

	n, err := resolveThreads(c.Threads)
	if err != nil {
		return err
	}
	if in.Read != "" || in.Test {
		n = 1
	}
	if n > 1 && c.OutputPath() == "" && !c.KafkaEnabled() {
		return invalid("%d threads require an output file", n)
	}
	c.ThreadCount = n

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("log level %q (must be debug/info/warn/error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return invalid("log format %q (must be json/text)", c.Log.Format)
	}
	return nil
}

// resolveThreads parses a thread count or "cpu".
func resolveThreads(s string) (int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 1, nil
	}
	if s == ThreadsCPU {
		return cpuCount(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("threads %q must be a positive number or %q: %w", s, ThreadsCPU, core.ErrConfigInvalid)
	}
	return n, nil
}

// cpuCount returns the number of logical CPUs.
func cpuCount() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

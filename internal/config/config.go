package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration written as a Go duration string ("3s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// Capture sources.
const (
	SourceLive = "live"
	SourceFile = "file"
	SourceNATS = "nats"
)

// Engine clocks.
const (
	ClockWall   = "wall"
	ClockPacket = "packet"
)

// CaptureConfig selects where frames come from.
type CaptureConfig struct {
	Source      string   `yaml:"source"`
	Interface   string   `yaml:"interface"`
	File        string   `yaml:"file"`
	Snaplen     int32    `yaml:"snaplen"`
	Promiscuous bool     `yaml:"promiscuous"`
	BPFFilter   string   `yaml:"bpf_filter"`
	ReadTimeout Duration `yaml:"read_timeout"`
	BufferSize  int      `yaml:"buffer_size"`
}

// EngineConfig tunes the flow engine and its control loop.
type EngineConfig struct {
	FlowIdleTimeout Duration `yaml:"flow_idle_timeout"`
	HostIdleTimeout Duration `yaml:"host_idle_timeout"`
	MaxFlows        int      `yaml:"max_flows"`
	MaxHosts        int      `yaml:"max_hosts"`
	GiveUpPackets   uint64   `yaml:"give_up_packets"`
	PurgeInterval   Duration `yaml:"purge_interval"`
	RefreshInterval Duration `yaml:"refresh_interval"`
	// Clock is "wall" or "packet". Empty picks packet time for file replay
	// and wall time otherwise.
	Clock string `yaml:"clock"`
}

// NATSConfig addresses a NATS subject.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ReportConfig controls the per-packet observability records.
type ReportConfig struct {
	Log  bool       `yaml:"log"`
	NATS NATSConfig `yaml:"nats"`
}

// RecordConfig makes the probe keep a pcap copy of what it publishes.
type RecordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	BufferSize int    `yaml:"buffer_size"`
}

// ProbeConfig holds the raw frame transport between probe and monitor.
type ProbeConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	// LinkType is the pcap link type the monitor expects on the subject.
	LinkType int          `yaml:"link_type"`
	Record   RecordConfig `yaml:"record"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WriterDef defines one snapshot writer.
type WriterDef struct {
	Type     string   `yaml:"type"`
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
	// RootPath is used by the gob writer.
	RootPath string `yaml:"root_path"`
}

// APIConfig holds the REST server settings.
type APIConfig struct {
	Enabled        bool     `yaml:"enabled"`
	ListenAddr     string   `yaml:"listen_addr"`
	StreamInterval Duration `yaml:"stream_interval"`
	// History enables the ClickHouse backed history endpoints.
	History bool `yaml:"history"`
}

// RPCConfig holds the gRPC server settings.
type RPCConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// AlerterRule defines a single alert rule over the engine totals.
type AlerterRule struct {
	Name      string  `yaml:"name"`
	Metric    string  `yaml:"metric"`
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// AlerterConfig holds the alerter settings.
type AlerterConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval Duration      `yaml:"check_interval"`
	Rules         []AlerterRule `yaml:"rules"`
}

// SMTPConfig holds the settings for the email notifier. To is a comma
// separated list of recipients.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// UIConfig controls the console table.
type UIConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
	Top      int      `yaml:"top"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture    CaptureConfig    `yaml:"capture"`
	Engine     EngineConfig     `yaml:"engine"`
	Report     ReportConfig     `yaml:"report"`
	Probe      ProbeConfig      `yaml:"probe"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Writers    []WriterDef      `yaml:"writers"`
	API        APIConfig        `yaml:"api"`
	RPC        RPCConfig        `yaml:"rpc"`
	Alerter    AlerterConfig    `yaml:"alerter"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	UI         UIConfig         `yaml:"ui"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Default returns the configuration used when a key is left out.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Source:      SourceLive,
			Snaplen:     1600,
			Promiscuous: true,
			ReadTimeout: Duration(500 * time.Millisecond),
			BufferSize:  10000,
		},
		Engine: EngineConfig{
			FlowIdleTimeout: Duration(60 * time.Second),
			HostIdleTimeout: Duration(300 * time.Second),
			GiveUpPackets:   8,
			PurgeInterval:   Duration(3 * time.Second),
			RefreshInterval: Duration(time.Second),
		},
		Report: ReportConfig{
			NATS: NATSConfig{URL: "nats://127.0.0.1:4222", Subject: "nettop.flows"},
		},
		Probe: ProbeConfig{
			NATSURL:  "nats://127.0.0.1:4222",
			Subject:  "nettop.frames",
			LinkType: 1,
			Record:   RecordConfig{BufferSize: 10000},
		},
		ClickHouse: ClickHouseConfig{Host: "127.0.0.1", Port: 9000, Database: "default", Username: "default"},
		API:        APIConfig{ListenAddr: ":8080", StreamInterval: Duration(time.Second)},
		RPC:        RPCConfig{ListenAddr: ":50051"},
		Alerter:    AlerterConfig{CheckInterval: Duration(30 * time.Second)},
		SMTP:       SMTPConfig{Port: 587},
		UI:         UIConfig{Interval: Duration(time.Second), Top: 20},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the
// defaults and validates it.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document on top of the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode decodes a YAML document on top of the defaults without validating
// it, so that callers can apply overrides first.
func Decode(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	return cfg, nil
}

// Clock returns the effective engine clock.
func (c *Config) Clock() string {
	if c.Engine.Clock != "" {
		return c.Engine.Clock
	}
	if c.Capture.Source == SourceFile {
		return ClockPacket
	}
	return ClockWall
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []string
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch c.Capture.Source {
	case SourceLive:
		if c.Capture.Interface == "" {
			bad("capture.interface is required for live capture")
		}
	case SourceFile:
		if c.Capture.File == "" {
			bad("capture.file is required for file replay")
		}
	case SourceNATS:
		if c.Probe.NATSURL == "" || c.Probe.Subject == "" {
			bad("probe.nats_url and probe.subject are required for the nats source")
		}
	default:
		bad("unknown capture.source %q", c.Capture.Source)
	}
	if c.Probe.Record.Enabled && c.Probe.Record.Path == "" {
		bad("probe.record.path is required when recording is enabled")
	}
	if c.Capture.BufferSize <= 0 {
		bad("capture.buffer_size must be positive")
	}

	switch c.Engine.Clock {
	case "", ClockWall, ClockPacket:
	default:
		bad("unknown engine.clock %q", c.Engine.Clock)
	}
	if c.Engine.FlowIdleTimeout <= 0 || c.Engine.HostIdleTimeout <= 0 {
		bad("engine idle timeouts must be positive")
	}
	if c.Engine.PurgeInterval <= 0 || c.Engine.RefreshInterval <= 0 {
		bad("engine.purge_interval and engine.refresh_interval must be positive")
	}
	if c.Engine.MaxFlows < 0 || c.Engine.MaxHosts < 0 {
		bad("engine table limits must not be negative")
	}

	for i, w := range c.Writers {
		if w.Enabled && w.Interval <= 0 {
			bad("writers[%d] (%s): interval must be positive", i, w.Type)
		}
	}

	for i, r := range c.Alerter.Rules {
		switch r.Operator {
		case ">", ">=", "<", "<=", "==", "!=":
		default:
			bad("alerter.rules[%d] (%s): unknown operator %q", i, r.Name, r.Operator)
		}
	}
	if c.Alerter.Enabled && c.Alerter.CheckInterval <= 0 {
		bad("alerter.check_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

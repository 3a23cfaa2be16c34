// Package capture wires the packet dissector, SIP dialog tracker, RTP
// stream analyzer, and audio engine into one session lifecycle (spec C6):
// termination predicates, grace periods, periodic stall checks, and the
// pcap output format.
package capture

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Termination timeouts (spec §6).
const (
	DefaultRTPTimeout      = 30 * time.Second
	DefaultRTPGracePeriod  = 5 * time.Second
	DefaultAutoModeTimeout = 300 * time.Second
	DefaultAutoIdleTimeout = 60 * time.Second
)

// Config is the engine tuning and termination-timing knobs layered
// under the operator-surface CLI flags (spec §6 describes the flags
// themselves; this covers everything the flags don't).
type Config struct {
	SignalingPort int

	RTPTimeout      time.Duration
	RTPGracePeriod  time.Duration
	AutoModeTimeout time.Duration
	AutoIdleTimeout time.Duration

	JitterTargetDelayMS float64
	JitterFactor        float64
	JitterMinDelayMS    float64
	JitterMaxDelayMS    float64

	VADThresholdDB    float64
	InitialBitrateBPS int

	StatsIntervalSeconds int
}

type yamlConfig struct {
	SignalingPort int `yaml:"signaling_port"`
	Termination   struct {
		RTPTimeout      string `yaml:"rtp_timeout"`
		RTPGracePeriod  string `yaml:"rtp_grace_period"`
		AutoModeTimeout string `yaml:"auto_mode_timeout"`
		AutoIdleTimeout string `yaml:"auto_idle_timeout"`
	} `yaml:"termination"`
	Jitter struct {
		TargetDelayMS float64 `yaml:"target_delay_ms"`
		Factor        float64 `yaml:"factor"`
		MinDelayMS    float64 `yaml:"min_delay_ms"`
		MaxDelayMS    float64 `yaml:"max_delay_ms"`
	} `yaml:"jitter"`
	Codec struct {
		VADThresholdDB    float64 `yaml:"vad_threshold_db"`
		InitialBitrateBPS int     `yaml:"initial_bitrate_bps"`
	} `yaml:"codec"`
	Stats struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"stats"`
}

// DefaultConfig returns the engine defaults used when no config file is
// supplied, matching spec's named constants.
func DefaultConfig() Config {
	return Config{
		SignalingPort:        5060,
		RTPTimeout:           DefaultRTPTimeout,
		RTPGracePeriod:       DefaultRTPGracePeriod,
		AutoModeTimeout:      DefaultAutoModeTimeout,
		AutoIdleTimeout:      DefaultAutoIdleTimeout,
		JitterTargetDelayMS:  40,
		JitterFactor:         1.0,
		JitterMinDelayMS:     20,
		JitterMaxDelayMS:     200,
		VADThresholdDB:       -30,
		InitialBitrateBPS:    32000,
		StatsIntervalSeconds: 5,
	}
}

// LoadConfig reads a YAML tuning file at path, overlaying it onto
// DefaultConfig. A missing path is not an error — the caller passes ""
// to run with defaults only, mirroring the operator surface's optional
// tuning file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("capture: failed to read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("capture: failed to parse config file: %w", err)
	}

	if yc.SignalingPort > 0 {
		cfg.SignalingPort = yc.SignalingPort
	}
	if d, err := parseDurationField("termination.rtp_timeout", yc.Termination.RTPTimeout); err != nil {
		return Config{}, err
	} else if d > 0 {
		cfg.RTPTimeout = d
	}
	if d, err := parseDurationField("termination.rtp_grace_period", yc.Termination.RTPGracePeriod); err != nil {
		return Config{}, err
	} else if d > 0 {
		cfg.RTPGracePeriod = d
	}
	if d, err := parseDurationField("termination.auto_mode_timeout", yc.Termination.AutoModeTimeout); err != nil {
		return Config{}, err
	} else if d > 0 {
		cfg.AutoModeTimeout = d
	}
	if d, err := parseDurationField("termination.auto_idle_timeout", yc.Termination.AutoIdleTimeout); err != nil {
		return Config{}, err
	} else if d > 0 {
		cfg.AutoIdleTimeout = d
	}

	if yc.Jitter.TargetDelayMS > 0 {
		cfg.JitterTargetDelayMS = yc.Jitter.TargetDelayMS
	}
	if yc.Jitter.Factor > 0 {
		cfg.JitterFactor = yc.Jitter.Factor
	}
	if yc.Jitter.MinDelayMS > 0 {
		cfg.JitterMinDelayMS = yc.Jitter.MinDelayMS
	}
	if yc.Jitter.MaxDelayMS > 0 {
		cfg.JitterMaxDelayMS = yc.Jitter.MaxDelayMS
	}
	if yc.Codec.VADThresholdDB != 0 {
		cfg.VADThresholdDB = yc.Codec.VADThresholdDB
	}
	if yc.Codec.InitialBitrateBPS > 0 {
		cfg.InitialBitrateBPS = yc.Codec.InitialBitrateBPS
	}
	if yc.Stats.IntervalSeconds > 0 {
		cfg.StatsIntervalSeconds = yc.Stats.IntervalSeconds
	}

	return cfg, nil
}

func parseDurationField(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("capture: invalid %s: %w", name, err)
	}
	return d, nil
}

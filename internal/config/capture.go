// Package config loads capture settings from JSON or TOML files.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/banshee-data/usbsniff/internal/burst"
	"github.com/banshee-data/usbsniff/internal/capture"
	"github.com/banshee-data/usbsniff/internal/monitoring"
	"github.com/banshee-data/usbsniff/internal/pipeline"
	"github.com/banshee-data/usbsniff/internal/resync"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// DefaultConfigPath is the canonical capture defaults file.
const DefaultConfigPath = "config/capture.defaults.json"

// CaptureConfig is the root capture configuration. Unset fields fall back to
// the defaults returned by the Get* methods, so partial files are safe.
type CaptureConfig struct {
	// Pipeline
	ClockHz            *uint64 `json:"clock_hz,omitempty" toml:"clock_hz"`
	IdleTimeoutCycles  *uint64 `json:"idle_timeout_cycles,omitempty" toml:"idle_timeout_cycles"`
	FlushDepthWords    *int    `json:"flush_depth_words,omitempty" toml:"flush_depth_words"`
	BurstCapacityWords *int    `json:"burst_capacity_words,omitempty" toml:"burst_capacity_words"`
	OverflowPolicy     *string `json:"overflow_policy,omitempty" toml:"overflow_policy"`
	Framer             *string `json:"framer,omitempty" toml:"framer"`

	// Resync pattern, e.g. "0xE00050"
	ResyncPattern *string `json:"resync_pattern,omitempty" toml:"resync_pattern"`
	ResyncLength  *int    `json:"resync_length,omitempty" toml:"resync_length"`
	ResyncRepeats *int    `json:"resync_repeats,omitempty" toml:"resync_repeats"`

	// Capture input
	CaptureFormat *string              `json:"capture_format,omitempty" toml:"capture_format"`
	Serial        *capture.PortOptions `json:"serial,omitempty" toml:"serial"`
	UDPPort       *int                 `json:"udp_port,omitempty" toml:"udp_port"`

	// Sinks
	MaxFrameBytes *int    `json:"max_frame_bytes,omitempty" toml:"max_frame_bytes"`
	ForwardAddr   *string `json:"forward_addr,omitempty" toml:"forward_addr"`
	GRPCAddr      *string `json:"grpc_addr,omitempty" toml:"grpc_addr"`
	DBPath        *string `json:"db_path,omitempty" toml:"db_path"`
	RecordDir     *string `json:"record_dir,omitempty" toml:"record_dir"`

	LogLevel *string `json:"log_level,omitempty" toml:"log_level"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrUint64(v uint64) *uint64 { return &v }

// DefaultCaptureConfig returns a config with every pipeline field set to
// its default value.
func DefaultCaptureConfig() *CaptureConfig {
	return &CaptureConfig{
		ClockHz:            ptrUint64(60_000_000),
		IdleTimeoutCycles:  ptrUint64(transport.DefaultIdleTimeout),
		FlushDepthWords:    ptrInt(transport.DefaultDepth),
		BurstCapacityWords: ptrInt(burst.DefaultCapacity),
		OverflowPolicy:     ptrString(burst.Backpressure.String()),
		Framer:             ptrString(string(pipeline.FramerBatch)),
		ResyncPattern:      ptrString(fmt.Sprintf("%#x", resync.DefaultPattern)),
		ResyncLength:       ptrInt(resync.DefaultLength),
		ResyncRepeats:      ptrInt(resync.DefaultRepeats),
		CaptureFormat:      ptrString(string(capture.FormatTagged)),
		LogLevel:           ptrString("info"),
	}
}

// EmptyCaptureConfig returns a config with every field unset.
func EmptyCaptureConfig() *CaptureConfig {
	return &CaptureConfig{}
}

const maxFileSize = 1 * 1024 * 1024 // 1MB

// LoadCaptureConfig reads a .json or .toml config file.
func LoadCaptureConfig(path string) (*CaptureConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".toml" {
		return nil, fmt.Errorf("config file must have .json or .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyCaptureConfig()
	if ext == ".toml" {
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	monitoring.Debugf("config: loaded %s", cleanPath)
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory
// or a parent. It panics if the file cannot be found; it is meant for tests.
func MustLoadDefaultConfig() *CaptureConfig {
	for _, prefix := range []string{"", "../", "../../", "../../../"} {
		if cfg, err := LoadCaptureConfig(prefix + DefaultConfigPath); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// ParsePattern parses a resync pattern written in decimal or 0x hex.
func ParsePattern(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid resync_pattern %q: %w", s, err)
	}
	return uint32(v), nil
}

// Validate checks the values that are set.
func (c *CaptureConfig) Validate() error {
	if c.ClockHz != nil && *c.ClockHz == 0 {
		return fmt.Errorf("clock_hz must be positive")
	}
	if c.IdleTimeoutCycles != nil && *c.IdleTimeoutCycles == 0 {
		return fmt.Errorf("idle_timeout_cycles must be positive")
	}
	if c.FlushDepthWords != nil && *c.FlushDepthWords <= 0 {
		return fmt.Errorf("flush_depth_words must be positive, got %d", *c.FlushDepthWords)
	}
	if c.BurstCapacityWords != nil && *c.BurstCapacityWords <= 0 {
		return fmt.Errorf("burst_capacity_words must be positive, got %d", *c.BurstCapacityWords)
	}
	if c.OverflowPolicy != nil {
		if _, err := burst.ParsePolicy(*c.OverflowPolicy); err != nil {
			return err
		}
	}
	if c.Framer != nil {
		switch pipeline.FramerKind(*c.Framer) {
		case pipeline.FramerBatch, pipeline.FramerStream:
		default:
			return fmt.Errorf("framer must be %q or %q, got %q", pipeline.FramerBatch, pipeline.FramerStream, *c.Framer)
		}
	}
	if c.ResyncPattern != nil {
		if _, err := ParsePattern(*c.ResyncPattern); err != nil {
			return err
		}
	}
	if _, err := resync.New(c.GetResyncPattern(), c.GetResyncLength(), c.GetResyncRepeats()); err != nil {
		return err
	}
	if c.CaptureFormat != nil {
		if _, err := capture.ParseFormat(*c.CaptureFormat); err != nil {
			return err
		}
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	if c.UDPPort != nil && (*c.UDPPort < 0 || *c.UDPPort > 65535) {
		return fmt.Errorf("udp_port must be between 0 and 65535, got %d", *c.UDPPort)
	}
	if c.MaxFrameBytes != nil && *c.MaxFrameBytes < transport.HeaderLen {
		return fmt.Errorf("max_frame_bytes must be at least %d, got %d", transport.HeaderLen, *c.MaxFrameBytes)
	}
	if c.LogLevel != nil {
		if _, err := monitoring.ParseLevel(*c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// GetClockHz returns the capture clock rate.
func (c *CaptureConfig) GetClockHz() uint64 {
	if c.ClockHz == nil {
		return 60_000_000 // ULPI clock
	}
	return *c.ClockHz
}

func (c *CaptureConfig) GetIdleTimeoutCycles() uint64 {
	if c.IdleTimeoutCycles == nil {
		return transport.DefaultIdleTimeout
	}
	return *c.IdleTimeoutCycles
}

func (c *CaptureConfig) GetFlushDepthWords() int {
	if c.FlushDepthWords == nil {
		return transport.DefaultDepth
	}
	return *c.FlushDepthWords
}

func (c *CaptureConfig) GetBurstCapacityWords() int {
	if c.BurstCapacityWords == nil {
		return burst.DefaultCapacity
	}
	return *c.BurstCapacityWords
}

func (c *CaptureConfig) GetOverflowPolicy() burst.Policy {
	if c.OverflowPolicy == nil {
		return burst.Backpressure
	}
	p, err := burst.ParsePolicy(*c.OverflowPolicy)
	if err != nil {
		return burst.Backpressure
	}
	return p
}

func (c *CaptureConfig) GetFramer() pipeline.FramerKind {
	if c.Framer == nil || *c.Framer == "" {
		return pipeline.FramerBatch
	}
	return pipeline.FramerKind(*c.Framer)
}

func (c *CaptureConfig) GetResyncPattern() uint32 {
	if c.ResyncPattern == nil {
		return resync.DefaultPattern
	}
	v, err := ParsePattern(*c.ResyncPattern)
	if err != nil {
		return resync.DefaultPattern
	}
	return v
}

func (c *CaptureConfig) GetResyncLength() int {
	if c.ResyncLength == nil {
		return resync.DefaultLength
	}
	return *c.ResyncLength
}

func (c *CaptureConfig) GetResyncRepeats() int {
	if c.ResyncRepeats == nil {
		return resync.DefaultRepeats
	}
	return *c.ResyncRepeats
}

func (c *CaptureConfig) GetCaptureFormat() capture.Format {
	if c.CaptureFormat == nil {
		return capture.FormatTagged
	}
	f, err := capture.ParseFormat(*c.CaptureFormat)
	if err != nil {
		return capture.FormatTagged
	}
	return f
}

func (c *CaptureConfig) GetSerial() capture.PortOptions {
	if c.Serial == nil {
		return capture.PortOptions{}
	}
	return *c.Serial
}

func (c *CaptureConfig) GetUDPPort() uint16 {
	if c.UDPPort == nil {
		return 7700
	}
	return uint16(*c.UDPPort)
}

func (c *CaptureConfig) GetMaxFrameBytes() int {
	if c.MaxFrameBytes == nil {
		return int(transport.DefaultLimits().MaxPayloadBytes) + transport.HeaderLen
	}
	return *c.MaxFrameBytes
}

func (c *CaptureConfig) GetForwardAddr() string {
	if c.ForwardAddr == nil {
		return ""
	}
	return *c.ForwardAddr
}

// GetGRPCAddr returns the listen address of the gRPC frame publisher, or
// "" when it is disabled.
func (c *CaptureConfig) GetGRPCAddr() string {
	if c.GRPCAddr == nil {
		return ""
	}
	return *c.GRPCAddr
}

func (c *CaptureConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

func (c *CaptureConfig) GetRecordDir() string {
	if c.RecordDir == nil {
		return ""
	}
	return *c.RecordDir
}

func (c *CaptureConfig) GetLogLevel() string {
	if c.LogLevel == nil {
		return "info"
	}
	return *c.LogLevel
}

// Limits returns the frame decode limits.
func (c *CaptureConfig) Limits() transport.Limits {
	return transport.Limits{MaxPayloadBytes: uint32(c.GetMaxFrameBytes() - transport.HeaderLen)}
}

// PipelineConfig converts the settings into a pipeline configuration.
func (c *CaptureConfig) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		FlushDepth:     c.GetFlushDepthWords(),
		IdleTimeout:    c.GetIdleTimeoutCycles(),
		BurstCapacity:  c.GetBurstCapacityWords(),
		OverflowPolicy: c.GetOverflowPolicy(),
		Framer:         c.GetFramer(),
		ResyncPattern:  c.GetResyncPattern(),
		ResyncLength:   c.GetResyncLength(),
		ResyncRepeats:  c.GetResyncRepeats(),
	}
}

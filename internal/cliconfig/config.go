package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hestia-iot/ntnrelay/internal/domain"
)

// ModeAuto reads the transport mode from the dongle.
const ModeAuto = "auto"

// Config holds CLI configuration for ntnrelay.
type Config struct {
	SerialPort    string
	BaudRate      int
	DataBits      int
	Parity        string
	StopBits      int
	SlaveID       int
	SerialTimeout time.Duration
	Password      string

	Mode string

	StateDir    string
	LockTimeout time.Duration

	PollInterval      time.Duration
	ReadinessInterval time.Duration
	DownlinkInterval  time.Duration

	MaxAttempts int
	SendTimeout time.Duration
	TriggerKeys []string

	ListenAddr string

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	Simulate bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		SerialPort:        "/dev/ttyUSB0",
		BaudRate:          115200,
		DataBits:          8,
		Parity:            "N",
		StopBits:          1,
		SlaveID:           1,
		SerialTimeout:     time.Second,
		Password:          "0000",
		Mode:              ModeAuto,
		StateDir:          "", // ~/.ntnrelay, set during Validate
		LockTimeout:       2 * time.Second,
		PollInterval:      5 * time.Second,
		ReadinessInterval: 5 * time.Second,
		DownlinkInterval:  time.Second,
		MaxAttempts:       3,
		SendTimeout:       30 * time.Second,
		TriggerKeys:       []string{"timeperiods", "gpstype"},
		LogLevel:          "info",
		LogMaxSizeMB:      1,
		LogMaxBackups:     10,
	}
}

// DefaultHome returns ~/.ntnrelay, or "" if the home directory is unknown.
func DefaultHome() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".ntnrelay")
	}
	return ""
}

// Validate checks the configuration for errors and sets derived defaults.
// Errors wrap domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		c.StateDir = DefaultHome()
		if c.StateDir == "" {
			return fmt.Errorf("%w: state-dir is required", domain.ErrInvalidConfig)
		}
	}

	if _, err := c.ServiceMode(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	if !c.Simulate && c.SerialPort == "" {
		return fmt.Errorf("%w: serial-port is required", domain.ErrInvalidConfig)
	}
	if c.SlaveID < 1 || c.SlaveID > 247 {
		return fmt.Errorf("%w: slave-id %d out of range 1-247", domain.ErrInvalidConfig, c.SlaveID)
	}
	if _, err := c.PasswordRegisters(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}

	if c.PollInterval <= 0 || c.ReadinessInterval <= 0 || c.DownlinkInterval <= 0 {
		return fmt.Errorf("%w: intervals must be positive", domain.ErrInvalidConfig)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("%w: send timeout must be positive", domain.ErrInvalidConfig)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max-attempts must be at least 1", domain.ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: log level: %w", domain.ErrInvalidConfig, err)
	}

	c.TriggerKeys = normalizeKeys(c.TriggerKeys)
	return nil
}

// ServiceMode returns the configured transport mode. Zero means auto.
func (c Config) ServiceMode() (domain.Mode, error) {
	if c.Mode == "" || strings.EqualFold(c.Mode, ModeAuto) {
		return 0, nil
	}
	return domain.ParseMode(c.Mode)
}

// PasswordRegisters returns the access password as register values, one
// decimal digit per register.
func (c Config) PasswordRegisters() ([]uint16, error) {
	regs := make([]uint16, 0, len(c.Password))
	for _, r := range c.Password {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("password must be decimal digits")
		}
		regs = append(regs, uint16(r-'0'))
	}
	return regs, nil
}

// QueueDir returns the directory holding the queue journal.
func (c Config) QueueDir() string {
	return filepath.Join(c.StateDir, "queue")
}

func normalizeKeys(keys []string) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings sets a list value if not nil and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setListFromString splits a comma-separated list.
func (s *configSetter) setListFromString(flag, value string, dst *[]string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = normalizeKeys(strings.Split(value, ","))
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

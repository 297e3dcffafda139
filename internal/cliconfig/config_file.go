package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	SerialPort    string `toml:"serial_port"`
	BaudRate      int    `toml:"baud_rate"`
	DataBits      int    `toml:"data_bits"`
	Parity        string `toml:"parity"`
	StopBits      int    `toml:"stop_bits"`
	SlaveID       int    `toml:"slave_id"`
	SerialTimeout string `toml:"serial_timeout"`
	Password      string `toml:"password"`

	Mode string `toml:"mode"`

	StateDir    string `toml:"state_dir"`
	LockTimeout string `toml:"lock_timeout"`

	PollInterval      string `toml:"poll_interval"`
	ReadinessInterval string `toml:"readiness_interval"`
	DownlinkInterval  string `toml:"downlink_interval"`

	MaxAttempts int      `toml:"max_attempts"`
	SendTimeout string   `toml:"send_timeout"`
	TriggerKeys []string `toml:"trigger_keys"`

	ListenAddr string `toml:"listen_addr"`

	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups"`

	Simulate *bool `toml:"simulate"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.ntnrelay/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h := DefaultHome(); h != "" {
		return filepath.Join(h, "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("serial-port", fc.SerialPort, &cfg.SerialPort)
	s.setString("parity", fc.Parity, &cfg.Parity)
	s.setString("password", fc.Password, &cfg.Password)
	s.setString("mode", fc.Mode, &cfg.Mode)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("listen", fc.ListenAddr, &cfg.ListenAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)
	s.setStrings("trigger-keys", fc.TriggerKeys, &cfg.TriggerKeys)

	s.setInt("baud-rate", fc.BaudRate, &cfg.BaudRate)
	s.setInt("data-bits", fc.DataBits, &cfg.DataBits)
	s.setInt("stop-bits", fc.StopBits, &cfg.StopBits)
	s.setInt("slave-id", fc.SlaveID, &cfg.SlaveID)
	s.setInt("max-attempts", fc.MaxAttempts, &cfg.MaxAttempts)
	s.setInt("log-max-size", fc.LogMaxSizeMB, &cfg.LogMaxSizeMB)
	s.setInt("log-max-backups", fc.LogMaxBackups, &cfg.LogMaxBackups)

	if err := s.setDuration("serial-timeout", fc.SerialTimeout, &cfg.SerialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("lock-timeout", fc.LockTimeout, &cfg.LockTimeout); err != nil {
		return err
	}
	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("readiness-interval", fc.ReadinessInterval, &cfg.ReadinessInterval); err != nil {
		return err
	}
	if err := s.setDuration("downlink-interval", fc.DownlinkInterval, &cfg.DownlinkInterval); err != nil {
		return err
	}
	if err := s.setDuration("send-timeout", fc.SendTimeout, &cfg.SendTimeout); err != nil {
		return err
	}

	s.setBool("simulate", fc.Simulate, &cfg.Simulate)

	return nil
}

// Reloadable is the subset of settings applied to a running relay.
type Reloadable struct {
	MaxAttempts int
	TriggerKeys []string
	LogLevel    string
}

// ReloadableFrom extracts the reloadable settings from a file, falling
// back to base for fields the file leaves unset.
func ReloadableFrom(fc FileConfig, base Config) Reloadable {
	r := Reloadable{
		MaxAttempts: base.MaxAttempts,
		TriggerKeys: base.TriggerKeys,
		LogLevel:    base.LogLevel,
	}
	if fc.MaxAttempts > 0 {
		r.MaxAttempts = fc.MaxAttempts
	}
	if fc.TriggerKeys != nil {
		r.TriggerKeys = normalizeKeys(fc.TriggerKeys)
	}
	if fc.LogLevel != "" {
		r.LogLevel = fc.LogLevel
	}
	return r
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (NTNRELAY_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("serial-port", os.Getenv("NTNRELAY_SERIAL_PORT"), &cfg.SerialPort)
	s.setString("parity", os.Getenv("NTNRELAY_PARITY"), &cfg.Parity)
	s.setString("password", os.Getenv("NTNRELAY_PASSWORD"), &cfg.Password)
	s.setString("mode", os.Getenv("NTNRELAY_MODE"), &cfg.Mode)
	s.setString("state-dir", os.Getenv("NTNRELAY_STATE_DIR"), &cfg.StateDir)
	s.setString("listen", os.Getenv("NTNRELAY_LISTEN_ADDR"), &cfg.ListenAddr)
	s.setString("log-level", os.Getenv("NTNRELAY_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-file", os.Getenv("NTNRELAY_LOG_FILE"), &cfg.LogFile)
	s.setListFromString("trigger-keys", os.Getenv("NTNRELAY_TRIGGER_KEYS"), &cfg.TriggerKeys)

	for _, d := range []struct {
		flag, env string
		dst       *int
	}{
		{"baud-rate", "NTNRELAY_BAUD_RATE", &cfg.BaudRate},
		{"data-bits", "NTNRELAY_DATA_BITS", &cfg.DataBits},
		{"stop-bits", "NTNRELAY_STOP_BITS", &cfg.StopBits},
		{"slave-id", "NTNRELAY_SLAVE_ID", &cfg.SlaveID},
		{"max-attempts", "NTNRELAY_MAX_ATTEMPTS", &cfg.MaxAttempts},
		{"log-max-size", "NTNRELAY_LOG_MAX_SIZE_MB", &cfg.LogMaxSizeMB},
		{"log-max-backups", "NTNRELAY_LOG_MAX_BACKUPS", &cfg.LogMaxBackups},
	} {
		if err := s.setIntFromString(d.flag, os.Getenv(d.env), d.dst); err != nil {
			return err
		}
	}

	if err := s.setDuration("serial-timeout", os.Getenv("NTNRELAY_SERIAL_TIMEOUT"), &cfg.SerialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("lock-timeout", os.Getenv("NTNRELAY_LOCK_TIMEOUT"), &cfg.LockTimeout); err != nil {
		return err
	}
	if err := s.setDuration("poll", os.Getenv("NTNRELAY_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("readiness-interval", os.Getenv("NTNRELAY_READINESS_INTERVAL"), &cfg.ReadinessInterval); err != nil {
		return err
	}
	if err := s.setDuration("downlink-interval", os.Getenv("NTNRELAY_DOWNLINK_INTERVAL"), &cfg.DownlinkInterval); err != nil {
		return err
	}
	if err := s.setDuration("send-timeout", os.Getenv("NTNRELAY_SEND_TIMEOUT"), &cfg.SendTimeout); err != nil {
		return err
	}

	s.setBoolFromString("simulate", os.Getenv("NTNRELAY_SIMULATE"), &cfg.Simulate)

	return nil
}

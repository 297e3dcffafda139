package cliconfig

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				SerialPort:   "/dev/ttyUSB1",
				BaudRate:     9600,
				Mode:         "udp",
				LockTimeout:  "500ms",
				MaxAttempts:  4,
				TriggerKeys:  []string{"timeperiods"},
				ListenAddr:   ":8080",
				LogMaxSizeMB: 5,
				Simulate:     &trueVal,
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				SerialPort:   "/dev/ttyUSB1",
				BaudRate:     9600,
				Mode:         "udp",
				LockTimeout:  500 * time.Millisecond,
				MaxAttempts:  4,
				TriggerKeys:  []string{"timeperiods"},
				ListenAddr:   ":8080",
				LogMaxSizeMB: 5,
				Simulate:     true,
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				SerialPort:  "/dev/file",
				MaxAttempts: 9,
			},
			changed: map[string]bool{"serial-port": true},
			initial: Config{
				SerialPort:  "/dev/flag",
				MaxAttempts: 3,
			},
			expected: Config{
				SerialPort:  "/dev/flag", // unchanged because flag was set
				MaxAttempts: 9,
			},
		},
		{
			name:       "rejects bad duration",
			fileConfig: FileConfig{SendTimeout: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyFileConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyFileConfig() unexpected error: %v", err)
				return
			}
			if !tt.wantErr && !reflect.DeepEqual(cfg, tt.expected) {
				t.Errorf("ApplyFileConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.toml")

	tomlContent := `
serial_port = "/dev/ttyUSB0"
mode = "nidd"
poll_interval = "5s"
max_attempts = 3
trigger_keys = ["timeperiods", "gpstype"]
simulate = true
`

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.SerialPort != "/dev/ttyUSB0" {
		t.Errorf("SerialPort = %v, want /dev/ttyUSB0", fc.SerialPort)
	}
	if fc.Mode != "nidd" {
		t.Errorf("Mode = %v, want nidd", fc.Mode)
	}
	if fc.PollInterval != "5s" {
		t.Errorf("PollInterval = %v, want 5s", fc.PollInterval)
	}
	if fc.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %v, want 3", fc.MaxAttempts)
	}
	if !reflect.DeepEqual(fc.TriggerKeys, []string{"timeperiods", "gpstype"}) {
		t.Errorf("TriggerKeys = %v", fc.TriggerKeys)
	}
	if fc.Simulate == nil || *fc.Simulate != true {
		t.Errorf("Simulate = %v, want true", fc.Simulate)
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	_, err := LoadFileConfig("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("LoadFileConfig() expected error for nonexistent file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.toml")

	invalidContent := `
mode = "udp"
this is not valid toml
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	_, err := LoadFileConfig(configPath)
	if err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestReloadableFrom(t *testing.T) {
	base := DefaultConfig()

	r := ReloadableFrom(FileConfig{}, base)
	if r.MaxAttempts != 3 || r.LogLevel != "info" || !reflect.DeepEqual(r.TriggerKeys, base.TriggerKeys) {
		t.Errorf("ReloadableFrom(empty) = %+v, want base values", r)
	}

	r = ReloadableFrom(FileConfig{MaxAttempts: 7, TriggerKeys: []string{" reboot "}, LogLevel: "debug"}, base)
	if r.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %v, want 7", r.MaxAttempts)
	}
	if !reflect.DeepEqual(r.TriggerKeys, []string{"reboot"}) {
		t.Errorf("TriggerKeys = %q", r.TriggerKeys)
	}
	if r.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug", r.LogLevel)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if path != "" && !strings.Contains(path, ".ntnrelay") {
		t.Errorf("DefaultConfigPath() = %v, should contain .ntnrelay", path)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "exists.txt")

	if err := os.WriteFile(existingFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !FileExists(existingFile) {
		t.Error("FileExists() = false, want true for existing file")
	}

	if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("FileExists() = true, want false for nonexistent file")
	}
}

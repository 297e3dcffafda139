package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/hestia-iot/ntnrelay/internal/cliconfig"
)

func testCommand(cfg *cliconfig.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&cfg.SerialPort, "serial-port", cfg.SerialPort, "")
	cmd.Flags().IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "")
	return cmd
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "serial_port = \"/dev/file\"\nmax_attempts = 4\nmode = \"nidd\"\nstate_dir = \"" + dir + "\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NTNRELAY_MODE", "udp")

	cfg := cliconfig.DefaultConfig()
	cmd := testCommand(&cfg)
	if err := cmd.ParseFlags([]string{"--serial-port", "/dev/flag"}); err != nil {
		t.Fatal(err)
	}

	got, err := loadConfig(cmd, &cfg, path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if got != path {
		t.Errorf("config path = %v, want %v", got, path)
	}
	if cfg.SerialPort != "/dev/flag" {
		t.Errorf("SerialPort = %v, want /dev/flag", cfg.SerialPort)
	}
	if cfg.Mode != "udp" {
		t.Errorf("Mode = %v, want udp", cfg.Mode)
	}
	if cfg.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %v, want 4", cfg.MaxAttempts)
	}
	if cfg.StateDir != dir {
		t.Errorf("StateDir = %v, want %v", cfg.StateDir, dir)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	cfg := cliconfig.DefaultConfig()
	if _, err := loadConfig(testCommand(&cfg), &cfg, "/nonexistent/config.toml"); err == nil {
		t.Error("loadConfig() expected error for missing explicit config file")
	}
}

func TestModbusConfig(t *testing.T) {
	cfg := cliconfig.DefaultConfig()
	cfg.SerialPort = "/dev/ttyAMA0"
	cfg.Parity = "e"
	cfg.SlaveID = 7
	cfg.Password = "1234"

	m, err := modbusConfig(cfg)
	if err != nil {
		t.Fatalf("modbusConfig() error = %v", err)
	}
	if m.Port != "/dev/ttyAMA0" || m.Parity != "E" || m.SlaveID != 7 {
		t.Errorf("modbusConfig() = %+v", m)
	}
	if len(m.Password) != 4 || m.Password[3] != 4 {
		t.Errorf("Password = %v, want [1 2 3 4]", m.Password)
	}
}

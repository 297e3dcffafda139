package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	logAdapter "github.com/hestia-iot/ntnrelay/internal/adapters/log"
	"github.com/hestia-iot/ntnrelay/internal/adapters/modbus"
	"github.com/hestia-iot/ntnrelay/internal/adapters/simdriver"
	"github.com/hestia-iot/ntnrelay/internal/app"
	"github.com/hestia-iot/ntnrelay/internal/cliconfig"
	"github.com/hestia-iot/ntnrelay/internal/configwatch"
	"github.com/hestia-iot/ntnrelay/internal/domain"
	"github.com/hestia-iot/ntnrelay/internal/httpapi"
	"github.com/hestia-iot/ntnrelay/internal/ports"
	"github.com/hestia-iot/ntnrelay/pkg/relay"
)

const longHelp = `Relay network measurements through an NTN satellite dongle.

ntnrelay keeps a crash-safe queue of outbound measurements and transmits
them over the dongle's Modbus RTU link only while the dongle reports full
readiness. Inbound downlink messages are decoded, recorded and can trigger
a new measurement capture. Settings come from flags, NTNRELAY_* variables
and $HOME/.ntnrelay/config.toml, in that order of precedence.`

var exampleUsage = strings.TrimSpace(`
  ntnrelay --serial-port /dev/ttyUSB0 --mode udp --listen :8080
  ntnrelay --simulate --listen 127.0.0.1:8080 --log-level debug
  ntnrelay queue list
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:          "ntnrelay",
		Short:        "Relay network measurements through an NTN satellite dongle",
		Long:         longHelp,
		Example:      exampleUsage,
		Version:      fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, err := loadConfig(cmd, &cfg, cfgPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.ntnrelay/config.toml)")
	flags.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory (default: $HOME/.ntnrelay)")
	flags.DurationVar(&cfg.LockTimeout, "lock-timeout", cfg.LockTimeout, "queue lock wait bound")
	flags.StringVar(&cfg.SerialPort, "serial-port", cfg.SerialPort, "dongle serial device")
	flags.IntVar(&cfg.BaudRate, "baud-rate", cfg.BaudRate, "serial baud rate")
	flags.IntVar(&cfg.DataBits, "data-bits", cfg.DataBits, "serial data bits")
	flags.StringVar(&cfg.Parity, "parity", cfg.Parity, "serial parity (N, E or O)")
	flags.IntVar(&cfg.StopBits, "stop-bits", cfg.StopBits, "serial stop bits")
	flags.IntVar(&cfg.SlaveID, "slave-id", cfg.SlaveID, "Modbus slave id")
	flags.DurationVar(&cfg.SerialTimeout, "serial-timeout", cfg.SerialTimeout, "Modbus request timeout")
	flags.StringVar(&cfg.Password, "password", cfg.Password, "dongle access password digits")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.BoolVar(&cfg.Simulate, "simulate", cfg.Simulate, "use an in-memory dongle instead of a serial port")

	root.Flags().StringVar(&cfg.Mode, "mode", cfg.Mode, "transport mode: auto, nidd or udp")
	root.Flags().DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "uplink cycle interval")
	root.Flags().DurationVar(&cfg.ReadinessInterval, "readiness-interval", cfg.ReadinessInterval, "status register poll interval")
	root.Flags().DurationVar(&cfg.DownlinkInterval, "downlink-interval", cfg.DownlinkInterval, "downlink poll interval")
	root.Flags().IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "failed sends before an item is dropped")
	root.Flags().DurationVar(&cfg.SendTimeout, "send-timeout", cfg.SendTimeout, "wait bound for one uplink response")
	root.Flags().StringSliceVar(&cfg.TriggerKeys, "trigger-keys", cfg.TriggerKeys, "downlink keys that trigger a capture")
	root.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP API address (empty disables the API)")
	root.Flags().StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "also log to this file, rotated by size")
	root.Flags().IntVar(&cfg.LogMaxSizeMB, "log-max-size", cfg.LogMaxSizeMB, "log file size in MB before rotation")
	root.Flags().IntVar(&cfg.LogMaxBackups, "log-max-backups", cfg.LogMaxBackups, "rotated log files to keep")

	root.AddCommand(newQueueCmd(&cfg, &cfgPath), newIdentifyCmd(&cfg, &cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ntnrelay:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg cliconfig.Config, cfgFile string) error {
	zl, err := logAdapter.New(logAdapter.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		return err
	}
	logger := logAdapter.NewZerologAdapterWithLogger(zl)

	logCfg := cfg
	logCfg.Password = "*****"
	zl.Info().Interface("config", logCfg).Msg("configuration")

	driver, closeDriver, err := newDriver(cfg, logger.With("driver"))
	if err != nil {
		return err
	}
	defer closeDriver()

	mode, _ := cfg.ServiceMode()
	r, err := relay.New(relay.Config{
		StateDir:          cfg.QueueDir(),
		LockTimeout:       cfg.LockTimeout,
		Mode:              mode,
		ReadinessInterval: cfg.ReadinessInterval,
		PollInterval:      cfg.PollInterval,
		DownlinkInterval:  cfg.DownlinkInterval,
		MaxAttempts:       cfg.MaxAttempts,
		SendTimeout:       cfg.SendTimeout,
		TriggerKeys:       cfg.TriggerKeys,
	}, driver, relay.WithLogger(logger.With("relay")), relay.WithMetrics())
	if err != nil {
		return fmt.Errorf("create relay: %w", err)
	}
	defer r.Close()

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}

	var api *httpapi.Server
	if cfg.ListenAddr != "" {
		api = httpapi.NewServer(cfg.ListenAddr, httpapi.NewRouter(r, logger.With("api")), logger.With("api"))
		api.Start()
	}

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		w := configwatch.New(configwatch.Config{Path: cfgFile}, cfg, func(rl cliconfig.Reloadable) {
			r.SetMaxAttempts(rl.MaxAttempts)
			r.SetTriggerKeys(rl.TriggerKeys)
			if err := logAdapter.SetLevel(rl.LogLevel); err != nil {
				logger.Warn("ignoring reloaded log level", ports.String("level", rl.LogLevel), ports.Err(err))
			}
		}, logger.With("config"))
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Warn("config watcher disabled", ports.Err(err))
			}
		}()
	}

	<-ctx.Done()
	zl.Info().Msg("received signal, stopping...")

	if api != nil {
		if err := api.Stop(context.Background()); err != nil {
			logger.Warn("api shutdown", ports.Err(err))
		}
	}
	if err := r.Stop(); err != nil {
		return fmt.Errorf("stop relay: %w", err)
	}
	if r.Status() == app.StateCrashed {
		zl.Error().Msg("relay crashed")
	}
	return nil
}

// newDriver returns the dongle driver and a function releasing it.
func newDriver(cfg cliconfig.Config, logger ports.Logger) (ports.Driver, func(), error) {
	if cfg.Simulate {
		mode, _ := cfg.ServiceMode()
		if mode == 0 {
			mode = domain.ModeUDP
		}
		sim := simdriver.New(mode)
		sim.SetReady()
		logger.Info("using simulated dongle", ports.String("mode", mode.String()))
		return sim, func() {}, nil
	}

	mcfg, err := modbusConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	d := modbus.New(mcfg, logger)
	return d, func() { _ = d.Close() }, nil
}

func modbusConfig(cfg cliconfig.Config) (modbus.Config, error) {
	password, err := cfg.PasswordRegisters()
	if err != nil {
		return modbus.Config{}, err
	}
	mcfg := modbus.DefaultConfig()
	mcfg.Port = cfg.SerialPort
	mcfg.BaudRate = cfg.BaudRate
	mcfg.DataBits = cfg.DataBits
	mcfg.Parity = strings.ToUpper(cfg.Parity)
	mcfg.StopBits = cfg.StopBits
	mcfg.SlaveID = byte(cfg.SlaveID)
	mcfg.Timeout = cfg.SerialTimeout
	mcfg.Password = password
	return mcfg, nil
}

// cliLogger is the logger for one-shot subcommands.
func cliLogger(cfg cliconfig.Config) *logAdapter.ZerologAdapter {
	zl, err := logAdapter.New(logAdapter.Options{Level: cfg.LogLevel})
	if err != nil {
		zl = zerolog.Nop()
	}
	return logAdapter.NewZerologAdapterWithLogger(zl)
}

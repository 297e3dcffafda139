package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hestia-iot/ntnrelay/internal/adapters/modbus"
	"github.com/hestia-iot/ntnrelay/internal/cliconfig"
	"github.com/hestia-iot/ntnrelay/internal/domain"
)

// newIdentifyCmd reads the dongle's identity, status and network
// registers once and prints them.
func newIdentifyCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Print the dongle model, firmware, status and network info",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if _, err := loadConfig(c, cfg, *cfgPath); err != nil {
				return err
			}
			if cfg.Simulate {
				return fmt.Errorf("identify needs a serial dongle")
			}
			mcfg, err := modbusConfig(*cfg)
			if err != nil {
				return err
			}
			d := modbus.New(mcfg, cliLogger(*cfg).With("driver"))
			defer d.Close()

			ctx, cancel := context.WithTimeout(c.Context(), timeout)
			defer cancel()

			id, err := d.Identify(ctx)
			if err != nil {
				return err
			}
			mode, err := d.ServiceMode(ctx)
			if err != nil {
				return err
			}
			raw, err := d.ReadRegisters(ctx)
			if err != nil {
				return err
			}
			network, err := d.ReadNetworkInfo(ctx)
			if err != nil {
				return err
			}
			snap := domain.NewReadinessSnapshot(raw, mode, time.Now())

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Identity  modbus.Identity          `json:"identity"`
				Readiness domain.ReadinessSnapshot `json:"readiness"`
				Network   domain.NetworkInfo       `json:"network"`
			}{id, snap, network})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall wait bound")
	return cmd
}

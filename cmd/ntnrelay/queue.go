package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hestia-iot/ntnrelay/internal/cliconfig"
	"github.com/hestia-iot/ntnrelay/internal/queue"
)

// newQueueCmd inspects or clears the queue journal. It is safe to run
// while the daemon is running; both sides take the journal lock.
func newQueueCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or clear the outbound queue",
	}

	var n int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print queued items as JSON, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			q, err := openQueue(c, cfg, *cfgPath)
			if err != nil {
				return err
			}
			defer q.Close()

			items, err := q.Snapshot(n)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		},
	}
	listCmd.Flags().IntVarP(&n, "n", "n", 0, "print at most n items (0 prints all)")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every queued item",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			q, err := openQueue(c, cfg, *cfgPath)
			if err != nil {
				return err
			}
			defer q.Close()

			removed, err := q.Clear()
			if err != nil {
				return err
			}
			fmt.Printf("removed %d item(s)\n", removed)
			return nil
		},
	}

	cmd.AddCommand(listCmd, clearCmd)
	return cmd
}

func openQueue(c *cobra.Command, cfg *cliconfig.Config, cfgPath string) (*queue.Queue, error) {
	if _, err := loadConfig(c, cfg, cfgPath); err != nil {
		return nil, err
	}
	return queue.Open(cfg.QueueDir(), queue.Options{
		LockTimeout: cfg.LockTimeout,
		Logger:      cliLogger(*cfg).With("queue"),
	})
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/orpheus-re/orpheus/internal/tui"
	"github.com/orpheus-re/orpheus/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var address uint64
	var size int
	var name string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a memory address for changes and render a live dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePid(); err != nil {
				return err
			}
			if size <= 0 || size > 1024 {
				return fmt.Errorf("--size must be in [1, 1024]")
			}

			o := newOrchestrator()
			w := o.Watcher(pid)
			w.AddWatch(address, size, watch.Value, name)

			return tui.Run(w, interval)
		},
	}

	cmd.Flags().Uint64Var(&address, "address", 0, "address to watch")
	cmd.Flags().IntVar(&size, "size", 4, "watch region size in bytes (1-1024)")
	cmd.Flags().StringVar(&name, "name", "", "watch name (default auto-generated)")
	cmd.Flags().DurationVar(&interval, "interval", 250*time.Millisecond, "poll interval")
	return cmd
}

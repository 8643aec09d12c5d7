package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orpheus-re/orpheus/internal/ui/colorize"
)

func newPatternCmd() *cobra.Command {
	var base, size uint64

	cmd := &cobra.Command{
		Use:   "pattern <ida-pattern>",
		Short: "Scan a memory range for an IDA-style masked byte pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePid(); err != nil {
				return err
			}
			o := newOrchestrator()
			h := o.StartScan()
			defer o.FinishScan(h)

			addrs, err := o.ScanPattern(pid, args[0], base, size, h)
			if err != nil {
				return err
			}
			for _, a := range addrs {
				fmt.Println(colorize.Address(a))
			}
			fmt.Printf("%d match(es)\n", len(addrs))
			return nil
		},
	}

	cmd.Flags().Uint64Var(&base, "base", 0, "range start address")
	cmd.Flags().Uint64Var(&size, "size", 0, "range size in bytes")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orpheus-re/orpheus/internal/rtti"
	"github.com/orpheus-re/orpheus/internal/ui/colorize"
)

func newRttiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rtti <module-base>",
		Short: "Recover MSVC x64 RTTI classes from a module's vtables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePid(); err != nil {
				return err
			}
			base, err := parseHexOrDec(args[0])
			if err != nil {
				return err
			}
			o := newOrchestrator()
			h := o.StartScan()
			defer o.FinishScan(h)

			classes := o.ScanRtti(pid, base, func(c rtti.ClassInfo) {
				fmt.Printf("%s  %s  %s\n",
					colorize.Address(c.VtableAddress),
					colorize.FuncName(c.DemangledName),
					colorize.Detail(c.Flags()))
			}, h)
			fmt.Printf("%d class(es)\n", len(classes))
			return nil
		},
	}
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExprCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expr <expression>",
		Short: `Evaluate an address expression, e.g. "0x140000000 + 0x10" or "[0x140000000 + 8]"`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePid(); err != nil {
				return err
			}
			o := newOrchestrator()
			v, err := o.EvalExpr(pid, args[0], nil)
			if err != nil {
				return err
			}
			fmt.Printf("0x%x\n", v)
			return nil
		},
	}
	return cmd
}

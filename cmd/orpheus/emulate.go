package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/orpheus-re/orpheus/internal/emulator"
	"github.com/orpheus-re/orpheus/internal/ui/colorize"
)

func newEmulateCmd() *cobra.Command {
	var start, end uint64
	var maxInsn uint64
	var timeout time.Duration
	var showTrace bool

	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Emulate a short x64 code fragment, faulting in pages from the target on demand",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePid(); err != nil {
				return err
			}
			if start == 0 || end == 0 {
				return fmt.Errorf("--start and --end are required")
			}

			o := newOrchestrator()
			emu, err := o.NewEmulator(pid, emulator.DefaultConfig())
			if err != nil {
				return fmt.Errorf("create emulator: %w", err)
			}
			defer emu.Close()

			if showTrace {
				emu.EnableTrace()
			}

			result := emu.Run(start, end, emulator.RunOptions{MaxInstructions: maxInsn, Timeout: timeout})

			if showTrace {
				for _, ev := range emu.Events() {
					fmt.Printf("%s  %s\n", colorize.Address(ev.PC), colorize.Instruction(ev.Name))
				}
			}

			fmt.Printf("instructions executed: %d  stopped: %v\n", result.InstructionsExecuted, result.Stopped)
			if result.Err != nil {
				fmt.Printf("error: %v\n", result.Err)
			}
			r := result.Registers
			fmt.Printf("rax=0x%x rbx=0x%x rcx=0x%x rdx=0x%x rip=0x%x rsp=0x%x\n",
				r.RAX, r.RBX, r.RCX, r.RDX, r.RIP, r.RSP)
			fmt.Printf("accessed pages: %d\n", len(emu.AccessedPages()))
			return nil
		},
	}

	cmd.Flags().Uint64Var(&start, "start", 0, "start address")
	cmd.Flags().Uint64Var(&end, "end", 0, "end address")
	cmd.Flags().Uint64Var(&maxInsn, "max-insn", 0, "instruction count budget (0 = unbounded)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "wall-clock budget (0 = unbounded)")
	cmd.Flags().BoolVar(&showTrace, "trace", false, "print a disassembled instruction trace")
	return cmd
}

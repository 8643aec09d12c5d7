// Command orpheus is a CLI front end for the reverse-engineering
// workbench: pattern search, string extraction, PE parsing, RTTI
// recovery, memory watching, and short-fragment emulation against a live
// process's memory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orpheus-re/orpheus/internal/dma"
	"github.com/orpheus-re/orpheus/internal/log"
	"github.com/orpheus-re/orpheus/internal/orchestrator"
)

var (
	verbose bool
	pid     uint32
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "orpheus",
		Short: "Inspect a foreign process's memory: patterns, strings, PE images, RTTI, watches, emulation",
		Long: `orpheus reads a target process's address space through a pluggable
byte-oriented reader (local /proc/<pid>/mem by default; a real DMA
backend is a separate integration, out of scope here) and runs a
collection of analyses over those bytes:

  pattern   IDA-style masked byte-pattern search
  strings   ASCII/UTF-16LE string extraction
  pe        PE image header/import/export inspection and dumping
  rtti      MSVC x64 RTTI (COL-based) class recovery
  watch     live field watching with change history
  emulate   short x64 code fragment emulation with memory faulted in on demand
  expr      evaluate an address expression against the target's memory`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.Init(verbose)
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug logging")
	rootCmd.PersistentFlags().Uint32VarP(&pid, "pid", "p", 0, "target process id")

	rootCmd.AddCommand(
		newPatternCmd(),
		newStringsCmd(),
		newPeCmd(),
		newRttiCmd(),
		newWatchCmd(),
		newEmulateCmd(),
		newExprCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newOrchestrator builds a façade over the default local reader. A future
// integration can swap in a real PCIe DMA-backed dma.Reader here without
// touching any subcommand.
func newOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(dma.NewProcFSReader())
}

func requirePid() error {
	if pid == 0 {
		return fmt.Errorf("--pid is required")
	}
	return nil
}

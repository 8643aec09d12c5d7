package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orpheus-re/orpheus/internal/strscan"
	"github.com/orpheus-re/orpheus/internal/ui/colorize"
)

func newStringsCmd() *cobra.Command {
	var base, size uint64
	var minLen, maxLen int
	var asciiOnly, utf16Only bool

	cmd := &cobra.Command{
		Use:   "strings",
		Short: "Extract printable ASCII/UTF-16LE strings from a memory range",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePid(); err != nil {
				return err
			}
			opts := strscan.DefaultOptions()
			if minLen > 0 {
				opts.MinLength = minLen
			}
			if maxLen > 0 {
				opts.MaxLength = maxLen
			}
			if asciiOnly {
				opts.ScanUTF16LE = false
			}
			if utf16Only {
				opts.ScanASCII = false
			}

			o := newOrchestrator()
			h := o.StartScan()
			defer o.FinishScan(h)

			found, err := o.ScanStrings(pid, base, size, opts, h)
			if err != nil {
				return err
			}
			for _, f := range found {
				fmt.Printf("%s  [%s]  %s\n", colorize.Address(f.Address), f.Encoding, colorize.String(f.Value))
			}
			fmt.Printf("%d string(s)\n", len(found))
			return nil
		},
	}

	cmd.Flags().Uint64Var(&base, "base", 0, "range start address")
	cmd.Flags().Uint64Var(&size, "size", 0, "range size in bytes")
	cmd.Flags().IntVar(&minLen, "min", 0, "minimum string length")
	cmd.Flags().IntVar(&maxLen, "max", 0, "maximum string length")
	cmd.Flags().BoolVar(&asciiOnly, "ascii-only", false, "only extract ASCII strings")
	cmd.Flags().BoolVar(&utf16Only, "utf16-only", false, "only extract UTF-16LE strings")
	return cmd
}

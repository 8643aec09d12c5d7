package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orpheus-re/orpheus/internal/peimage"
	"github.com/orpheus-re/orpheus/internal/ui/colorize"
)

func newPeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pe <base>",
		Short: "Parse and inspect a PE image mapped in the target process",
	}

	cmd.AddCommand(newPeHeadersCmd(), newPeImportsCmd(), newPeExportsCmd(), newPeDumpCmd())
	return cmd
}

func openImage(base uint64) (*peimage.Image, error) {
	if err := requirePid(); err != nil {
		return nil, err
	}
	return newOrchestrator().OpenImage(pid, base)
}

func newPeHeadersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "headers <base>",
		Short: "Print PE headers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := parseHexOrDec(args[0])
			if err != nil {
				return err
			}
			img, err := openImage(base)
			if err != nil {
				return err
			}
			fmt.Printf("%s 64-bit: %v\n", colorize.Header("Image"), img.Is64Bit())
			fmt.Printf("  EntryPoint: %s\n", colorize.Address(uint64(img.EntryPoint())))
			fmt.Printf("  SizeOfImage: 0x%x\n", img.ImageSize())
			for _, s := range img.SectionInfos() {
				fmt.Printf("  section %-10s va=%s vsize=0x%x raw=0x%x\n",
					s.Name, colorize.Address(uint64(s.VirtualAddress)), s.VirtualSize, s.RawSize)
			}
			return nil
		},
	}
}

func newPeImportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "imports <base>",
		Short: "Print imported modules and functions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := parseHexOrDec(args[0])
			if err != nil {
				return err
			}
			img, err := openImage(base)
			if err != nil {
				return err
			}
			for _, m := range img.Imports() {
				fmt.Printf("%s\n", colorize.FuncName(m.Name))
				for _, fn := range m.Functions {
					if fn.ByOrdinal {
						fmt.Printf("  #%d\n", fn.Ordinal)
					} else {
						fmt.Printf("  %s\n", fn.Name)
					}
				}
			}
			return nil
		},
	}
}

func newPeExportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exports <base>",
		Short: "Print exported functions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := parseHexOrDec(args[0])
			if err != nil {
				return err
			}
			img, err := openImage(base)
			if err != nil {
				return err
			}
			for _, e := range img.Exports() {
				if e.IsForwarder {
					fmt.Printf("%s  %s -> %s\n", colorize.Address(e.Address), e.Name, e.ForwarderName)
				} else {
					fmt.Printf("%s  %s\n", colorize.Address(e.Address), e.Name)
				}
			}
			return nil
		},
	}
}

func newPeDumpCmd() *cobra.Command {
	var rebuild bool
	var out string

	cmd := &cobra.Command{
		Use:   "dump <base>",
		Short: "Dump the mapped PE image to disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := parseHexOrDec(args[0])
			if err != nil {
				return err
			}
			img, err := openImage(base)
			if err != nil {
				return err
			}
			opts := peimage.DefaultDumpOptions()
			opts.UnmapSections = rebuild
			data := img.Dump(opts)
			if len(data) == 0 {
				return fmt.Errorf("dump failed: %s", img.LastError())
			}
			if out == "" {
				out = "dump.bin"
			}
			return os.WriteFile(out, data, 0o644)
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", true, "lay out sections as a file image instead of raw memory layout")
	cmd.Flags().StringVar(&out, "out", "", "output file (default dump.bin)")
	return cmd
}

func parseHexOrDec(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "0x%x", &v)
	if err == nil {
		return v, nil
	}
	_, err = fmt.Sscanf(s, "%d", &v)
	return v, err
}

// Command rv32i loads an RV32I ELF32 binary and interprets it,
// printing whatever it writes via the write-integer/write-string
// ECALLs and exiting with its declared exit code. The CLI surface
// (subcommand routing, flags) is built on github.com/spf13/cobra the
// way oisee-z80-optimizer/cmd/z80opt/main.go structures its
// subcommands, replacing LMMilewski-riscv-emu/main.go's flat
// flag.String/flag.Int surface now that there's more than one verb
// (run, disasm, compliance).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lmrv32/rv32i-emu/internal/compliance"
	"github.com/lmrv32/rv32i-emu/internal/debugger"
	"github.com/lmrv32/rv32i-emu/internal/exec"
	"github.com/lmrv32/rv32i-emu/internal/isa"
	"github.com/lmrv32/rv32i-emu/internal/loader"
	"github.com/lmrv32/rv32i-emu/internal/machine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rv32i",
		Short:        "rv32i — an RV32I ELF interpreter",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newDisasmCmd())
	root.AddCommand(newComplianceCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var maxSteps uint64
	var interactive bool
	var debugRegs bool

	cmd := &cobra.Command{
		Use:   "run <elf-binary>",
		Short: "Load and execute an RV32I ELF32 program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			m := machine.NewFromImage(img)
			if debugRegs {
				m.Debug |= machine.DebugRegs | machine.DebugInstr | machine.DebugStep
			}

			if interactive {
				return debugger.New(m, exec.Execute).Run()
			}

			runErr := m.Run(exec.Execute, maxSteps)
			// Run returns an error both on decode failure (m.Halted is
			// also set, with exit code 1) and on an exceeded step
			// budget (m.Halted stays false). Only the latter is a
			// host-side failure; the former still reports through the
			// process exit code below.
			if runErr != nil && !m.Halted {
				return runErr
			}
			os.Exit(int(m.ExitCode & 0xff))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&maxSteps, "max-steps", 0, "stop after this many instructions (0 = unbounded)")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "single-step interactively instead of running to completion")
	cmd.Flags().BoolVar(&debugRegs, "debug", false, "print a register dump before every instruction")
	return cmd
}

func newDisasmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm <elf-binary>",
		Short: "Disassemble every code segment of an RV32I ELF32 program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			for _, seg := range img.Segments {
				if seg.Kind != machine.SegmentCode {
					continue
				}
				for off := 0; off+4 <= len(seg.Bytes); off += 4 {
					word := uint32(seg.Bytes[off]) | uint32(seg.Bytes[off+1])<<8 |
						uint32(seg.Bytes[off+2])<<16 | uint32(seg.Bytes[off+3])<<24
					addr := seg.VAddr + uint32(off)
					fmt.Printf("%#08x:\t%#08x\t%s\n", addr, word, isa.Disassemble(word))
				}
			}
			return nil
		},
	}
	return cmd
}

func newComplianceCmd() *cobra.Command {
	var glob string
	var maxSteps uint64

	cmd := &cobra.Command{
		Use:   "compliance <dir>",
		Short: "Run every rv32ui-p-* binary in a directory and report pass/fail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := compliance.RunDir(args[0], glob, maxSteps)
			if err != nil {
				return err
			}
			failures := 0
			for _, r := range results {
				status := "PASS"
				if !r.Passed() {
					status = "FAIL"
					failures++
				}
				fmt.Printf("%-4s %-40s exit=%d steps=%d %v\n", status, r.Name, r.ExitCode, r.Steps, r.Err)
			}
			fmt.Printf("%d/%d passed\n", len(results)-failures, len(results))
			if failures > 0 {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&glob, "glob", "rv32ui-p-*", "filename glob selecting which binaries to run")
	cmd.Flags().Uint64Var(&maxSteps, "max-steps", 1_000_000, "per-binary instruction ceiling before declaring a hang")
	return cmd
}

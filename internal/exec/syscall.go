package exec

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/lmrv32/rv32i-emu/internal/isa"
	"github.com/lmrv32/rv32i-emu/internal/machine"
)

// ErrUnsupportedFD indicates a write syscall named a file descriptor
// other than stdout/stderr, following bassosimone-risc32/pkg/vm.go's
// ErrNotPermitted/ErrSIGSEGV sentinel style for host-fatal conditions.
var ErrUnsupportedFD = errors.New("exec: unsupported file descriptor")

// syscall dispatches an ECALL by the selector in x17 (a7), with
// arguments in x10..x12 (a0..a2). This mirrors
// LMMilewski-riscv-emu/rvi.go's ecall function's structure (switch on
// the a7 selector, resolve fd to an io.Writer). The selectors are
// 1 write-integer, 64 write-string and 93 exit; the write-string and
// exit numbers are the same as LMMilewski-riscv-emu's (0x40 write,
// 0x5D exit).
func syscall(m *machine.Machine) error {
	switch selector := m.X[isa.A7]; selector {
	case 1: // write-integer
		out, err := stream(m, m.X[isa.A0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d", int32(m.X[isa.A1]))
		return nil

	case 64: // write-string
		out, err := stream(m, m.X[isa.A0])
		if err != nil {
			return err
		}
		addr, n := m.X[isa.A1], m.X[isa.A2]
		if _, err := out.Write(m.Mem.ReadBytes(addr, int(n))); err != nil {
			return fmt.Errorf("exec: write-string syscall failed: %w", err)
		}
		return nil

	case 93: // exit
		m.Halted = true
		m.ExitCode = m.X[isa.A0]
		return nil

	default:
		log.Printf("exec: ignoring unrecognized ecall selector %d (%#x)", selector, selector)
		return nil
	}
}

func stream(m *machine.Machine, fd uint32) (io.Writer, error) {
	switch fd {
	case 1:
		return m.Stdout, nil
	case 2:
		return m.Stderr, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFD, fd)
	}
}

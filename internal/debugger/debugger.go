// Package debugger implements an interactive single-stepper for a
// Machine. Its command vocabulary (n/next, c/continue, r/regs,
// b/break <addr>, q/quit) is modeled on KTStephano-GVM/vm/run.go's
// RunProgramDebugMode; raw
// stdin handling (so a single keypress steps the machine instead of
// requiring Enter) is borrowed from
// IntuitionAmiga-IntuitionEngine/terminal_host.go's use of
// golang.org/x/term.MakeRaw.
package debugger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/lmrv32/rv32i-emu/internal/isa"
	"github.com/lmrv32/rv32i-emu/internal/machine"
)

// Debugger drives a Machine one instruction at a time under operator
// control.
type Debugger struct {
	m           *machine.Machine
	exec        machine.Executor
	breakpoints map[uint32]struct{}
	out         io.Writer
	fd          int
}

// New returns a Debugger for m, executing each stepped instruction
// with exec.
func New(m *machine.Machine, exec machine.Executor) *Debugger {
	return &Debugger{
		m:           m,
		exec:        exec,
		breakpoints: make(map[uint32]struct{}),
		out:         os.Stdout,
		fd:          int(os.Stdin.Fd()),
	}
}

// Run starts the REPL and blocks until the machine halts or the
// operator quits. It only switches stdin into raw single-keystroke
// mode when stdin is actually a terminal; redirected/piped input
// falls back to line-buffered commands.
func (d *Debugger) Run() error {
	interactive := term.IsTerminal(d.fd)
	if interactive {
		oldState, err := term.MakeRaw(d.fd)
		if err != nil {
			return fmt.Errorf("debugger: can't set raw mode: %w", err)
		}
		defer term.Restore(d.fd, oldState)
	}

	if interactive {
		// Single-keystroke mode has no way to carry an address argument.
		fmt.Fprintln(d.out, "commands: n(ext)  c(ontinue)  r(egs)  q(uit)")
	} else {
		fmt.Fprintln(d.out, "commands: n(ext)  c(ontinue)  r(egs)  b <hex addr>  q(uit)")
	}
	d.printState()

	reader := bufio.NewReader(os.Stdin)
	for {
		cmd, arg, err := readCommand(reader, interactive)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch cmd {
		case "", "n", "next":
			if err := d.m.Step(d.exec); err != nil {
				fmt.Fprintln(d.out, err)
				return nil
			}
			d.printState()
		case "c", "continue":
			return d.continueToBreakpoint()
		case "b", "break":
			addr, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(arg), "0x"), 16, 32)
			if err != nil {
				fmt.Fprintf(d.out, "bad address %q: %v\n", arg, err)
				continue
			}
			d.breakpoints[uint32(addr)] = struct{}{}
			fmt.Fprintf(d.out, "breakpoint set at %#x\n", addr)
		case "r", "regs":
			d.m.Debug |= machine.DebugRegs
			fmt.Fprintln(d.out, d.m)
		case "q", "quit":
			return nil
		default:
			fmt.Fprintf(d.out, "unknown command %q\n", cmd)
		}

		if d.m.Halted {
			fmt.Fprintf(d.out, "halted: exit code %d\n", d.m.ExitCode)
			return nil
		}
	}
}

func (d *Debugger) continueToBreakpoint() error {
	for !d.m.Halted {
		if _, hit := d.breakpoints[d.m.PC]; hit {
			fmt.Fprintf(d.out, "breakpoint hit at %#x\n", d.m.PC)
			d.printState()
			return nil
		}
		if err := d.m.Step(d.exec); err != nil {
			fmt.Fprintln(d.out, err)
			return nil
		}
	}
	fmt.Fprintf(d.out, "halted: exit code %d\n", d.m.ExitCode)
	return nil
}

func (d *Debugger) printState() {
	fmt.Fprintf(d.out, "pc=%#x next=%s\n", d.m.PC, isa.Disassemble(d.m.Fetch()))
}

// readCommand reads one command. In raw/interactive mode a single
// byte selects the command (n/c/r/q); otherwise a full line is read
// so `b <addr>` can carry an argument.
func readCommand(r *bufio.Reader, interactive bool) (cmd, arg string, err error) {
	if !interactive {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimSpace(line)
		parts := strings.SplitN(line, " ", 2)
		cmd = strings.ToLower(parts[0])
		if len(parts) > 1 {
			arg = parts[1]
		}
		return cmd, arg, nil
	}

	b, err := r.ReadByte()
	if err != nil {
		return "", "", err
	}
	switch b {
	case 'n', '\r', '\n':
		return "n", "", nil
	case 'c':
		return "c", "", nil
	case 'r':
		return "r", "", nil
	case 'q', 3: // 3 == Ctrl-C
		return "q", "", nil
	default:
		return "", "", nil
	}
}

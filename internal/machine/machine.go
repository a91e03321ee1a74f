// Package machine owns the RV32I machine state: the register file,
// the address space, the program counter and halt/exit state, and the
// fetch-decode-execute run loop. It depends on isa for
// decoding and for printing register names in its debug dump, but not
// on the execution engine itself — the engine is injected into Run as
// an Executor so that isa -> machine -> exec stays acyclic while exec
// (which needs to mutate a *Machine) can still depend on machine.
package machine

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"text/template"

	"github.com/lmrv32/rv32i-emu/internal/isa"
)

// SegmentKind classifies a ProgramImage segment the way the ELF
// PT_LOAD p_flags do: R|X is Code, R|W is Data.
type SegmentKind int

const (
	SegmentCode SegmentKind = iota
	SegmentData
)

// Segment is one contiguous range of bytes to install into memory at
// load time.
type Segment struct {
	VAddr uint32
	Bytes []byte
	Kind  SegmentKind
}

// ProgramImage is the output contract of the ELF loader: an entry
// point and an ordered list of segments. It is the only thing the
// loader and the machine need to agree on.
type ProgramImage struct {
	EntryPoint uint32
	Segments   []Segment
}

// Debug is a bitmask of what to include in (*Machine).String(),
// mirroring LMMilewski-riscv-emu/vm.go's Debug flags.
type Debug uint32

const (
	DebugInstr Debug = 1 << iota
	DebugStep
	DebugRegs
)

// Machine is the mutable RV32I machine: 32 general-purpose registers
// (x0 hardwired to zero), a program counter, a sparse address space,
// and terminal halt/exit state. It is not safe for concurrent use; a
// single goroutine (the Run loop) owns it.
type Machine struct {
	X        [32]uint32
	PC       uint32
	Mem      *Memory
	Halted   bool
	ExitCode uint32
	Steps    uint64
	Debug    Debug

	// Stdout/Stderr are where the write-integer/write-string ECALLs
	// send their output. Defaulted to the process streams but
	// swappable so tests can capture output without touching os.Stdout.
	Stdout io.Writer
	Stderr io.Writer

	LastPC    uint32
	LastInstr *isa.DecodedInstruction
}

// New returns a zeroed machine ready to have code installed directly
// into its Mem, for hand-assembled test programs that don't come from
// an ELF file.
func New() *Machine {
	return &Machine{
		Mem:    NewMemory(),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// NewFromImage returns a machine with every segment of img copied
// into memory at its virtual address and PC seeded at the entry
// point.
func NewFromImage(img ProgramImage) *Machine {
	m := New()
	for _, seg := range img.Segments {
		m.Mem.LoadBytes(seg.VAddr, seg.Bytes)
	}
	m.PC = img.EntryPoint
	return m
}

// Store writes val to register rd. x0 is hardwired to zero and
// discards writes; an explicit branch reads clearer than routing
// writes to a scratch sink, since a sink would conflate "this register
// holds state" with "this register is wired to a constant".
func (m *Machine) Store(rd uint32, val uint32) {
	if rd != 0 {
		m.X[rd] = val
	}
	m.X[0] = 0
}

// Fetch reads the 4-byte little-endian instruction word at PC.
func (m *Machine) Fetch() uint32 {
	return m.Mem.ReadUint32(m.PC)
}

// Executor runs one decoded instruction against m, mutating registers,
// memory, PC and halt state. This is exec.Execute; it's a function
// type here (rather than machine importing exec) purely to keep the
// decode/execute/machine dependency graph acyclic.
type Executor func(m *Machine, in isa.DecodedInstruction) error

// Step runs a single fetch-decode-execute cycle. It is a no-op once
// the machine has halted, so callers can call it in a loop without
// checking Halted first. A decode failure halts the host-side
// interpreter with exit code 1 — guest-visible illegal instruction
// traps are not synthesized.
func (m *Machine) Step(exec Executor) error {
	if m.Halted {
		return nil
	}
	word := m.Fetch()
	in, err := isa.Decode(word)
	if err != nil {
		m.Halted = true
		m.ExitCode = 1
		return fmt.Errorf("decode failed at pc=%#x (instr %#x): %w", m.PC, word, err)
	}
	m.LastPC = m.PC
	m.LastInstr = &in
	if m.Debug&DebugStep != 0 {
		fmt.Fprintln(m.Stderr, m)
	}
	if err := exec(m, in); err != nil {
		return fmt.Errorf("execute failed at pc=%#x: %w", m.PC, err)
	}
	m.Steps++
	return nil
}

// Run repeats Step until the machine halts or maxSteps instructions
// have executed (0 means unbounded).
func (m *Machine) Run(exec Executor, maxSteps uint64) error {
	for maxSteps == 0 || m.Steps < maxSteps {
		if m.Halted {
			return nil
		}
		if err := m.Step(exec); err != nil {
			return err
		}
	}
	if m.Halted {
		return nil
	}
	return fmt.Errorf("machine: exceeded step budget of %d instructions", maxSteps)
}

// String renders a debug dump of the machine, gated by Debug flags,
// in the same text/template + text/tabwriter style as
// LMMilewski-riscv-emu/vm.go's (*VM).String.
func (m *Machine) String() string {
	data := map[string]interface{}{
		"PC":    m.PC,
		"Steps": m.Steps,
	}
	if m.Debug&DebugInstr != 0 && m.LastInstr != nil {
		data["Instr"] = m.LastInstr
	}
	if m.Debug&DebugRegs != 0 {
		reg := &strings.Builder{}
		w := tabwriter.NewWriter(reg, 0, 0, 2, ' ', tabwriter.AlignRight)
		const cols = 4
		for i := 0; i < len(m.X); {
			for j := 0; i < len(m.X) && j < cols; i, j = i+1, j+1 {
				fmt.Fprintf(w, "%s(x%d):\t%#x\t\t\t", isa.RegNames[i], i, m.X[i])
			}
			fmt.Fprintln(w, "")
		}
		w.Flush()
		data["Regs"] = reg
	}

	buf := new(strings.Builder)
	if err := dbgTmpl.Execute(buf, data); err != nil {
		panic(fmt.Sprintf("machine: can't render debug dump: %v", err))
	}
	return buf.String()
}

var dbgTmpl = template.Must(template.New("machine").Parse(`=== machine (step {{.Steps}}) ===
PC: {{printf "%#x" .PC}}
{{with .Instr}}INSTR: {{.}}
{{end}}{{with .Regs}}
[ REGISTERS ]
{{.}}
{{end}}`))

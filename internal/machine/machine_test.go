package machine

import (
	"strings"
	"testing"

	"github.com/lmrv32/rv32i-emu/internal/isa"
)

func TestStoreDiscardsX0Writes(t *testing.T) {
	m := New()
	m.Store(0, 0xdeadbeef)
	if m.X[0] != 0 {
		t.Errorf("x0 = %#x, want 0", m.X[0])
	}
	m.Store(5, 42)
	if m.X[5] != 42 {
		t.Errorf("x5 = %d, want 42", m.X[5])
	}
	// A later write to any register must still leave x0 pinned at zero.
	m.X[0] = 7
	m.Store(5, 43)
	if m.X[0] != 0 {
		t.Errorf("x0 = %#x after unrelated Store, want 0", m.X[0])
	}
}

func TestMemoryRoundTripsAcrossPageBoundary(t *testing.T) {
	mem := NewMemory()
	const addr = pageSize - 2 // straddles two pages
	mem.WriteUint32(addr, 0x01020304)
	if got := mem.ReadUint32(addr); got != 0x01020304 {
		t.Errorf("ReadUint32 = %#x, want %#x", got, 0x01020304)
	}
}

func TestMemoryUnmappedReadsAsZero(t *testing.T) {
	mem := NewMemory()
	if got := mem.ReadByte(0x12345); got != 0 {
		t.Errorf("ReadByte(unmapped) = %d, want 0", got)
	}
}

func TestLoadBytesThenFetch(t *testing.T) {
	m := New()
	code := []byte{0x13, 0x05, 0x00, 0x00} // addi x10, x0, 0
	m.Mem.LoadBytes(0x1000, code)
	m.PC = 0x1000
	if got := m.Fetch(); got != 0x00000513 {
		t.Errorf("Fetch = %#x, want %#x", got, 0x00000513)
	}
}

// nopExec advances the PC by 4 without touching anything else,
// standing in for exec.Execute so this package's tests don't need to
// import exec (which itself imports machine).
func nopExec(m *Machine, in isa.DecodedInstruction) error {
	m.PC += 4
	return nil
}

func TestStepAdvancesPCAndStepCount(t *testing.T) {
	m := New()
	m.Mem.WriteUint32(0, 0x00000013) // addi x0, x0, 0
	if err := m.Step(nopExec); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if m.PC != 4 {
		t.Errorf("PC = %#x, want 4", m.PC)
	}
	if m.Steps != 1 {
		t.Errorf("Steps = %d, want 1", m.Steps)
	}
}

func TestStepHaltsOnDecodeFailure(t *testing.T) {
	m := New()
	m.Mem.WriteUint32(0, 0x0000007F) // opcode with no known format
	err := m.Step(nopExec)
	if err == nil {
		t.Fatal("expected an error from an undecodable instruction")
	}
	if !m.Halted {
		t.Error("Halted = false, want true")
	}
	if m.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", m.ExitCode)
	}
}

func TestStepIsNoOpOnceHalted(t *testing.T) {
	m := New()
	m.Halted = true
	m.PC = 0x40
	if err := m.Step(nopExec); err != nil {
		t.Fatalf("Step after halt returned error: %v", err)
	}
	if m.PC != 0x40 {
		t.Errorf("PC moved after halt: %#x", m.PC)
	}
}

func haltingExec(exitAfter uint64) Executor {
	var n uint64
	return func(m *Machine, in isa.DecodedInstruction) error {
		n++
		if n >= exitAfter {
			m.Halted = true
			m.ExitCode = 4
			return nil
		}
		m.PC += 4
		return nil
	}
}

func TestRunStopsWhenHalted(t *testing.T) {
	m := New()
	for i := uint32(0); i < 40; i += 4 {
		m.Mem.WriteUint32(i, 0x00000013)
	}
	if err := m.Run(haltingExec(3), 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !m.Halted || m.ExitCode != 4 {
		t.Errorf("Halted=%v ExitCode=%d, want true/4", m.Halted, m.ExitCode)
	}
}

func TestRunReturnsErrorWhenStepBudgetExceeded(t *testing.T) {
	m := New()
	for i := uint32(0); i < 40; i += 4 {
		m.Mem.WriteUint32(i, 0x00000013)
	}
	err := m.Run(nopExec, 5)
	if err == nil {
		t.Fatal("expected a step-budget error")
	}
	if m.Halted {
		t.Error("Halted = true, want false (budget exceeded, not a guest halt)")
	}
}

func TestMachineStringIncludesRegsWhenRequested(t *testing.T) {
	m := New()
	m.Debug |= DebugRegs
	m.X[10] = 99
	s := m.String()
	if !strings.Contains(s, "a0(x10)") {
		t.Errorf("String() = %q, want it to mention a0(x10)", s)
	}
}

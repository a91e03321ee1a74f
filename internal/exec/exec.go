// Package exec realizes RV32I's per-opcode semantics: given a machine
// and a decoded instruction, it mutates registers, memory, PC and
// halt state, including the ECALL syscall dispatch. The bit-level
// operations here (wrap-around arithmetic, logical vs arithmetic
// shifts, sign-extended loads, signed/unsigned comparison) are adapted
// from LMMilewski-riscv-emu/rvi.go's per-opcode functions, narrowed
// from 64-bit registers to 32-bit with the RV64I/M/CSR-only opcodes
// left out.
package exec

import (
	"fmt"

	"github.com/lmrv32/rv32i-emu/internal/isa"
	"github.com/lmrv32/rv32i-emu/internal/machine"
)

// Execute runs one decoded instruction against m. It returns an error
// only for conditions the spec treats as fatal to the host process
// (a malformed syscall); unimplemented-but-decoded opcodes can't
// occur because isa.Decode already rejects any funct3/funct7/imm
// combination this package doesn't handle.
func Execute(m *machine.Machine, in isa.DecodedInstruction) error {
	a := m.X[in.Rs1]
	b := m.X[in.Rs2]
	pcSet := false

	switch in.Op {
	case isa.OpADD:
		m.Store(in.Rd, a+b)
	case isa.OpSUB:
		m.Store(in.Rd, a-b)
	case isa.OpXOR:
		m.Store(in.Rd, a^b)
	case isa.OpOR:
		m.Store(in.Rd, a|b)
	case isa.OpAND:
		m.Store(in.Rd, a&b)
	case isa.OpSLL:
		m.Store(in.Rd, a<<(b&0x1f))
	case isa.OpSRL:
		m.Store(in.Rd, a>>(b&0x1f))
	case isa.OpSRA:
		m.Store(in.Rd, arithShiftRight(a, b&0x1f))
	case isa.OpSLT:
		m.Store(in.Rd, boolToWord(int32(a) < int32(b)))
	case isa.OpSLTU:
		m.Store(in.Rd, boolToWord(a < b))

	case isa.OpADDI:
		m.Store(in.Rd, a+in.Imm)
	case isa.OpXORI:
		m.Store(in.Rd, a^in.Imm)
	case isa.OpORI:
		m.Store(in.Rd, a|in.Imm)
	case isa.OpANDI:
		m.Store(in.Rd, a&in.Imm)
	case isa.OpSLLI:
		m.Store(in.Rd, a<<(in.Imm&0x1f))
	case isa.OpSRLI:
		m.Store(in.Rd, a>>(in.Imm&0x1f))
	case isa.OpSRAI:
		m.Store(in.Rd, arithShiftRight(a, in.Imm&0x1f))
	case isa.OpSLTI:
		m.Store(in.Rd, boolToWord(int32(a) < int32(in.Imm)))
	case isa.OpSLTIU:
		m.Store(in.Rd, boolToWord(a < in.Imm))

	case isa.OpLB:
		m.Store(in.Rd, signExtendByte(m.Mem.ReadByte(a+in.Imm)))
	case isa.OpLH:
		m.Store(in.Rd, signExtendHalf(m.Mem.ReadUint16(a+in.Imm)))
	case isa.OpLW:
		m.Store(in.Rd, m.Mem.ReadUint32(a+in.Imm))
	case isa.OpLBU:
		m.Store(in.Rd, uint32(m.Mem.ReadByte(a+in.Imm)))
	case isa.OpLHU:
		m.Store(in.Rd, uint32(m.Mem.ReadUint16(a+in.Imm)))

	case isa.OpSB:
		m.Mem.WriteByte(a+in.Imm, byte(b))
	case isa.OpSH:
		m.Mem.WriteUint16(a+in.Imm, uint16(b))
	case isa.OpSW:
		m.Mem.WriteUint32(a+in.Imm, b)

	case isa.OpBEQ:
		pcSet = takeBranch(m, in, a == b)
	case isa.OpBNE:
		pcSet = takeBranch(m, in, a != b)
	case isa.OpBLT:
		pcSet = takeBranch(m, in, int32(a) < int32(b))
	case isa.OpBGE:
		pcSet = takeBranch(m, in, int32(a) >= int32(b))
	case isa.OpBLTU:
		pcSet = takeBranch(m, in, a < b)
	case isa.OpBGEU:
		pcSet = takeBranch(m, in, a >= b)

	case isa.OpJAL:
		m.Store(in.Rd, m.PC+4)
		m.PC = m.PC + in.Imm
		pcSet = true

	case isa.OpJALR:
		target := a + in.Imm
		m.Store(in.Rd, m.PC+4)
		m.PC = target &^ 1 // bit 0 of a jump target is always cleared, unlike LMMilewski-riscv-emu's unmasked jalr
		pcSet = true

	case isa.OpLUI:
		m.Store(in.Rd, in.Imm)
	case isa.OpAUIPC:
		m.Store(in.Rd, m.PC+in.Imm)

	case isa.OpFENCE:
		// Single hart, sequential execution: nothing to order.

	case isa.OpECALL:
		if err := syscall(m); err != nil {
			return err
		}

	case isa.OpEBREAK:
		m.Halted = true
		m.ExitCode = 3

	case isa.OpESystemOther:
		// Neither ECALL nor EBREAK (e.g. an unrecognized SYSTEM immediate); treated as a no-op.

	default:
		return fmt.Errorf("exec: unhandled op %s (this should be unreachable: isa.Decode rejects it)", in.Op)
	}

	if !pcSet && !m.Halted {
		m.PC += 4
	}
	return nil
}

func takeBranch(m *machine.Machine, in isa.DecodedInstruction, taken bool) bool {
	if !taken {
		return false
	}
	m.PC = m.PC + in.Imm
	return true
}

func boolToWord(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// arithShiftRight emulates a right arithmetic shift of a 32-bit
// unsigned-backed value via a logical shift plus sign-extension, so
// the operation needs no signed right-shift — this keeps the
// bit-manipulation explicit rather than relying on int32 shift
// semantics.
func arithShiftRight(v, shamt uint32) uint32 {
	shifted := v >> shamt
	if shamt == 0 {
		return shifted
	}
	if v&0x80000000 != 0 {
		shifted |= ^uint32(0) << (32 - shamt)
	}
	return shifted
}

func signExtendByte(v byte) uint32 {
	if v&0x80 != 0 {
		return uint32(v) | 0xffffff00
	}
	return uint32(v)
}

func signExtendHalf(v uint16) uint32 {
	if v&0x8000 != 0 {
		return uint32(v) | 0xffff0000
	}
	return uint32(v)
}

// Package isa decodes RV32I instruction words into a structured,
// side-effect-free form. It owns no machine state; it is a pure
// uint32 -> DecodedInstruction function plus the mnemonic table used
// to print one back out.
package isa

import (
	"errors"
	"fmt"
)

// Format is the instruction encoding family, selected by the low 7
// opcode bits (riscv-spec-v2.2; Table 19.1).
type Format int

const (
	FormatR Format = iota
	FormatI
	FormatS
	FormatB
	FormatU
	FormatJ
	FormatFence
)

func (f Format) String() string {
	switch f {
	case FormatR:
		return "R"
	case FormatI:
		return "I"
	case FormatS:
		return "S"
	case FormatB:
		return "B"
	case FormatU:
		return "U"
	case FormatJ:
		return "J"
	case FormatFence:
		return "Fence"
	default:
		return "Unknown"
	}
}

// Op is the closed set of RV32I operations this interpreter supports.
type Op int

const (
	OpInvalid Op = iota
	OpADD
	OpSUB
	OpXOR
	OpOR
	OpAND
	OpSLL
	OpSRL
	OpSRA
	OpSLT
	OpSLTU
	OpADDI
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI
	OpSLTI
	OpSLTIU
	OpLB
	OpLH
	OpLW
	OpLBU
	OpLHU
	OpSB
	OpSH
	OpSW
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpJAL
	OpJALR
	OpLUI
	OpAUIPC
	OpFENCE
	OpECALL
	OpEBREAK
	OpESystemOther
)

var opNames = map[Op]string{
	OpADD: "add", OpSUB: "sub", OpXOR: "xor", OpOR: "or", OpAND: "and",
	OpSLL: "sll", OpSRL: "srl", OpSRA: "sra", OpSLT: "slt", OpSLTU: "sltu",
	OpADDI: "addi", OpXORI: "xori", OpORI: "ori", OpANDI: "andi",
	OpSLLI: "slli", OpSRLI: "srli", OpSRAI: "srai", OpSLTI: "slti", OpSLTIU: "sltiu",
	OpLB: "lb", OpLH: "lh", OpLW: "lw", OpLBU: "lbu", OpLHU: "lhu",
	OpSB: "sb", OpSH: "sh", OpSW: "sw",
	OpBEQ: "beq", OpBNE: "bne", OpBLT: "blt", OpBGE: "bge", OpBLTU: "bltu", OpBGEU: "bgeu",
	OpJAL: "jal", OpJALR: "jalr", OpLUI: "lui", OpAUIPC: "auipc",
	OpFENCE: "fence", OpECALL: "ecall", OpEBREAK: "ebreak", OpESystemOther: "<system>",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "<invalid>"
}

// DecodedInstruction is the immutable result of decoding one 32-bit
// instruction word. Imm is already sign-extended (and, for U-type,
// pre-shifted) per the field's format.
type DecodedInstruction struct {
	Format  Format
	Op      Op
	Rd      uint32
	Rs1     uint32
	Rs2     uint32
	Funct3  uint32
	Funct7  uint32
	Imm     uint32
	Raw     uint32
}

func (in DecodedInstruction) String() string {
	return fmt.Sprintf("%s rd=x%d rs1=x%d rs2=x%d imm=%d(%#x) [%s %#08x]",
		in.Op, in.Rd, in.Rs1, in.Rs2, int32(in.Imm), in.Imm, in.Format, in.Raw)
}

// Errors returned by Decode. Decode wraps these with context via %w,
// so callers can still errors.Is against the sentinel.
var (
	ErrUnsupportedFormat = errors.New("isa: opcode does not match any known instruction format")
	ErrUnknownOpcode     = errors.New("isa: format known but funct3/funct7/imm combination is undefined")
)

// register-field bit positions (riscv-spec-v2.2; Chapter 2)
const (
	maskOpcode = 0x7f
	maskReg    = 0x1f
)

// ABI register indices used by the ECALL convention.
const (
	A0 = 10
	A1 = 11
	A2 = 12
	A7 = 17
)

// Decode converts a 32-bit little-endian-loaded instruction word into
// a DecodedInstruction. It never mutates any state; it is a pure
// function of its input, matching LMMilewski-riscv-emu/decode.go's
// Decode entry point narrowed to RV32I-only formats and generalized
// into a tagged Format/Op pair instead of a func-pointer dispatch
// table.
func Decode(word uint32) (DecodedInstruction, error) {
	opcode := word & maskOpcode
	rd := (word >> 7) & maskReg
	funct3 := (word >> 12) & 0x7
	rs1 := (word >> 15) & maskReg
	rs2 := (word >> 20) & maskReg
	funct7 := (word >> 25) & 0x7f

	in := DecodedInstruction{Rd: rd, Rs1: rs1, Rs2: rs2, Funct3: funct3, Funct7: funct7, Raw: word}

	switch opcode {
	case 0b0110011: // R-type: register-register ALU
		in.Format = FormatR
		op, err := decodeR(funct3, funct7)
		if err != nil {
			return DecodedInstruction{}, err
		}
		in.Op = op
		return in, nil

	case 0b0010011: // I-type: immediate ALU
		in.Format = FormatI
		in.Imm = sext(word>>20, 12)
		op, err := decodeIALU(funct3, in.Imm)
		if err != nil {
			return DecodedInstruction{}, err
		}
		in.Op = op
		return in, nil

	case 0b0000011: // I-type: loads
		in.Format = FormatI
		in.Imm = sext(word>>20, 12)
		op, ok := loadOps[funct3]
		if !ok {
			return DecodedInstruction{}, fmt.Errorf("%w: load funct3=%#x", ErrUnknownOpcode, funct3)
		}
		in.Op = op
		return in, nil

	case 0b1100111: // I-type: JALR
		in.Format = FormatI
		in.Imm = sext(word>>20, 12)
		if funct3 != 0 {
			return DecodedInstruction{}, fmt.Errorf("%w: jalr funct3=%#x", ErrUnknownOpcode, funct3)
		}
		in.Op = OpJALR
		return in, nil

	case 0b1110011: // I-type: system (ECALL/EBREAK)
		in.Format = FormatI
		in.Imm = word >> 20 // not sign-extended: compared against the literal 0/1
		switch in.Imm {
		case 0:
			in.Op = OpECALL
		case 1:
			in.Op = OpEBREAK
		default:
			in.Op = OpESystemOther
		}
		return in, nil

	case 0b0100011: // S-type: stores
		in.Format = FormatS
		in.Imm = sext((word>>25&0x7f)<<5|(word>>7&0x1f), 12)
		op, ok := storeOps[funct3]
		if !ok {
			return DecodedInstruction{}, fmt.Errorf("%w: store funct3=%#x", ErrUnknownOpcode, funct3)
		}
		in.Op = op
		return in, nil

	case 0b1100011: // B-type: branches
		in.Format = FormatB
		in.Imm = sext(
			(word>>31&0x1)<<12|(word>>7&0x1)<<11|(word>>25&0x3f)<<5|(word>>8&0xf)<<1,
			13)
		op, ok := branchOps[funct3]
		if !ok {
			return DecodedInstruction{}, fmt.Errorf("%w: branch funct3=%#x", ErrUnknownOpcode, funct3)
		}
		in.Op = op
		return in, nil

	case 0b1101111: // J-type: JAL
		in.Format = FormatJ
		in.Imm = sext(
			(word>>31&0x1)<<20|(word>>12&0xff)<<12|(word>>20&0x1)<<11|(word>>21&0x3ff)<<1,
			21)
		in.Op = OpJAL
		return in, nil

	case 0b0110111: // U-type: LUI
		in.Format = FormatU
		in.Imm = word & 0xfffff000
		in.Op = OpLUI
		return in, nil

	case 0b0010111: // U-type: AUIPC
		in.Format = FormatU
		in.Imm = word & 0xfffff000
		in.Op = OpAUIPC
		return in, nil

	case 0b0001111: // Fence
		in.Format = FormatFence
		in.Op = OpFENCE
		return in, nil

	default:
		return DecodedInstruction{}, fmt.Errorf("%w: opcode=%#09b", ErrUnsupportedFormat, opcode)
	}
}

func decodeR(funct3, funct7 uint32) (Op, error) {
	switch funct3 {
	case 0x0:
		switch funct7 {
		case 0x00:
			return OpADD, nil
		case 0x20:
			return OpSUB, nil
		}
	case 0x1:
		if funct7 == 0x00 {
			return OpSLL, nil
		}
	case 0x2:
		if funct7 == 0x00 {
			return OpSLT, nil
		}
	case 0x3:
		if funct7 == 0x00 {
			return OpSLTU, nil
		}
	case 0x4:
		if funct7 == 0x00 {
			return OpXOR, nil
		}
	case 0x5:
		switch funct7 {
		case 0x00:
			return OpSRL, nil
		case 0x20:
			return OpSRA, nil
		}
	case 0x6:
		if funct7 == 0x00 {
			return OpOR, nil
		}
	case 0x7:
		if funct7 == 0x00 {
			return OpAND, nil
		}
	}
	return OpInvalid, fmt.Errorf("%w: R-type funct3=%#x funct7=%#x", ErrUnknownOpcode, funct3, funct7)
}

func decodeIALU(funct3 uint32, imm uint32) (Op, error) {
	switch funct3 {
	case 0x0:
		return OpADDI, nil
	case 0x1:
		if imm>>5 == 0x00 {
			return OpSLLI, nil
		}
		return OpInvalid, fmt.Errorf("%w: slli with non-zero top bits %#x", ErrUnknownOpcode, imm>>5)
	case 0x2:
		return OpSLTI, nil
	case 0x3:
		return OpSLTIU, nil
	case 0x4:
		return OpXORI, nil
	case 0x5:
		switch imm >> 5 {
		case 0x00:
			return OpSRLI, nil
		case 0x20:
			return OpSRAI, nil
		}
		return OpInvalid, fmt.Errorf("%w: shift-right-immediate top bits %#x", ErrUnknownOpcode, imm>>5)
	case 0x6:
		return OpORI, nil
	case 0x7:
		return OpANDI, nil
	}
	return OpInvalid, fmt.Errorf("%w: I-ALU funct3=%#x", ErrUnknownOpcode, funct3)
}

var loadOps = map[uint32]Op{
	0x0: OpLB,
	0x1: OpLH,
	0x2: OpLW,
	0x4: OpLBU,
	0x5: OpLHU,
}

var storeOps = map[uint32]Op{
	0x0: OpSB,
	0x1: OpSH,
	0x2: OpSW,
}

var branchOps = map[uint32]Op{
	0x0: OpBEQ,
	0x1: OpBNE,
	0x4: OpBLT,
	0x5: OpBGE,
	0x6: OpBLTU,
	0x7: OpBGEU,
}

// sext sign-extends v, treating bit (width-1) as the sign bit of a
// width-bit quantity, replicating it through bit 31. Mirrors the
// teacher's signExtend (LMMilewski-riscv-emu/sign.go) narrowed from
// 64 to 32 bits and with the precomputed mask table built the same
// way, via init().
func sext(v uint32, width uint) uint32 {
	b := signMasks[width]
	if v&b.bit != 0 {
		return v | b.ones
	}
	return v
}

var signMasks [33]struct {
	bit  uint32
	ones uint32
}

func init() {
	for width := uint(1); width <= 32; width++ {
		bit := uint32(1) << (width - 1)
		var ones uint32
		if width < 32 {
			ones = ^uint32(0) << width
		}
		signMasks[width] = struct {
			bit  uint32
			ones uint32
		}{bit: bit, ones: ones}
	}
}

// RegNames maps register numbers to their ABI names (riscv-spec-v2.2;
// Table 20.1), used by Disassemble and machine debug dumps.
var RegNames = [32]string{
	0: "zero", 1: "ra", 2: "sp", 3: "gp", 4: "tp",
	5: "t0", 6: "t1", 7: "t2",
	8: "s0", 9: "s1",
	10: "a0", 11: "a1", 12: "a2", 13: "a3", 14: "a4", 15: "a5", 16: "a6", 17: "a7",
	18: "s2", 19: "s3", 20: "s4", 21: "s5", 22: "s6", 23: "s7", 24: "s8", 25: "s9", 26: "s10", 27: "s11",
	28: "t3", 29: "t4", 30: "t5", 31: "t6",
}

// Disassemble renders a single instruction word as assembly text,
// following bassosimone-risc32/pkg/vm.Disassemble's pure
// uint32 -> string shape (no VM involved, just a decode-then-format
// switch) instead of LMMilewski-riscv-emu's Instruction.String(),
// which prints the bound handler function's runtime name rather than
// a mnemonic.
func Disassemble(word uint32) string {
	in, err := Decode(word)
	if err != nil {
		return fmt.Sprintf("<bad instruction %#08x: %v>", word, err)
	}
	rd, rs1, rs2 := RegNames[in.Rd], RegNames[in.Rs1], RegNames[in.Rs2]
	imm := int32(in.Imm)
	switch in.Format {
	case FormatR:
		return fmt.Sprintf("%s %s, %s, %s", in.Op, rd, rs1, rs2)
	case FormatI:
		switch in.Op {
		case OpECALL, OpEBREAK, OpESystemOther:
			return in.Op.String()
		case OpJALR:
			return fmt.Sprintf("jalr %s, %d(%s)", rd, imm, rs1)
		case OpLB, OpLH, OpLW, OpLBU, OpLHU:
			return fmt.Sprintf("%s %s, %d(%s)", in.Op, rd, imm, rs1)
		case OpSLLI, OpSRLI, OpSRAI:
			return fmt.Sprintf("%s %s, %s, %d", in.Op, rd, rs1, in.Imm&0x1f)
		default:
			return fmt.Sprintf("%s %s, %s, %d", in.Op, rd, rs1, imm)
		}
	case FormatS:
		return fmt.Sprintf("%s %s, %d(%s)", in.Op, rs2, imm, rs1)
	case FormatB:
		return fmt.Sprintf("%s %s, %s, %d", in.Op, rs1, rs2, imm)
	case FormatU:
		return fmt.Sprintf("%s %s, %d", in.Op, rd, int32(in.Imm)>>12)
	case FormatJ:
		return fmt.Sprintf("jal %s, %d", rd, imm)
	case FormatFence:
		return "fence"
	default:
		return fmt.Sprintf("<unknown %#08x>", word)
	}
}

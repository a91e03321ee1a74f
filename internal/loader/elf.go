// Package loader turns an ELF32 RISC-V executable into the
// machine.ProgramImage contract: an entry point plus an ordered list
// of (virtual address, bytes, kind) segments. It builds that contract
// on stdlib debug/elf the way LMMilewski-riscv-emu/main.go does
// (elf.Open, inspect the header), generalized from copying every
// SHF_ALLOC *section* to walking PT_LOAD *program headers* directly,
// which is what an ET_EXEC binary's load contract actually describes.
package loader

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/lmrv32/rv32i-emu/internal/machine"
)

// Load opens path, validates it as an ELF32 RV32I ET_EXEC binary, and
// returns the resulting ProgramImage.
func Load(path string) (machine.ProgramImage, error) {
	f, err := elf.Open(path)
	if err != nil {
		return machine.ProgramImage{}, fmt.Errorf("loader: can't open %s: %w", path, err)
	}
	defer f.Close()
	return FromFile(f)
}

// FromFile builds a ProgramImage from an already-opened ELF file, so
// callers (and tests) that constructed the *elf.File themselves (e.g.
// from an in-memory reader via elf.NewFile) don't need a path on disk.
func FromFile(f *elf.File) (machine.ProgramImage, error) {
	if f.Class != elf.ELFCLASS32 {
		return machine.ProgramImage{}, fmt.Errorf("loader: unsupported ELF class %s, want ELFCLASS32", f.Class)
	}
	if f.Machine != elf.EM_RISCV {
		return machine.ProgramImage{}, fmt.Errorf("loader: unsupported machine type %s, want EM_RISCV", f.Machine)
	}
	if f.Type != elf.ET_EXEC {
		return machine.ProgramImage{}, fmt.Errorf("loader: unsupported ELF type %s, want ET_EXEC", f.Type)
	}

	var segments []machine.Segment
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		buf := make([]byte, p.Filesz)
		if _, err := io.ReadFull(p.Open(), buf); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return machine.ProgramImage{}, fmt.Errorf("loader: reading PT_LOAD segment at %#x: %w", p.Vaddr, err)
		}
		segments = append(segments, machine.Segment{
			VAddr: uint32(p.Vaddr),
			Bytes: buf,
			Kind:  segmentKind(p.Flags),
		})
	}

	return machine.ProgramImage{
		EntryPoint: uint32(f.Entry),
		Segments:   segments,
	}, nil
}

// segmentKind classifies a PT_LOAD segment by its p_flags: R|X (5) is
// Code, R|W (6) is Data. A segment with
// neither X nor W set (read-only, non-executable) is treated as Data,
// since this interpreter only distinguishes "fetchable" from "not".
func segmentKind(flags elf.ProgFlag) machine.SegmentKind {
	if flags&elf.PF_X != 0 {
		return machine.SegmentCode
	}
	return machine.SegmentData
}

package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"
)

// buildELF32 assembles a minimal valid little-endian ELF32 ET_EXEC
// RISC-V binary with a single PT_LOAD segment, so FromFile can be
// exercised without shelling out to a real toolchain.
func buildELF32(t *testing.T, entry, vaddr uint32, flags uint32, code []byte) []byte {
	t.Helper()
	const (
		ehsize = 52
		phsize = 32
	)
	buf := &bytes.Buffer{}

	ident := [16]byte{0x7f, 'E', 'L', 'F', 1 /* ELFCLASS32 */, 1 /* ELFDATA2LSB */, 1, 0}
	buf.Write(ident[:])
	binary.Write(buf, binary.LittleEndian, uint16(2))      // e_type = ET_EXEC
	binary.Write(buf, binary.LittleEndian, uint16(0xF3))   // e_machine = EM_RISCV
	binary.Write(buf, binary.LittleEndian, uint32(1))      // e_version
	binary.Write(buf, binary.LittleEndian, entry)          // e_entry
	binary.Write(buf, binary.LittleEndian, uint32(ehsize)) // e_phoff
	binary.Write(buf, binary.LittleEndian, uint32(0))      // e_shoff
	binary.Write(buf, binary.LittleEndian, uint32(0))      // e_flags
	binary.Write(buf, binary.LittleEndian, uint16(ehsize)) // e_ehsize
	binary.Write(buf, binary.LittleEndian, uint16(phsize)) // e_phentsize
	binary.Write(buf, binary.LittleEndian, uint16(1))      // e_phnum
	binary.Write(buf, binary.LittleEndian, uint16(0))      // e_shentsize
	binary.Write(buf, binary.LittleEndian, uint16(0))      // e_shnum
	binary.Write(buf, binary.LittleEndian, uint16(0))      // e_shstrndx

	offset := uint32(ehsize + phsize)
	binary.Write(buf, binary.LittleEndian, uint32(1))          // p_type = PT_LOAD
	binary.Write(buf, binary.LittleEndian, offset)              // p_offset
	binary.Write(buf, binary.LittleEndian, vaddr)               // p_vaddr
	binary.Write(buf, binary.LittleEndian, vaddr)               // p_paddr
	binary.Write(buf, binary.LittleEndian, uint32(len(code)))   // p_filesz
	binary.Write(buf, binary.LittleEndian, uint32(len(code)))   // p_memsz
	binary.Write(buf, binary.LittleEndian, flags)                // p_flags
	binary.Write(buf, binary.LittleEndian, uint32(4))           // p_align

	buf.Write(code)
	return buf.Bytes()
}

func TestFromFileLoadsCodeSegment(t *testing.T) {
	code := []byte{0x13, 0x05, 0x00, 0x00} // addi x10,x0,0 (nop-ish)
	raw := buildELF32(t, 0x1000, 0x1000, 5 /* R|X */, code)

	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("elf.NewFile: %v", err)
	}
	defer f.Close()

	img, err := FromFile(f)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if img.EntryPoint != 0x1000 {
		t.Errorf("EntryPoint = %#x, want %#x", img.EntryPoint, 0x1000)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(img.Segments))
	}
	seg := img.Segments[0]
	if seg.VAddr != 0x1000 {
		t.Errorf("VAddr = %#x, want %#x", seg.VAddr, 0x1000)
	}
	if !bytes.Equal(seg.Bytes, code) {
		t.Errorf("Bytes = %x, want %x", seg.Bytes, code)
	}
}

func TestFromFileRejectsWrongMachine(t *testing.T) {
	raw := buildELF32(t, 0, 0, 5, nil)
	raw[18] = 0x03 // e_machine low byte -> something that isn't EM_RISCV

	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("elf.NewFile: %v", err)
	}
	defer f.Close()

	if _, err := FromFile(f); err == nil {
		t.Fatal("expected an error for a non-RISC-V ELF")
	}
}

func TestSegmentKindClassification(t *testing.T) {
	if got := segmentKind(elf.PF_R | elf.PF_X); got != 0 {
		t.Errorf("R|X should classify as Code (0), got %v", got)
	}
	if got := segmentKind(elf.PF_R | elf.PF_W); got != 1 {
		t.Errorf("R|W should classify as Data (1), got %v", got)
	}
}

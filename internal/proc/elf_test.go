package proc

import (
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/smoynes/panda/internal/mem"
)

// buildMinimalELF64 constructs the smallest ELF64 executable debug/elf will
// parse: one PT_LOAD segment containing code, and nothing else (no sections,
// no symbol table). Grounded on the ELF64 header/program-header layout in
// tinyrange-rtg's buildELF64, trimmed to the single segment this test needs.
func buildMinimalELF64(tt *testing.T, vaddr uint64, code []byte) []byte {
	tt.Helper()

	const (
		ehsize = 64
		phsize = 56
	)

	codeOffset := uint64(ehsize + phsize)
	entry := vaddr + codeOffset

	buf := make([]byte, codeOffset+uint64(len(code)))

	copy(buf[0:4], []byte{0x7F, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	buf[7] = 0 // ELFOSABI_SYSV

	binary.LittleEndian.PutUint16(buf[16:18], uint16(elf.ET_EXEC))
	binary.LittleEndian.PutUint16(buf[18:20], uint16(elf.EM_X86_64))
	binary.LittleEndian.PutUint32(buf[20:24], 1) // e_version
	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], ehsize) // e_phoff
	binary.LittleEndian.PutUint64(buf[40:48], 0)      // e_shoff
	binary.LittleEndian.PutUint32(buf[48:52], 0)      // e_flags
	binary.LittleEndian.PutUint16(buf[52:54], ehsize)
	binary.LittleEndian.PutUint16(buf[54:56], phsize)
	binary.LittleEndian.PutUint16(buf[56:58], 1) // e_phnum
	binary.LittleEndian.PutUint16(buf[58:60], 0)
	binary.LittleEndian.PutUint16(buf[60:62], 0)
	binary.LittleEndian.PutUint16(buf[62:64], 0)

	ph := buf[ehsize : ehsize+phsize]
	binary.LittleEndian.PutUint32(ph[0:4], uint32(elf.PT_LOAD))
	binary.LittleEndian.PutUint32(ph[4:8], uint32(elf.PF_R|elf.PF_X))
	binary.LittleEndian.PutUint64(ph[8:16], codeOffset)  // p_offset
	binary.LittleEndian.PutUint64(ph[16:24], vaddr+codeOffset) // p_vaddr
	binary.LittleEndian.PutUint64(ph[24:32], vaddr+codeOffset) // p_paddr
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(code))) // p_filesz
	binary.LittleEndian.PutUint64(ph[40:48], uint64(len(code))) // p_memsz
	binary.LittleEndian.PutUint64(ph[48:56], mem.PageSize)      // p_align

	copy(buf[codeOffset:], code)

	return buf
}

func TestLoadELFMapsSegmentAndSetsEntry(tt *testing.T) {
	tt.Parallel()

	frames := mem.NewFrameAllocator()
	p := New(frames, 0)

	const vaddr = 0x0000_1000_0000_0000

	code := []byte{0x90, 0x90, 0xC3} // nop; nop; ret
	image := buildMinimalELF64(tt, vaddr, code)

	state, err := p.LoadELF(frames, image)
	if err != nil {
		tt.Fatalf("load elf: %v", err)
	}

	wantEntry := uint64(vaddr) + 64 + 56

	if state.RIP != wantEntry {
		tt.Errorf("entry: want %#x, got %#x", wantEntry, state.RIP)
	}

	if state.RSP != uint64(UserStackBase)+UserStackSize {
		tt.Errorf("stack pointer: want %#x, got %#x", uint64(UserStackBase)+UserStackSize, state.RSP)
	}

	if state.RFlags&RFlagsInterrupt == 0 {
		tt.Error("want RFLAGS.IF set on initial dispatch")
	}

	phys, perm, err := p.Space.Walk(mem.VirtAddr(wantEntry))
	if err != nil {
		tt.Fatalf("walk entry point: %v", err)
	}

	if perm&mem.PermExec == 0 {
		tt.Error("want entry page executable")
	}

	_ = phys
}

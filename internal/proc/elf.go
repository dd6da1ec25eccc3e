package proc

// elf.go loads an ELF64 image into a process's address space (spec §4.C).
// panda-kernel/src/process.rs walks PT_LOAD headers with the goblin crate; here
// the same walk uses the standard library's debug/elf, since the ELF64 format
// itself is not part of this system's domain — only the act of loading one is.

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/smoynes/panda/internal/mem"
)

// UserStackBase is the fixed high virtual address at which every process's
// initial stack is mapped.
const UserStackBase mem.VirtAddr = 0x0000_7000_0000_0000

// UserStackSize is the size of the initial stack, a single page per spec.md
// §4.C ("allocating a 4 KiB user stack").
const UserStackSize = mem.PageSize

// LoadELF reads an ELF64 image from r, maps each PT_LOAD segment into the
// process's address space, allocates its initial stack, and returns the
// initial register state: RIP at the entry point, RSP at the top of the stack,
// RFLAGS with IF set, everything else zero.
func (p *Process) LoadELF(frames *mem.FrameAllocator, image []byte) (SavedState, error) {
	f, err := elf.NewFile(byteReaderAt(image))
	if err != nil {
		return SavedState{}, fmt.Errorf("proc: parse elf: %w", err)
	}

	if f.Class != elf.ELFCLASS64 {
		return SavedState{}, fmt.Errorf("proc: only 64-bit binaries are supported")
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		if err := p.mapSegment(frames, prog); err != nil {
			return SavedState{}, fmt.Errorf("proc: load segment: %w", err)
		}
	}

	sp, err := p.mapStack(frames)
	if err != nil {
		return SavedState{}, fmt.Errorf("proc: map stack: %w", err)
	}

	return SavedState{
		RIP:    f.Entry,
		RSP:    uint64(sp),
		RFlags: RFlagsInterrupt,
	}, nil
}

func (p *Process) mapSegment(frames *mem.FrameAllocator, prog *elf.Prog) error {
	pageCount := alignSegment(prog.Memsz) / mem.PageSize
	if pageCount == 0 {
		pageCount = 1
	}

	segFrames := make([]mem.Frame, 0, pageCount)

	for i := uint64(0); i < pageCount; i++ {
		f, err := frames.Allocate(mem.PageSize)
		if err != nil {
			for _, done := range segFrames {
				done.Release()
			}

			return err
		}

		segFrames = append(segFrames, f)
	}

	base := mem.VirtAddr(prog.Vaddr).Page()

	perm := mem.PermRead
	if prog.Flags&elf.PF_W != 0 {
		perm |= mem.PermWrite
	}

	if prog.Flags&elf.PF_X != 0 {
		perm |= mem.PermExec
	}

	m := mem.NewFramesMapping(base, perm, segFrames)
	if err := p.Space.Map(m); err != nil {
		m.Release()
		return err
	}

	data := make([]byte, prog.Filesz)
	if _, err := io.ReadFull(prog.Open(), data); err != nil && prog.Filesz > 0 {
		return fmt.Errorf("read segment: %w", err)
	}

	offset := uint64(mem.VirtAddr(prog.Vaddr).Offset())

	for i, b := range data {
		pageIdx := (offset + uint64(i)) / mem.PageSize
		pageOff := (offset + uint64(i)) % mem.PageSize

		if int(pageIdx) >= len(segFrames) {
			return fmt.Errorf("segment data overruns its mapped pages")
		}

		segFrames[pageIdx].Bytes()[pageOff] = b
	}

	return nil
}

func (p *Process) mapStack(frames *mem.FrameAllocator) (mem.VirtAddr, error) {
	f, err := frames.Allocate(UserStackSize)
	if err != nil {
		return 0, err
	}

	m := mem.NewFramesMapping(UserStackBase, mem.PermRead|mem.PermWrite, []mem.Frame{f})
	if err := p.Space.Map(m); err != nil {
		m.Release()
		return 0, err
	}

	return UserStackBase + UserStackSize, nil
}

func alignSegment(memsz uint64) uint64 {
	return (memsz + mem.PageSize - 1) &^ (mem.PageSize - 1)
}

// byteReaderAt adapts a []byte to io.ReaderAt, for debug/elf.NewFile.
type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, fmt.Errorf("proc: read past end of image")
	}

	n := copy(p, b[off:])
	if n < len(p) {
		return n, fmt.Errorf("proc: short read")
	}

	return n, nil
}

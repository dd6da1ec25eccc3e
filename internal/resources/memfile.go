// Package resources implements concrete res.Resource variants: the file,
// directory, surface, buffer, and process-handle resources a process's
// handle table holds (spec §4.B, §9). The console and keyboard resources
// live in internal/console.
package resources

// memfile.go implements a Block resource backed entirely by an in-memory
// byte slice, standing in for the ext2/tar-backed `File` the original kernel
// opens (panda-kernel/src/resource/mod.rs's File trait, backed by
// fs/ext2 or fs/tar): both the real filesystem and this module's host
// simulator sit behind the same Block capability, so nothing downstream can
// tell the difference.

import (
	"io"
	"sync"

	"github.com/smoynes/panda/internal/res"
)

// MemFile is a seekable, resizable in-memory Block.
type MemFile struct {
	mu       sync.Mutex
	data     []byte
	offset   int64
	readOnly bool
}

// NewMemFile creates a MemFile with the given initial contents. The slice is
// copied; mutating it afterward is safe and has no effect on the resource.
func NewMemFile(contents []byte, readOnly bool) *MemFile {
	data := append([]byte(nil), contents...)

	return &MemFile{data: data, readOnly: readOnly}
}

func (f *MemFile) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.offset >= int64(len(f.data)) {
		return 0, nil
	}

	n := copy(buf, f.data[f.offset:])
	f.offset += int64(n)

	return n, nil
}

func (f *MemFile) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readOnly {
		return 0, res.ErrPermissionDenied
	}

	end := f.offset + int64(len(buf))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}

	n := copy(f.data[f.offset:end], buf)
	f.offset += int64(n)

	return n, nil
}

func (f *MemFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var next int64

	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.offset + offset
	case io.SeekEnd:
		next = int64(len(f.data)) + offset
	default:
		return 0, res.ErrInvalidArgument
	}

	if next < 0 {
		return 0, res.ErrInvalidOffset
	}

	f.offset = next

	return next, nil
}

func (f *MemFile) Stat() (res.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return res.Stat{Size: int64(len(f.data)), IsDir: false}, nil
}

func (f *MemFile) Release() {}

var _ res.Block = (*MemFile)(nil)

// StaticDirectory is a Directory resource over a fixed, pre-built listing —
// standing in for a directory read off the ext2/tar filesystem.
type StaticDirectory struct {
	entries []res.DirEntry
}

// NewStaticDirectory creates a Directory listing entries in order.
func NewStaticDirectory(entries []res.DirEntry) *StaticDirectory {
	return &StaticDirectory{entries: append([]res.DirEntry(nil), entries...)}
}

func (d *StaticDirectory) Entry(i int) (res.DirEntry, bool) {
	if i < 0 || i >= len(d.entries) {
		return res.DirEntry{}, false
	}

	return d.entries[i], true
}

func (d *StaticDirectory) Count() int { return len(d.entries) }

func (d *StaticDirectory) Release() {}

var _ res.Directory = (*StaticDirectory)(nil)

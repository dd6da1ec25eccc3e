package mem

// addrspace.go implements the per-process page table (spec §3, §4.A). Real x86-64
// paging walks four levels of tables reached through a recursive mapping; here the
// same contract — a page-granular lookup from virtual page to frame plus
// permissions — is represented directly as a map, since nothing in this module
// needs the recursive trick itself, only the lookup it provides.

import (
	"sync"
)

// pte (page table entry) records what backs one virtual page.
type pte struct {
	mapping Mapping // the mapping this page belongs to
	frame   Frame   // this page's specific frame (frames-backed mappings only)
	phys    PhysAddr
	perm    Perm
}

// AddressSpace is one process's virtual-to-physical mapping. The zero value is not
// usable; construct with NewAddressSpace.
type AddressSpace struct {
	mu       sync.RWMutex
	pages    map[VirtAddr]*pte // keyed by page-aligned VirtAddr
	mappings []Mapping         // retained so Destroy can release every mapping once
}

// NewAddressSpace creates an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{pages: make(map[VirtAddr]*pte)}
}

// Map installs m's pages into the address space. It is an error to map over a page
// that is already mapped.
func (a *AddressSpace) Map(m Mapping) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	pageCount := m.Size() / PageSize
	for i := uint64(0); i < pageCount; i++ {
		va := m.Base() + VirtAddr(i*PageSize)
		if _, ok := a.pages[va]; ok {
			return ErrAlreadyMapped
		}
	}

	for i := uint64(0); i < pageCount; i++ {
		va := m.Base() + VirtAddr(i*PageSize)

		entry := &pte{mapping: m, perm: m.Perm()}

		switch b := m.Backing().(type) {
		case FramesBacking:
			entry.frame = b.Frames[i]
			entry.phys = entry.frame.Addr()
		case MmioBacking:
			entry.phys = b.Addr + PhysAddr(i*PageSize)
		}

		a.pages[va] = entry
	}

	a.mappings = append(a.mappings, m)

	return nil
}

// Unmap removes the mapping covering base, if any, and releases it. It returns
// ErrNotMapped if base is not the start of a mapped range.
func (a *AddressSpace) Unmap(base VirtAddr) error {
	a.mu.Lock()

	entry, ok := a.pages[base]
	if !ok {
		a.mu.Unlock()
		return ErrNotMapped
	}

	m := entry.mapping
	if m.Base() != base {
		a.mu.Unlock()
		return ErrNotMapped
	}

	pageCount := m.Size() / PageSize
	for i := uint64(0); i < pageCount; i++ {
		delete(a.pages, base+VirtAddr(i*PageSize))
	}

	for i, cur := range a.mappings {
		if cur.Base() == base {
			a.mappings = append(a.mappings[:i], a.mappings[i+1:]...)
			break
		}
	}

	a.mu.Unlock()

	m.Release()

	return nil
}

// Walk translates a virtual address, returning its backing physical address and
// permissions. It returns ErrNotMapped if no mapping covers addr.
func (a *AddressSpace) Walk(addr VirtAddr) (PhysAddr, Perm, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entry, ok := a.pages[addr.Page()]
	if !ok {
		return 0, 0, ErrNotMapped
	}

	return entry.phys + PhysAddr(addr.Offset()), entry.perm, nil
}

// Lookup returns the Mapping covering addr, if any.
func (a *AddressSpace) Lookup(addr VirtAddr) (Mapping, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entry, ok := a.pages[addr.Page()]
	if !ok {
		return Mapping{}, false
	}

	return entry.mapping, true
}

// Destroy releases every mapping still installed in the address space. Called once
// when a process exits.
func (a *AddressSpace) Destroy() {
	a.mu.Lock()
	mappings := a.mappings
	a.mappings = nil
	a.pages = make(map[VirtAddr]*pte)
	a.mu.Unlock()

	for _, m := range mappings {
		m.Release()
	}
}

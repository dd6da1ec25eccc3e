package mem

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	unixProtNone      = unix.PROT_NONE
	unixProtReadWrite = unix.PROT_READ | unix.PROT_WRITE
)

var errSMAPAlreadyOpen = errors.New("mem: smap bracket already open")

// smap.go implements the SMAP bracket (spec §4.A): real hardware keeps the AC flag
// clear so that the kernel's own accidental dereference of a user pointer faults
// instead of succeeding; only an explicit bracket around a deliberate user-memory
// copy sets AC and permits the access. A guarded region is mprotect'd to PROT_NONE
// as soon as it is handed to user space; only Open, for the duration of its
// closure, restores PROT_READ|PROT_WRITE. A kernel bug that copies into user
// memory outside a bracket gets a real SIGSEGV from the host, rather than silently
// succeeding.
type SMAPGuard struct {
	region []byte
	open   bool
}

// NewSMAPGuard closes region immediately (mprotect PROT_NONE) and returns a guard
// that can later reopen it for bracketed access. region must be page-aligned
// unix.Mmap memory, i.e. a Frame's Bytes().
func NewSMAPGuard(region []byte) (*SMAPGuard, error) {
	g := &SMAPGuard{region: region}

	if err := g.protect(unixProtNone); err != nil {
		return nil, err
	}

	return g, nil
}

// Open permits kernel access to the bracketed region for the duration of fn,
// mirroring STAC/CLAC around a single copy_from_user/copy_to_user, then closes it
// again regardless of fn's outcome.
func (g *SMAPGuard) Open(fn func() error) error {
	if g.open {
		return errSMAPAlreadyOpen
	}

	if err := g.protect(unixProtReadWrite); err != nil {
		return err
	}

	g.open = true

	defer func() {
		_ = g.protect(unixProtNone)
		g.open = false
	}()

	return fn()
}

func (g *SMAPGuard) protect(prot int) error {
	if len(g.region) == 0 {
		return nil
	}

	if err := unix.Mprotect(g.region, prot); err != nil {
		return fmt.Errorf("%w: mprotect: %w", ErrAccessDenied, err)
	}

	return nil
}

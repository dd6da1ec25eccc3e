package mem

// wp.go implements the write-protect bracket (spec §4.A). Real hardware clears
// CR0.WP only for the duration of a page-table edit, with interrupts disabled so
// no other context observes the tables half-written. There is no CR0 here, so the
// same discipline — exclusive access for the duration of an edit, nothing else
// runs concurrently against the same tables — is enforced with a plain mutex held
// for the duration of Edit. AddressSpace's own Map and Unmap do not go through this
// bracket; they serialize on the AddressSpace's internal lock.

import "sync"

// WPGuard serializes page-table edits against a single AddressSpace.
type WPGuard struct {
	mu sync.Mutex
}

// NewWPGuard creates a guard. One guard should be shared by everything that edits
// a given AddressSpace's tables.
func NewWPGuard() *WPGuard {
	return &WPGuard{}
}

// Edit runs fn with exclusive access to the guarded tables, analogous to clearing
// CR0.WP and disabling interrupts around a single page-table write.
func (g *WPGuard) Edit(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return fn()
}

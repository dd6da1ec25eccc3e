package res

// handle.go implements the per-process handle table (spec §3, §4.B): a mapping
// from small integer handle ids to resources, with well-known ids reserved during
// process construction.

import (
	"container/heap"
	"sync"
)

// Reserved handle ids, preloaded during process construction (spec.md §6).
const (
	HandleSelf        HandleID = iota // the process's own ProcessCap
	HandleEnvironment                 // the ENVIRONMENT_OPEN/SPAWN namespace
	HandleParent                      // the channel to the parent, if any
	HandleMailbox                     // the process's default mailbox
	HandleStdin
	HandleStdout

	firstDynamicHandle // first id handed out by Insert
)

// MaxHandles bounds how many live handles a single process may hold.
const MaxHandles = 8192

// idHeap is a container/heap min-heap of freed handle ids, so that once the
// monotonic counter has wrapped, Insert reuses the smallest available id first.
type idHeap []HandleID

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x interface{}) { *h = append(*h, x.(HandleID)) }
func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	id := old[n-1]
	*h = old[:n-1]

	return id
}

// HandleTable is a single process's handle table. The zero value is not usable;
// construct with NewHandleTable.
type HandleTable struct {
	mu      sync.Mutex
	table   map[HandleID]Resource
	next    HandleID
	wrapped bool
	freed   idHeap
}

// NewHandleTable creates an empty handle table; reserved ids are not preloaded
// here, since the resources they name (self, environment, parent channel, default
// mailbox, stdio) are only known once the owning process exists. Callers insert
// them explicitly at construction via InsertAt.
func NewHandleTable() *HandleTable {
	return &HandleTable{
		table: make(map[HandleID]Resource),
		next:  firstDynamicHandle,
	}
}

// Insert adds resource to the table and returns its newly allocated id. Ids are
// allocated monotonically; once the counter wraps, the smallest previously freed
// id is reused instead.
func (t *HandleTable) Insert(resource Resource) (HandleID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.table) >= MaxHandles {
		return 0, ErrTooManyHandles
	}

	id := t.allocate()
	t.table[id] = resource

	return id, nil
}

// InsertAt installs resource at a specific id, used during process construction
// to preload the reserved handles. It is an error to insert over an id already in
// use.
func (t *HandleTable) InsertAt(id HandleID, resource Resource) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.table[id]; ok {
		return ErrInvalidArgument
	}

	t.table[id] = resource

	return nil
}

func (t *HandleTable) allocate() HandleID {
	if t.wrapped && len(t.freed) > 0 {
		return heap.Pop(&t.freed).(HandleID)
	}

	id := t.next

	if id == ^HandleID(0) {
		t.wrapped = true
	} else {
		t.next++
	}

	return id
}

// Get returns the resource at id, if any. The returned reference is only valid
// while the caller holds no assumption about concurrent Remove; per the locking
// discipline (spec §4.D), callers must extract what they need and not hold the
// table lock across a blocking call.
func (t *HandleTable) Get(id HandleID) (Resource, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.table[id]

	return r, ok
}

// Remove deletes and returns the resource at id, if any. It does not call
// Release; callers that own the strong reference decide when to release it
// (typically immediately, unless the resource is being relocated into another
// table, as with channel endpoints during spawn).
func (t *HandleTable) Remove(id HandleID) (Resource, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.table[id]
	if !ok {
		return nil, false
	}

	delete(t.table, id)
	heap.Push(&t.freed, id)

	return r, true
}

// Len reports the number of live handles, for tests and diagnostics.
func (t *HandleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.table)
}

// Close releases every resource still held by the table. Called once when a
// process exits.
func (t *HandleTable) Close() {
	t.mu.Lock()
	resources := make([]Resource, 0, len(t.table))

	for id, r := range t.table {
		resources = append(resources, r)
		delete(t.table, id)
	}

	t.mu.Unlock()

	for _, r := range resources {
		r.Release()
	}
}

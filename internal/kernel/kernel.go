// Package kernel assembles the memory, resource, process, scheduler, and IPC
// subsystems into the single-entry-point `send(handle, op, args)` syscall
// surface spec.md §4.E describes, and implements ENVIRONMENT_SPAWN's process
// lifecycle (spec §4.C, §4.E).
package kernel

// kernel.go defines Kernel and its construction, mirroring internal/vm/vm.go's
// New(opts ...OptionFn): every OptionFn runs twice, once before the default
// schemes and devices are wired up (so an option can replace a scheme
// factory before it's used) and once after (so an option can see the fully
// assembled kernel, e.g. to seed a process via Spawn). Unlike the LC-3
// machine, which drops privileges between the two passes, this kernel has no
// such boundary: both passes run with the same authority, since nothing here
// models ring transitions.
import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/smoynes/panda/internal/console"
	"github.com/smoynes/panda/internal/ipc"
	"github.com/smoynes/panda/internal/mem"
	"github.com/smoynes/panda/internal/proc"
	"github.com/smoynes/panda/internal/res"
	"github.com/smoynes/panda/internal/resources"
	"github.com/smoynes/panda/internal/sched"
)

// Config holds the fixed parameters a Kernel is constructed with.
type Config struct {
	// Quantum is the preemption timer period (spec §4.D). Zero selects the
	// scheduler's own default.
	Quantum time.Duration

	// ChannelCapacity is the default queue depth for channels this kernel
	// creates. Zero selects ipc.DefaultChannelCapacity.
	ChannelCapacity int

	// MailboxCapacity is the default bound for a process's default mailbox.
	// Zero selects ipc.DefaultMailboxCapacity.
	MailboxCapacity int

	// Console, if non-nil, backs the console: and keyboard: schemes with a
	// real host terminal. Left nil, those schemes are not registered.
	Console *console.Console
}

// schemeFactory creates the resource a URI's path names, for one registered
// scheme.
type schemeFactory func(k *Kernel, canonicalPath string) (res.Resource, error)

// Kernel owns every process and every scheme-backed resource factory, and is
// the sole implementation of the `send` syscall.
type Kernel struct {
	cfg Config

	frames *mem.FrameAllocator
	sched  *sched.Scheduler

	mu        sync.Mutex
	processes map[uint64]*proc.Process

	schemeMu sync.RWMutex
	schemes  map[string]schemeFactory

	filesMu sync.Mutex
	files   map[string][]byte // seeded file:/block: content, keyed by canonical path

	ctx    context.Context
	cancel context.CancelFunc
}

// OptionFn configures a Kernel during New. Each is invoked twice: once with
// late == false, before default schemes are registered, and once with
// late == true, after the kernel is fully assembled and its scheduler loop
// started.
type OptionFn func(k *Kernel, late bool)

// New assembles a Kernel and starts its scheduler's dispatch loop in the
// background.
func New(cfg Config, opts ...OptionFn) *Kernel {
	if cfg.Quantum == 0 {
		cfg.Quantum = 10 * time.Millisecond
	}

	if cfg.ChannelCapacity == 0 {
		cfg.ChannelCapacity = ipc.DefaultChannelCapacity
	}

	if cfg.MailboxCapacity == 0 {
		cfg.MailboxCapacity = ipc.DefaultMailboxCapacity
	}

	ctx, cancel := context.WithCancel(context.Background())

	k := &Kernel{
		cfg:       cfg,
		frames:    mem.NewFrameAllocator(),
		sched:     sched.New(cfg.Quantum),
		processes: make(map[uint64]*proc.Process),
		schemes:   make(map[string]schemeFactory),
		files:     make(map[string][]byte),
		ctx:       ctx,
		cancel:    cancel,
	}

	for _, fn := range opts {
		fn(k, false)
	}

	k.registerDefaultSchemes()

	go k.sched.Run(ctx)

	for _, fn := range opts {
		fn(k, true)
	}

	return k
}

// WithFile seeds the file: scheme's backing store so that
// ENVIRONMENT_OPEN("file:"+uriPath) returns a MemFile with contents.
// uriPath is canonicalized the same way ENVIRONMENT_OPEN canonicalizes
// any path, so callers may pass it uncleaned.
func WithFile(uriPath string, contents []byte) OptionFn {
	return func(k *Kernel, late bool) {
		if late {
			return
		}

		k.filesMu.Lock()
		k.files[canonicalizePath(uriPath)] = append([]byte(nil), contents...)
		k.filesMu.Unlock()
	}
}

// Close stops the kernel's scheduler loop. It does not wait for processes to
// exit.
func (k *Kernel) Close() {
	k.cancel()
}

// Frames returns the kernel's frame allocator, for resources constructed
// outside the syscall dispatcher (e.g. a test harness pre-populating a
// buffer).
func (k *Kernel) Frames() *mem.FrameAllocator { return k.frames }

// registerDefaultSchemes wires up the schemes spec.md §6 names:
// file, console, block, keyboard, surface. console and keyboard are
// registered only when Config.Console is set. A name an early OptionFn has
// already registered keeps that option's factory.
func (k *Kernel) registerDefaultSchemes() {
	defaults := make(map[string]schemeFactory)

	defaults["file"] = func(k *Kernel, p string) (res.Resource, error) {
		k.filesMu.Lock()
		contents, ok := k.files[p]
		k.filesMu.Unlock()

		if !ok {
			return nil, res.ErrNotFound
		}

		return resources.NewMemFile(contents, false), nil
	}

	defaults["block"] = defaults["file"]

	defaults["surface"] = func(k *Kernel, p string) (res.Resource, error) {
		return resources.NewMemSurface(640, 480), nil
	}

	if k.cfg.Console != nil {
		defaults["console"] = func(k *Kernel, p string) (res.Resource, error) {
			return console.NewConsoleBlock(k.cfg.Console), nil
		}

		defaults["keyboard"] = func(k *Kernel, p string) (res.Resource, error) {
			return console.NewKeyboardSource(k.cfg.Console), nil
		}
	}

	for name, f := range defaults {
		if _, ok := k.schemes[name]; !ok {
			k.schemes[name] = f
		}
	}
}

// RegisterScheme installs (or replaces) the factory backing scheme. Intended
// for use from an early OptionFn.
func (k *Kernel) RegisterScheme(scheme string, factory func(k *Kernel, canonicalPath string) (res.Resource, error)) {
	k.schemeMu.Lock()
	k.schemes[scheme] = factory
	k.schemeMu.Unlock()
}

// resolveURI parses and opens uri per spec.md §6's grammar: scheme:path,
// where scheme selects a registered factory and path is canonicalized before
// lookup. The wildcard scheme "*" tries every registered scheme in turn and
// returns the first that resolves.
func (k *Kernel) resolveURI(uri string) (res.Resource, error) {
	scheme, rawPath, ok := strings.Cut(uri, ":")
	if !ok {
		return nil, res.ErrInvalidArgument
	}

	p := canonicalizePath(rawPath)

	if scheme == "*" {
		k.schemeMu.RLock()
		factories := make([]schemeFactory, 0, len(k.schemes))
		for _, f := range k.schemes {
			factories = append(factories, f)
		}
		k.schemeMu.RUnlock()

		for _, f := range factories {
			if r, err := f(k, p); err == nil {
				return r, nil
			}
		}

		return nil, res.ErrNotFound
	}

	k.schemeMu.RLock()
	factory, ok := k.schemes[scheme]
	k.schemeMu.RUnlock()

	if !ok {
		return nil, res.ErrNotFound
	}

	return factory(k, p)
}

// canonicalizePath resolves "." and ".." components, clamps ".." past root to
// root, and collapses repeated slashes (spec.md §6, tested by §8's
// Path-canonicalisation property). path.Clean already implements exactly this
// set of rules for an absolute, slash-separated path; there is no ecosystem
// library that does this job better than the standard library's own path
// package, which exists for precisely this purpose.
func canonicalizePath(p string) string {
	if p == "" {
		p = "/"
	}

	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	return path.Clean(p)
}

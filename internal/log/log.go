// Package log provides the kernel's logging output.
package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// DefaultLogger returns a new formatted logger writing to os.Stderr. It does not
	// return the logger installed with SetDefault.
	DefaultLogger = func() *Logger { return NewFormattedLogger(os.Stderr) }

	// SetDefault overrides the process-wide default logger.
	SetDefault = slog.SetDefault

	// LogLevel controls the minimum level emitted by every Handler created by this
	// package. It can be changed at runtime, e.g. from a CLI flag.
	LogLevel = &slog.LevelVar{}
)

// NewFormattedLogger returns a logger that writes one line per record to out, safe for
// concurrent use by many goroutines (every process and kernel subsystem logs through the
// same handler instance).
func NewFormattedLogger(out io.Writer) *Logger {
	return slog.New(NewHandler(out))
}

// Handler implements slog.Handler with a compact, single-line key=value format. A
// single line per record keeps concurrent output from many process goroutines legible,
// unlike a multi-line block format which interleaves badly under concurrency.
type Handler struct {
	mut *sync.Mutex
	out io.Writer

	opts   *slog.HandlerOptions
	prefix string // dotted group prefix, e.g. "sched.dispatch."
	attrs  []Attr
}

// Options are the default handler options: source location included, level gated by
// LogLevel.
var Options = &slog.HandlerOptions{
	AddSource: true,
	Level:     LogLevel,
}

// NewHandler creates a Handler writing to out.
func NewHandler(out io.Writer) *Handler {
	return &Handler{
		out:  out,
		mut:  new(sync.Mutex),
		opts: Options,
	}
}

// Enabled reports whether level is loggable given the handler's configured level.
func (h *Handler) Enabled(_ context.Context, level Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle formats and writes a single log record.
func (h *Handler) Handle(_ context.Context, rec slog.Record) error {
	buf := bytes.NewBuffer(make([]byte, 0, 256))

	if !rec.Time.IsZero() {
		fmt.Fprintf(buf, "%s ", rec.Time.Format(time.RFC3339Nano))
	}

	fmt.Fprintf(buf, "%-5s %s", rec.Level.String(), rec.Message)

	if h.opts.AddSource && rec.PC != 0 {
		if frame := sourceFrame(rec.PC); frame != "" {
			fmt.Fprintf(buf, " source=%s", frame)
		}
	}

	for _, a := range h.attrs {
		h.appendAttr(buf, h.prefix, a)
	}

	rec.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, h.prefix, a)
		return true
	})

	buf.WriteByte('\n')

	h.mut.Lock()
	defer h.mut.Unlock()

	_, err := h.out.Write(buf.Bytes())

	return err
}

func (h *Handler) appendAttr(out *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()

	if a.Equal(Attr{}) {
		return
	}

	key := prefix + a.Key

	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		sort.SliceStable(group, func(i, j int) bool { return group[i].Key < group[j].Key })

		for _, ga := range group {
			h.appendAttr(out, key+".", ga)
		}

		return
	}

	fmt.Fprintf(out, " %s=%v", key, a.Value.Any())
}

// WithGroup returns a handler that nests subsequent attributes under name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	attrs := make([]Attr, len(h.attrs))
	copy(attrs, h.attrs)

	return &Handler{
		mut:    h.mut,
		out:    h.out,
		opts:   h.opts,
		attrs:  attrs,
		prefix: h.prefix + name + ".",
	}
}

// WithAttrs returns a handler with attrs merged into every subsequent record.
func (h *Handler) WithAttrs(attrs []Attr) slog.Handler {
	merged := make([]Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)

	return &Handler{
		out:    h.out,
		mut:    h.mut,
		opts:   h.opts,
		attrs:  merged,
		prefix: h.prefix,
	}
}

func sourceFrame(pc uintptr) string {
	frames := runtime.CallersFrames([]uintptr{pc})

	f, _ := frames.Next()
	if f.File == "" {
		return ""
	}

	_, file := path.Split(f.File)
	fn := f.Function

	if idx := strings.LastIndex(fn, "/"); idx >= 0 {
		fn = fn[idx+1:]
	}

	return fmt.Sprintf("%s:%d:%s", file, f.Line, fn)
}

// Loggable is implemented by kernel components that accept a logger after construction.
type Loggable interface {
	WithLogger(*Logger)
}

type (
	Attr   = slog.Attr
	Level  = slog.Level
	Logger = slog.Logger
	Value  = slog.Value
)

var (
	String      = slog.String
	Int         = slog.Int
	Uint64      = slog.Uint64
	Bool        = slog.Bool
	StringValue = slog.StringValue
	Group       = slog.Group
	GroupValue  = slog.GroupValue
	Any         = slog.Any
	AnyValue    = slog.AnyValue
)

const (
	Debug = slog.LevelDebug
	Info  = slog.LevelInfo
	Warn  = slog.LevelWarn
	Error = slog.LevelError
)

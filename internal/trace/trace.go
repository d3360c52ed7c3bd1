// Package trace implements the per-call trace line and exit summary a
// worker emits over its control channel: one line per dispatched method
// (name, fd if any, errno, duration), gated by a bitset of enabled
// scopes so a caller can trace just filesystem calls, just clock calls,
// and so on without drowning in unrelated noise.
//
// Modeled on wazero's internal/logging.LogScopes bitflag design (a
// uint64 of named bits, an "all" sentinel, and a String method that
// renders the enabled set as a pipe-joined name list), re-targeted from
// "which wasm import to log" to "which WASI category to trace".
package trace

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Scope identifies one category of traced call.
type Scope uint64

const (
	ScopeNone       = Scope(0)
	ScopeClock Scope = 1 << iota
	ScopeProc
	ScopeFilesystem
	ScopeMemory
	ScopePoll
	ScopeRandom
	ScopeSock
	ScopeAll = Scope(0xffffffffffffffff)
)

func scopeName(s Scope) string {
	switch s {
	case ScopeClock:
		return "clock"
	case ScopeProc:
		return "proc"
	case ScopeFilesystem:
		return "filesystem"
	case ScopeMemory:
		return "memory"
	case ScopePoll:
		return "poll"
	case ScopeRandom:
		return "random"
	case ScopeSock:
		return "sock"
	default:
		return ""
	}
}

// Enabled reports whether scope (or any bit in a group of scopes) is set.
func (f Scope) Enabled(scope Scope) bool { return f&scope != 0 }

// String renders the enabled scopes as a pipe-joined, stable name list.
func (f Scope) String() string {
	if f == ScopeAll {
		return "all"
	}
	var b strings.Builder
	for i := 0; i <= 63; i++ {
		target := Scope(1 << i)
		if f.Enabled(target) {
			if name := scopeName(target); name != "" {
				if b.Len() > 0 {
					b.WriteByte('|')
				}
				b.WriteString(name)
			}
		}
	}
	return b.String()
}

// Event is one traced call, ready to be rendered as a single line.
type Event struct {
	Method   string
	FD       int32 // -1 if the call has no fd argument
	Errno    uint32
	Duration time.Duration
}

func (e Event) String() string {
	if e.FD >= 0 {
		return fmt.Sprintf("%s fd=%d errno=%d dur=%s", e.Method, e.FD, e.Errno, e.Duration)
	}
	return fmt.Sprintf("%s errno=%d dur=%s", e.Method, e.Errno, e.Duration)
}

// ScopeFor classifies a method name into the Scope it belongs to, for
// filtering; methods outside the known prefixes map to ScopeAll and so
// are traced whenever any scope is enabled.
func ScopeFor(method string) Scope {
	switch {
	case strings.HasPrefix(method, "clock_"):
		return ScopeClock
	case strings.HasPrefix(method, "proc_"):
		return ScopeProc
	case strings.HasPrefix(method, "fd_") || strings.HasPrefix(method, "path_"):
		return ScopeFilesystem
	case strings.HasPrefix(method, "poll_"):
		return ScopePoll
	case method == "random_get":
		return ScopeRandom
	case strings.HasPrefix(method, "sock_"):
		return ScopeSock
	default:
		return ScopeAll
	}
}

// Sink accumulates trace events for one worker and can render a summary
// line (call counts per method, total errno!=0 count) on exit.
type Sink struct {
	mu      sync.Mutex
	enabled Scope
	events  []Event
	counts  map[string]int
	errors  int
}

func NewSink(enabled Scope) *Sink {
	return &Sink{enabled: enabled, counts: make(map[string]int)}
}

// Record appends ev if its scope is enabled, and always updates summary
// counters regardless of scope (the summary reflects the whole run).
func (s *Sink) Record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[ev.Method]++
	if ev.Errno != 0 {
		s.errors++
	}
	if s.enabled.Enabled(ScopeFor(ev.Method)) {
		s.events = append(s.events, ev)
	}
}

// Lines returns every recorded trace line in order, for emission over
// the control channel as "trace" control messages.
func (s *Sink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, len(s.events))
	for i, ev := range s.events {
		lines[i] = ev.String()
	}
	return lines
}

// Summary renders the final "trace_summary" control message text: total
// calls, total errors, and a per-method breakdown sorted by call name.
func (s *Sink) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	names := make([]string, 0, len(s.counts))
	for name, n := range s.counts {
		total += n
		names = append(names, name)
	}
	sortStrings(names)
	var b strings.Builder
	fmt.Fprintf(&b, "calls=%d errors=%d", total, s.errors)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%d", name, s.counts[name])
	}
	return b.String()
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

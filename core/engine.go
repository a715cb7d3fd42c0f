package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// EngineType tags the automation backend a step is bound to.
type EngineType string

const (
	// EngineBrowser is the CDP driven browser engine (engine A).
	EngineBrowser EngineType = "browser"
	// EngineWeb is the HTTP engine (engine B) participating in blocking mode.
	EngineWeb EngineType = "web"
	// EngineWebAsync is the HTTP engine participating cooperatively.
	EngineWebAsync EngineType = "web_async"
)

// String implements fmt.Stringer.
func (t EngineType) String() string { return string(t) }

// EngineHandle is an opaque handle for one automation backend instance. The
// orchestration core never inspects it; it is only passed to actions and to
// the SessionGateway.
type EngineHandle any

// Handles is the engine handle registry supplied to an execute call. It is
// keyed by the HandleKey of an EngineSpec.
type Handles map[EngineType]EngineHandle

// Mode selects how a step participates in a run: blocking calls are made
// directly on the executing goroutine, cooperative calls are awaited and
// abandoned on cancellation.
type Mode int

const (
	// ModeBlocking injects sessions through SessionGateway.InjectSync.
	ModeBlocking Mode = iota
	// ModeCooperative injects sessions through SessionGateway.InjectAsync.
	ModeCooperative
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeBlocking:
		return "blocking"
	case ModeCooperative:
		return "cooperative"
	default:
		return "unknown"
	}
}

// EngineSpec is one row of the engine lookup table.
type EngineSpec struct {
	Type      EngineType
	HandleKey EngineType
	Mode      Mode
}

// EngineTable maps engine types to their handle key and injection mode. It is
// resolved once per step by the executor. Safe for concurrent use.
type EngineTable struct {
	mu    sync.RWMutex
	specs map[EngineType]EngineSpec
}

// NewEngineTable creates a table holding the given specs.
func NewEngineTable(specs ...EngineSpec) *EngineTable {
	t := &EngineTable{specs: make(map[EngineType]EngineSpec, len(specs))}
	for _, s := range specs {
		t.specs[s.Type] = s
	}
	return t
}

// DefaultEngineTable returns a table with the built-in engine types. Each
// engine type owns its own handle key.
func DefaultEngineTable() *EngineTable {
	return NewEngineTable(
		EngineSpec{Type: EngineBrowser, HandleKey: EngineBrowser, Mode: ModeBlocking},
		EngineSpec{Type: EngineWeb, HandleKey: EngineWeb, Mode: ModeBlocking},
		EngineSpec{Type: EngineWebAsync, HandleKey: EngineWebAsync, Mode: ModeCooperative},
	)
}

// Register adds or replaces an engine spec. An empty HandleKey defaults to
// the engine type itself.
func (t *EngineTable) Register(spec EngineSpec) error {
	if strings.TrimSpace(string(spec.Type)) == "" {
		return fmt.Errorf("%w: empty engine type", ErrInvalidEngineType)
	}
	if spec.HandleKey == "" {
		spec.HandleKey = spec.Type
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.specs[spec.Type] = spec
	return nil
}

// Lookup returns the spec registered for an engine type.
func (t *EngineTable) Lookup(et EngineType) (EngineSpec, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.specs[et]
	return s, ok
}

// Parse resolves an engine type name case-insensitively.
func (t *EngineTable) Parse(name string) (EngineType, error) {
	want := strings.TrimSpace(name)
	t.mu.RLock()
	defer t.mu.RUnlock()
	for et := range t.specs {
		if strings.EqualFold(string(et), want) {
			return et, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEngineType, name)
}

// Resolve accepts an EngineType or a string name and returns the registered
// engine type. Any other value fails with ErrInvalidEngineType.
func (t *EngineTable) Resolve(v any) (EngineType, error) {
	switch et := v.(type) {
	case EngineType:
		if _, ok := t.Lookup(et); ok {
			return et, nil
		}
		return t.Parse(string(et))
	case string:
		return t.Parse(et)
	default:
		return "", fmt.Errorf("%w: unsupported value of type %T", ErrInvalidEngineType, v)
	}
}

// Types lists the registered engine types in lexical order.
func (t *EngineTable) Types() []EngineType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]EngineType, 0, len(t.specs))
	for et := range t.specs {
		out = append(out, et)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/enginebridge/core"
	"github.com/hupe1980/enginebridge/internal/util"
)

// ErrUnknownAction is returned when a definition references an action that
// is not registered.
var ErrUnknownAction = errors.New("enginebridge: unknown action")

// Definition is the declarative form of a workflow.
type Definition struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Metadata    map[string]any   `yaml:"metadata,omitempty"`
	Steps       []StepDefinition `yaml:"steps"`
}

// StepDefinition describes one step. Pointer fields distinguish "unset"
// from an explicit zero so the builder defaults still apply.
type StepDefinition struct {
	Name            string         `yaml:"name"`
	Engine          string         `yaml:"engine"`
	Action          string         `yaml:"action"`
	RequiresSession *bool          `yaml:"requires_session,omitempty"`
	ProducesSession bool           `yaml:"produces_session,omitempty"`
	OnFailure       string         `yaml:"on_failure,omitempty"`
	Timeout         string         `yaml:"timeout,omitempty"`
	RetryCount      int            `yaml:"retry_count,omitempty"`
	Metadata        map[string]any `yaml:"metadata,omitempty"`
}

// Normalized trims identifiers and validates the definition shape.
func (d Definition) Normalized() (Definition, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return Definition{}, fmt.Errorf("workflow: definition name is required")
	}
	if len(d.Steps) == 0 {
		return Definition{}, fmt.Errorf("workflow %s: at least one step is required", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for i := range d.Steps {
		s := &d.Steps[i]
		s.Name = strings.TrimSpace(s.Name)
		s.Action = strings.TrimSpace(s.Action)
		if s.Name == "" {
			return Definition{}, fmt.Errorf("workflow %s: step %d: name is required", d.Name, i)
		}
		if _, dup := seen[s.Name]; dup {
			return Definition{}, fmt.Errorf("workflow %s: duplicate step %q", d.Name, s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Action == "" {
			s.Action = s.Name
		}
	}
	return d, nil
}

// ParseDefinitionYAML decodes a workflow definition from YAML/JSON bytes.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("workflow: definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("workflow: decode definition: %w", err)
	}
	return def.Normalized()
}

// ParseDefinitionTemplate expands {{ }} markers in data with vars before
// decoding it, e.g. {{ .base_url }} or {{ env "SHOP_USER" }}.
func ParseDefinitionTemplate(data []byte, vars map[string]any) (Definition, error) {
	rendered, err := util.RenderTemplate("workflow", string(data), vars)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: render definition: %w", err)
	}
	return ParseDefinitionYAML([]byte(rendered))
}

// LoadDefinitionReader reads workflow definition data from an io.Reader.
func LoadDefinitionReader(r io.Reader) (Definition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: read definition: %w", err)
	}
	return ParseDefinitionYAML(content)
}

// LoadDefinitionFile loads a workflow definition from a file path.
func LoadDefinitionFile(path string) (Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	def, parseErr := ParseDefinitionYAML(content)
	if parseErr != nil {
		return Definition{}, fmt.Errorf("workflow: %s: %w", path, parseErr)
	}
	return def, nil
}

// Build materializes the definition into a Workflow, resolving actions
// through the registry and engine names through table (nil for the default).
func (d Definition) Build(table *core.EngineTable, actions *ActionRegistry) (*Workflow, error) {
	w := DefineWithTable(table, d.Name, d.Description, d.Metadata)
	for _, sd := range d.Steps {
		action, ok := actions.Get(sd.Action)
		if !ok {
			return nil, fmt.Errorf("workflow %s: step %q: %w: %q", d.Name, sd.Name, ErrUnknownAction, sd.Action)
		}
		policy, err := core.ParseFailurePolicy(sd.OnFailure)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: step %q: %w", d.Name, sd.Name, err)
		}
		var timeout time.Duration
		if sd.Timeout != "" {
			timeout, err = time.ParseDuration(sd.Timeout)
			if err != nil {
				return nil, fmt.Errorf("workflow %s: step %q: timeout: %w", d.Name, sd.Name, err)
			}
		}
		if _, err := w.AddStep(sd.Name, sd.Engine, action, func(o *StepOptions) {
			if sd.RequiresSession != nil {
				o.RequiresSession = *sd.RequiresSession
			}
			o.ProducesSession = sd.ProducesSession
			o.OnFailure = policy
			o.Timeout = timeout
			o.RetryCount = sd.RetryCount
			o.Metadata = sd.Metadata
		}); err != nil {
			return nil, fmt.Errorf("workflow %s: %w", d.Name, err)
		}
	}
	return w, nil
}

// ActionRegistry binds action names used in definitions to implementations.
// Safe for concurrent use.
type ActionRegistry struct {
	mu      sync.RWMutex
	actions map[string]core.Action
}

// NewActionRegistry creates an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: make(map[string]core.Action)}
}

// Register adds or replaces a named action.
func (r *ActionRegistry) Register(name string, action core.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = action
}

// Get returns the action registered under name.
func (r *ActionRegistry) Get(name string) (core.Action, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// Names lists registered action names in lexical order.
func (r *ActionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.actions))
	for n := range r.actions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

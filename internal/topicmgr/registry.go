package topicmgr

import (
	"sort"
	"sync"
	"time"
)

// Registry holds registered topics by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by package-level topic
// definitions.
func Default() *Registry {
	return defaultRegistry
}

// Register validates and adds t. Names must be unique.
func (r *Registry) Register(t Topic) error {
	if err := Validate(t); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[t.Name]; exists {
		return &TopicError{Type: ErrorDuplicateRegistration, Topic: t.Name, Message: "already registered"}
	}
	r.entries[t.Name] = Entry{Topic: t, RegisteredAt: time.Now()}
	return nil
}

// MustRegister is Register for package-level definitions; it panics on error.
func (r *Registry) MustRegister(t Topic) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the topic registered under name.
func (r *Registry) Get(name string) (Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.Topic, ok
}

// List returns every topic sorted by name.
func (r *Registry) List() []Topic {
	return r.filter(func(Topic) bool { return true })
}

// ListByModule returns the topics owned by module, sorted by name.
func (r *Registry) ListByModule(module string) []Topic {
	return r.filter(func(t Topic) bool { return t.Module == module })
}

func (r *Registry) filter(keep func(Topic) bool) []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Topic
	for _, e := range r.entries {
		if keep(e.Topic) {
			out = append(out, e.Topic)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

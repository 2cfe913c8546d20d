package dispatcher

import (
	"maps"
	"slices"
	"sync"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// TemplateSet is a concurrency-safe template registry keyed by notification
// type. Channels embed one to serve Template lookups.
type TemplateSet struct {
	mu        sync.RWMutex
	templates map[notifications.Type]notifications.Template
}

// NewTemplateSet copies defaults into a new set.
func NewTemplateSet(defaults map[notifications.Type]notifications.Template) *TemplateSet {
	ts := &TemplateSet{templates: make(map[notifications.Type]notifications.Template, len(defaults))}
	for t, tmpl := range defaults {
		if tmpl.Type == "" {
			tmpl.Type = t
		}
		ts.templates[t] = tmpl
	}
	return ts
}

// Template returns the template registered for t.
func (ts *TemplateSet) Template(t notifications.Type) (notifications.Template, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	tmpl, ok := ts.templates[t]
	return tmpl, ok
}

// Set adds or replaces the template for tmpl.Type.
func (ts *TemplateSet) Set(tmpl notifications.Template) {
	ts.mu.Lock()
	ts.templates[tmpl.Type] = tmpl
	ts.mu.Unlock()
}

// Remove deletes the template for t.
func (ts *TemplateSet) Remove(t notifications.Type) {
	ts.mu.Lock()
	delete(ts.templates, t)
	ts.mu.Unlock()
}

// Types returns the registered types in sorted order.
func (ts *TemplateSet) Types() []notifications.Type {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return slices.Sorted(maps.Keys(ts.templates))
}

// Package registry provides an explicit owner for long-lived resources
// (pollers, connection providers). The owning scope creates one Registry,
// passes it to the components that need it and calls CloseAll when it ends.
package registry

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// Registry tracks named io.Closer resources.
type Registry struct {
	mu        sync.Mutex
	resources map[string]io.Closer
	closed    bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{resources: make(map[string]io.Closer)}
}

// Register adds a resource under name, replacing and closing any previous holder of the name.
// Registering on a closed registry closes the resource immediately.
func (r *Registry) Register(name string, c io.Closer) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		logger.Warnf("Registry: '%s' registered after CloseAll; closing it now.", name)
		return c.Close()
	}
	prev, exists := r.resources[name]
	r.resources[name] = c
	r.mu.Unlock()

	if exists && prev != c {
		logger.Debugf("Registry: replacing resource '%s'.", name)
		return prev.Close()
	}
	return nil
}

// Unregister removes name without closing it. It is a no-op for unknown names.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resources, name)
}

// Len returns the number of registered resources.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resources)
}

// CloseAll closes every registered resource in name order and empties the registry.
// All close errors are returned together.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	resources := r.resources
	r.resources = make(map[string]io.Closer)
	r.closed = true
	r.mu.Unlock()

	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}
	sort.Strings(names)

	var result error
	for _, name := range names {
		if err := resources[name].Close(); err != nil {
			logger.Errorf("Registry: failed to close '%s': %v", name, err)
			result = multierror.Append(result, fmt.Errorf("close %s: %w", name, err))
		}
	}
	if len(names) > 0 {
		logger.Infof("Registry: closed %d resource(s).", len(names))
	}
	return result
}

// Reopen allows registrations again after CloseAll.
func (r *Registry) Reopen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = false
}

package authplugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrNoPlugins indicates a registry was built without plugins.
	ErrNoPlugins = errors.New("authplugin: no plugins configured")
	// ErrPluginNotFound indicates the requested plugin is not registered.
	ErrPluginNotFound = errors.New("authplugin: plugin not found")
)

// Registry is an immutable set of named plugins.
type Registry struct {
	plugins map[string]Plugin
	order   []string
}

// NewRegistry builds a Registry. Names must be unique and non-empty.
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	if len(plugins) == 0 {
		return nil, ErrNoPlugins
	}

	r := &Registry{plugins: make(map[string]Plugin, len(plugins))}
	for i, p := range plugins {
		if p == nil {
			return nil, fmt.Errorf("authplugin: plugin at index %d is nil", i)
		}
		name := p.Name()
		if name == "" {
			return nil, fmt.Errorf("authplugin: plugin at index %d has no name", i)
		}
		if _, ok := r.plugins[name]; ok {
			return nil, fmt.Errorf("authplugin: duplicate plugin name %q", name)
		}
		r.plugins[name] = p
		r.order = append(r.order, name)
	}

	return r, nil
}

// Names returns plugin names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Get returns the named plugin.
func (r *Registry) Get(name string) (Plugin, error) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPluginNotFound, name)
	}
	return p, nil
}

// Check runs the named plugin's Check.
func (r *Registry) Check(ctx context.Context, name string, req CheckRequest) (CheckResponse, error) {
	p, err := r.Get(name)
	if err != nil {
		return CheckResponse{}, err
	}
	return p.Check(ctx, req), nil
}

// Verify runs the named plugin's Verify.
func (r *Registry) Verify(ctx context.Context, name string, req VerifyRequest) (VerifyResponse, error) {
	p, err := r.Get(name)
	if err != nil {
		return VerifyResponse{}, err
	}
	return p.Verify(ctx, req), nil
}

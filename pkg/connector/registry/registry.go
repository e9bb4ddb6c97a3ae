// Package registry maps connector type names to factories. Connector packages
// register themselves from init, so importing a connector package is enough
// to make it available to pipelines and the CLI.
package registry

import (
	"sort"
	"sync"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/logger"
	"go.uber.org/zap"
)

// SourceFactory builds a source from its config. Initialize is called later.
type SourceFactory func(config *config.BaseConfig) (core.Source, error)

// DestinationFactory builds a destination from its config.
type DestinationFactory func(config *config.BaseConfig) (core.Destination, error)

// factories is one side of the registry, sources or destinations.
type factories[F any] struct {
	kind   string
	mu     sync.RWMutex
	byName map[string]F
}

func newFactories[F any](kind string) *factories[F] {
	return &factories[F]{kind: kind, byName: make(map[string]F)}
}

func (f *factories[F]) register(name string, factory F, log *zap.Logger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.byName[name]; dup {
		return errors.Newf(errors.ErrorTypeConfig, "%s connector %s already registered", f.kind, name)
	}
	f.byName[name] = factory
	log.Debug(f.kind+" connector registered", zap.String("name", name))
	return nil
}

func (f *factories[F]) lookup(name string) (F, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	factory, ok := f.byName[name]
	if !ok {
		return factory, errors.Newf(errors.ErrorTypeConfig, "%s connector %s not found", f.kind, name)
	}
	return factory, nil
}

func (f *factories[F]) has(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.byName[name]
	return ok
}

func (f *factories[F]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.byName))
	for name := range f.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Registry holds source and destination factories. It is safe for
// concurrent use.
type Registry struct {
	sources      *factories[SourceFactory]
	destinations *factories[DestinationFactory]
	logger       *zap.Logger
}

var global = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		sources:      newFactories[SourceFactory]("source"),
		destinations: newFactories[DestinationFactory]("destination"),
		logger:       logger.With(zap.String("component", "connector_registry")),
	}
}

// RegisterSource fails when name is taken.
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	return r.sources.register(name, factory, r.logger)
}

// RegisterDestination fails when name is taken.
func (r *Registry) RegisterDestination(name string, factory DestinationFactory) error {
	return r.destinations.register(name, factory, r.logger)
}

// CreateSource runs the factory registered under name. Factory errors keep
// their type under a config error.
func (r *Registry) CreateSource(name string, cfg *config.BaseConfig) (core.Source, error) {
	factory, err := r.sources.lookup(name)
	if err != nil {
		return nil, err
	}
	src, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to create source connector %s", name)
	}
	return src, nil
}

// CreateDestination runs the factory registered under name.
func (r *Registry) CreateDestination(name string, cfg *config.BaseConfig) (core.Destination, error) {
	factory, err := r.destinations.lookup(name)
	if err != nil {
		return nil, err
	}
	dst, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to create destination connector %s", name)
	}
	return dst, nil
}

// ListSources returns the registered source names, sorted.
func (r *Registry) ListSources() []string { return r.sources.names() }

// ListDestinations returns the registered destination names, sorted.
func (r *Registry) ListDestinations() []string { return r.destinations.names() }

func (r *Registry) HasSource(name string) bool      { return r.sources.has(name) }
func (r *Registry) HasDestination(name string) bool { return r.destinations.has(name) }

// The functions below act on the process wide registry.

func RegisterSource(name string, factory SourceFactory) error {
	return global.RegisterSource(name, factory)
}

func RegisterDestination(name string, factory DestinationFactory) error {
	return global.RegisterDestination(name, factory)
}

func CreateSource(name string, cfg *config.BaseConfig) (core.Source, error) {
	return global.CreateSource(name, cfg)
}

func CreateDestination(name string, cfg *config.BaseConfig) (core.Destination, error) {
	return global.CreateDestination(name, cfg)
}

func ListSources() []string      { return global.ListSources() }
func ListDestinations() []string { return global.ListDestinations() }

func HasSource(name string) bool      { return global.HasSource(name) }
func HasDestination(name string) bool { return global.HasDestination(name) }

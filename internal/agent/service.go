// Package agent ties discovery, the registry and the query pipeline
// together. Service is the schema-learning facade, Orchestrator runs
// natural-language and raw queries, and StartupRunner performs the
// boot-time discovery.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
	"github.com/koustreak/dataagent/internal/registry"
)

// Discoverer produces descriptors. *introspect.Introspector implements it.
type Discoverer interface {
	Discover(ctx context.Context, scope string) ([]*model.EntityDescriptor, error)
	DescribeType(target any) (*model.EntityDescriptor, error)
}

// ServiceOptions tunes the discovery cache.
type ServiceOptions struct {
	// CacheSchemas keeps each scope's last discovery result for CacheTTL.
	CacheSchemas bool
	CacheTTL     time.Duration

	// Observer, when set, is told the outcome of every scan.
	Observer DiscoveryObserver

	Now func() time.Time
}

// DiscoveryObserver counts scans. *metric.Registry implements it.
type DiscoveryObserver interface {
	ObserveDiscovery(err error)
}

type cacheEntry struct {
	at          time.Time
	descriptors []*model.EntityDescriptor
}

// Service learns schemas into a registry and answers questions about them.
type Service struct {
	registry   *registry.Registry
	discoverer Discoverer
	log        *logger.Logger
	opts       ServiceOptions

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewService creates a Service over reg. discoverer may be nil when only
// pre-built descriptors are registered.
func NewService(reg *registry.Registry, discoverer Discoverer, log *logger.Logger, opts ServiceOptions) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		registry:   reg,
		discoverer: discoverer,
		log:        log.Component("agent"),
		opts:       opts,
		cache:      make(map[string]cacheEntry),
	}
}

// DiscoverAndLearn scans scope and registers what it finds. Within the
// cache TTL a repeated scan of the same scope returns the previous batch
// without scanning again, unless force is set.
func (s *Service) DiscoverAndLearn(ctx context.Context, scope string, force bool) ([]*model.EntityDescriptor, error) {
	if s.discoverer == nil {
		return nil, errs.New(errs.ErrKindScanScope, "no discovery provider configured")
	}

	if !force {
		if cached, ok := s.cached(scope); ok {
			s.log.DebugWith("discovery served from cache", map[string]any{"scope": scope, "entities": len(cached)})
			return cached, nil
		}
	}

	s.log.InfoWith("starting schema discovery", map[string]any{"scope": scope})
	found, err := s.discoverer.Discover(ctx, scope)
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveDiscovery(err)
	}
	if err != nil {
		s.log.ErrorWith("schema discovery failed", err, map[string]any{"scope": scope})
		if errs.KindOf(err) == errs.ErrKindUnknown {
			err = errs.Wrap(errs.ErrKindScanScope, "schema discovery failed", err)
		}
		return nil, err
	}

	s.registry.RegisterMany(found)
	s.store(scope, found)

	s.log.InfoWith("schemas learned", map[string]any{"scope": scope, "entities": len(found)})
	return cloneAll(found), nil
}

// Learn describes and registers a single type.
func (s *Service) Learn(target any) (*model.EntityDescriptor, error) {
	if s.discoverer == nil {
		return nil, errs.New(errs.ErrKindIntrospection, "no discovery provider configured")
	}
	d, err := s.discoverer.DescribeType(target)
	if err != nil {
		return nil, err
	}
	s.registry.Register(d)
	s.log.InfoWith("schema learned", map[string]any{"entity": d.Identifier, "table": d.TableName})
	return d.Clone(), nil
}

// Register adds pre-built descriptors, e.g. ones restored from a snapshot.
func (s *Service) Register(ds ...*model.EntityDescriptor) {
	s.registry.RegisterMany(ds)
}

func (s *Service) Schemas() []*model.EntityDescriptor { return s.registry.All() }

func (s *Service) Schema(id string) (*model.EntityDescriptor, bool) {
	return s.registry.ByIdentifier(id)
}

func (s *Service) SchemaByTable(table string) (*model.EntityDescriptor, bool) {
	return s.registry.ByTable(table)
}

// SchemasByIdentifiers returns the known descriptors among ids, in order.
func (s *Service) SchemasByIdentifiers(ids []string) []*model.EntityDescriptor {
	return s.registry.ByIdentifiers(ids)
}

func (s *Service) Summary() map[string]string { return s.registry.Summary() }

func (s *Service) HasSchema(id string) bool { return s.registry.Exists(id) }

func (s *Service) Count() int { return s.registry.Count() }

// Version changes whenever the registry does.
func (s *Service) Version() uint64 { return s.registry.Version() }

// Clear forgets every schema and every cached discovery.
func (s *Service) Clear() {
	s.log.Info("clearing all learned schemas")
	s.registry.Clear()
	s.mu.Lock()
	s.cache = make(map[string]cacheEntry)
	s.mu.Unlock()
}

// EntityInfo renders a text description of one entity.
func (s *Service) EntityInfo(id string) (string, bool) {
	d, ok := s.registry.ByIdentifier(id)
	if !ok {
		return "", false
	}
	return d.Info(), true
}

func (s *Service) EntityNames() []string { return s.registry.EntityNames() }

func (s *Service) TableNames() []string { return s.registry.TableNames() }

func (s *Service) cached(scope string) ([]*model.EntityDescriptor, bool) {
	if !s.opts.CacheSchemas {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache[scope]
	if !ok {
		return nil, false
	}
	if s.opts.CacheTTL > 0 && s.opts.Now().Sub(e.at) >= s.opts.CacheTTL {
		delete(s.cache, scope)
		return nil, false
	}
	return cloneAll(e.descriptors), true
}

func (s *Service) store(scope string, ds []*model.EntityDescriptor) {
	if !s.opts.CacheSchemas {
		return
	}
	s.mu.Lock()
	s.cache[scope] = cacheEntry{at: s.opts.Now(), descriptors: cloneAll(ds)}
	s.mu.Unlock()
}

func cloneAll(ds []*model.EntityDescriptor) []*model.EntityDescriptor {
	out := make([]*model.EntityDescriptor, len(ds))
	for i, d := range ds {
		out[i] = d.Clone()
	}
	return out
}

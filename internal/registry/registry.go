// Package registry is the in-memory source of truth for learned entities.
//
// Descriptors are indexed twice, by identifier and by table name, under a
// single lock so that both indices always change together. Reads return
// clones; a descriptor handed out can be mutated freely by the caller.
package registry

import (
	"sort"
	"sync"

	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

// Observer is told the entity count after every mutation.
type Observer interface {
	EntitiesRegistered(n int)
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*model.EntityDescriptor
	byTable map[string]string // table name -> identifier
	version uint64

	log      *logger.Logger
	observer Observer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l.Component("registry")
		}
	}
}

// WithObserver reports the entity count to o.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		byID:    make(map[string]*model.EntityDescriptor),
		byTable: make(map[string]string),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts or replaces d. The registry keeps its own copy.
//
// When an identifier is re-registered under a new table name the old
// table entry is dropped. When two identifiers claim the same table the
// later registration owns the table index.
func (r *Registry) Register(d *model.EntityDescriptor) {
	if d == nil || d.Identifier == "" {
		r.log.Warn("ignoring descriptor without identifier")
		return
	}
	cp := d.Clone()

	r.mu.Lock()
	if prev, ok := r.byID[cp.Identifier]; ok && prev.TableName != cp.TableName {
		if r.byTable[prev.TableName] == cp.Identifier {
			delete(r.byTable, prev.TableName)
			delete(r.byID, cp.Identifier)
			r.reclaimTable(prev.TableName)
		}
	}
	if owner, ok := r.byTable[cp.TableName]; ok && owner != cp.Identifier {
		r.log.Warnf("table %s moves from %s to %s", cp.TableName, owner, cp.Identifier)
	}
	r.byID[cp.Identifier] = cp
	r.byTable[cp.TableName] = cp.Identifier
	r.version++
	n := len(r.byID)
	r.mu.Unlock()

	r.log.DebugWith("registered entity", map[string]any{"entity": cp.Identifier, "table": cp.TableName})
	r.notify(n)
}

// RegisterMany registers each descriptor in order. It is not atomic
// across the batch.
func (r *Registry) RegisterMany(ds []*model.EntityDescriptor) {
	for _, d := range ds {
		r.Register(d)
	}
	r.log.Infof("registered %d entities", len(ds))
}

// ByIdentifier returns a copy of the descriptor with identifier id.
func (r *Registry) ByIdentifier(id string) (*model.EntityDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// ByTable returns a copy of the descriptor mapped to table.
func (r *Registry) ByTable(table string) (*model.EntityDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byTable[table]
	if !ok {
		return nil, false
	}
	d, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// All returns a snapshot of every descriptor, sorted by identifier.
func (r *Registry) All() []*model.EntityDescriptor {
	r.mu.RLock()
	out := make([]*model.EntityDescriptor, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// ByIdentifiers returns the descriptors known among ids, in the order
// given. Unknown ids are skipped.
func (r *Registry) ByIdentifiers(ids []string) []*model.EntityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.EntityDescriptor, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.byID[id]; ok {
			out = append(out, d.Clone())
		}
	}
	return out
}

// Remove deletes id from both indices and returns what was removed.
func (r *Registry) Remove(id string) (*model.EntityDescriptor, bool) {
	r.mu.Lock()
	d, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.byID, id)
	if r.byTable[d.TableName] == id {
		delete(r.byTable, d.TableName)
		r.reclaimTable(d.TableName)
	}
	r.version++
	n := len(r.byID)
	r.mu.Unlock()

	r.log.Infof("removed entity %s", id)
	r.notify(n)
	return d, true
}

// Clear empties both indices.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.byID = make(map[string]*model.EntityDescriptor)
	r.byTable = make(map[string]string)
	r.version++
	r.mu.Unlock()

	r.log.Info("registry cleared")
	r.notify(0)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

func (r *Registry) ExistsTable(table string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byTable[table]
	return ok
}

// Summary maps identifier to "TABLE (N fields, M relationships)".
func (r *Registry) Summary() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.byID))
	for id, d := range r.byID {
		out[id] = d.Summary()
	}
	return out
}

// EntityNames returns the identifiers, sorted.
func (r *Registry) EntityNames() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// TableNames returns the indexed table names, sorted.
func (r *Registry) TableNames() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.byTable))
	for t := range r.byTable {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Version increases on every mutation. Callers use it to detect change.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// reclaimTable hands a freed table name to the remaining descriptor that
// declares it, if any. The lowest identifier wins. Callers hold mu.
func (r *Registry) reclaimTable(table string) {
	owner := ""
	for id, d := range r.byID {
		if d.TableName == table && (owner == "" || id < owner) {
			owner = id
		}
	}
	if owner != "" {
		r.byTable[table] = owner
	}
}

func (r *Registry) notify(n int) {
	if r.observer != nil {
		r.observer.EntitiesRegistered(n)
	}
}

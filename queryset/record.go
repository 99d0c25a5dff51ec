package queryset

import (
	"sync"

	"github.com/vireolabs/vireo"
)

// A Record is a generic, map-backed entity. Sources return Records when no
// typed entity is registered for a model. It implements vireo.Entity,
// vireo.RelationCacher and vireo.Annotated.
type Record struct {
	values      map[string]vireo.Value
	annotations map[string]vireo.Value

	mu        sync.RWMutex
	relations map[string][]vireo.Entity
}

// NewRecord returns a Record over the given column values. The map is
// taken over, not copied.
func NewRecord(values map[string]vireo.Value) *Record {
	return &Record{values: values}
}

// Value implements vireo.Entity.
func (r *Record) Value(name string) (vireo.Value, error) {
	if v, ok := r.values[name]; ok {
		return v, nil
	}
	return nil, vireo.NewFieldNotFoundError("", name)
}

// Set assigns a column value.
func (r *Record) Set(name string, v vireo.Value) {
	if r.values == nil {
		r.values = make(map[string]vireo.Value)
	}
	r.values[name] = v
}

// Values returns the underlying column map. Callers must treat it as
// read-only.
func (r *Record) Values() map[string]vireo.Value {
	return r.values
}

// Annotate attaches a computed value under the given annotation name.
func (r *Record) Annotate(name string, v vireo.Value) {
	if r.annotations == nil {
		r.annotations = make(map[string]vireo.Value)
	}
	r.annotations[name] = v
}

// Annotation implements vireo.Annotated.
func (r *Record) Annotation(name string) (vireo.Value, bool) {
	v, ok := r.annotations[name]
	return v, ok
}

// CachedRelation implements vireo.RelationCacher.
func (r *Record) CachedRelation(name string) ([]vireo.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	children, ok := r.relations[name]
	return children, ok
}

// SetCachedRelation implements vireo.RelationCacher. The entry is replaced
// whole; concurrent readers never observe a partial child list.
func (r *Record) SetCachedRelation(name string, children []vireo.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.relations == nil {
		r.relations = make(map[string][]vireo.Entity)
	}
	r.relations[name] = children
}

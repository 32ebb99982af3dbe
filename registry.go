package memimage

import (
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/memimage/errors"
)

// Registry owns the type descriptors of one freezing domain and the name
// table their instances intern into. Registration is get-or-create: asking
// for the same name again returns the first descriptor, and conflicting
// re-registrations fail instead of silently shadowing.
//
// A registry is safe for concurrent use. Tests build private registries so
// their registrations never collide.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*TypeDescriptor
	byHash map[uint64]*TypeDescriptor
	byGo   map[reflect.Type]*TypeDescriptor
	tokens []*TypeDescriptor // index = token; slot 0 reserved
	names  *NameTable
}

// NewRegistry creates an empty registry with the built-in scalar and name
// descriptors pre-resolved.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]*TypeDescriptor, 64),
		byHash: make(map[uint64]*TypeDescriptor, 64),
		byGo:   make(map[reflect.Type]*TypeDescriptor, 64),
		tokens: []*TypeDescriptor{nil},
		names:  NewNameTable(),
	}
	for _, d := range builtinTypes() {
		r.byName[d.Name] = d
		r.byHash[d.NameHash] = d
		r.byGo[d.GoType] = d
	}
	return r
}

// Names returns the registry's name table.
func (r *Registry) Names() *NameTable {
	return r.names
}

// Register materializes a descriptor from its spec. Registering the same
// name twice returns the existing descriptor when the Go type matches, and
// KindDuplicate when two different types claim one name.
func (r *Registry) Register(spec *TypeSpec) (*TypeDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byName[spec.name]; ok {
		if prev.GoType == spec.goType {
			return prev, nil
		}
		return nil, errors.New(errors.PhaseRegister, errors.KindDuplicate).
			TypeName(spec.name).
			GoType(spec.goType.String()).
			Detail("name already registered for %s", prev.GoType).
			Build()
	}

	d, err := spec.build(r)
	if err != nil {
		return nil, err
	}
	if prev, ok := r.byHash[d.NameHash]; ok {
		return nil, errors.New(errors.PhaseRegister, errors.KindDuplicate).
			TypeName(d.Name).
			Detail("name hash collides with %s", prev.Name).
			Build()
	}

	d.token = uint32(len(r.tokens))
	r.tokens = append(r.tokens, d)
	r.byName[d.Name] = d
	r.byHash[d.NameHash] = d
	r.byGo[d.GoType] = d

	Logger().Debug("registered type",
		zap.String("name", d.Name),
		zap.Stringer("interface", d.Interface),
		zap.Int("fields", len(d.Fields)),
		zap.Int("bases", len(d.Bases)))
	return d, nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry) MustRegister(spec *TypeSpec) *TypeDescriptor {
	d, err := r.Register(spec)
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup returns the descriptor registered for a live Go type.
func (r *Registry) Lookup(t reflect.Type) (*TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byGo[t]
	return d, ok
}

// LookupName returns the descriptor registered under a type name.
func (r *Registry) LookupName(name string) (*TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// LookupHash returns the descriptor whose name hashes to h. Patch
// application resolves frozen type identities through this.
func (r *Registry) LookupHash(h uint64) (*TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byHash[h]
	return d, ok
}

// descriptorByToken resolves a process-local vtable token written by
// ApplyPatches back to its descriptor.
func (r *Registry) descriptorByToken(tok uint32) (*TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tok == 0 || int(tok) >= len(r.tokens) {
		return nil, false
	}
	return r.tokens[tok], true
}

// GetTypeLayout resolves the descriptor for T. An unregistered interface
// type yields the Invalid sentinel with no error, letting callers declare
// polymorphic fields whose implementations live in another build; any
// other unregistered type is a wiring bug and fails fatally.
func GetTypeLayout[T any](r *Registry) (*TypeDescriptor, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if d, ok := r.Lookup(t); ok {
		return d, nil
	}
	if t.Kind() == reflect.Interface {
		return Invalid, nil
	}
	return nil, errors.NotRegistered(errors.PhaseFreeze, t.String())
}

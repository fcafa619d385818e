package tagstore

import (
	"context"
	"sort"
	"sync/atomic"

	"tagger/tags"
	"tagger/types"
)

var _ types.Store = (*Mem)(nil)

// func NewMem {{{

// For testing - Creates a new in-memory Store.
func NewMem() *Mem {
	return &Mem{
		scopes: make(map[string][]string, 1),
		tags:   make(map[tags.Entity]tags.Tags, 10),
		fail:   make(map[tags.Entity]error),
	}
} // }}}

// func Mem.CreateEntity {{{

// Adds the entity (and its scope if needed) with the given tags, unset if there are none.
//
// An entity that already exists gets its tags replaced. A failure set with FailOn() creates nothing.
func (m *Mem) CreateEntity(ctx context.Context, e tags.Entity, t tags.Tags) error {
	if atomic.LoadUint32(&m.closed) == 1 {
		return types.ErrShutdown
	}

	m.mut.Lock()
	defer m.mut.Unlock()

	if err, ok := m.fail[e]; ok {
		return err
	}

	if _, ok := m.tags[e]; !ok {
		m.scopes[e.Scope] = append(m.scopes[e.Scope], e.ID)
	}

	if len(t) == 0 {
		m.tags[e] = nil
	} else {
		m.tags[e] = t.Copy()
	}

	return nil
} // }}}

// func Mem.AddScope {{{

// Adds an empty scope.
func (m *Mem) AddScope(scope string) {
	m.mut.Lock()
	defer m.mut.Unlock()

	if _, ok := m.scopes[scope]; !ok {
		m.scopes[scope] = []string{}
	}
} // }}}

// func Mem.FailOn {{{

// Any write to e will return err, until called again with a nil err.
func (m *Mem) FailOn(e tags.Entity, err error) {
	m.mut.Lock()
	defer m.mut.Unlock()

	if err == nil {
		delete(m.fail, e)
		return
	}

	m.fail[e] = err
} // }}}

// func Mem.Raw {{{

// Returns exactly what is stored for the entity, nil if unset.
func (m *Mem) Raw(e tags.Entity) tags.Tags {
	m.mut.Lock()
	defer m.mut.Unlock()

	return m.tags[e]
} // }}}

// func Mem.Writes {{{

// The number of successful WriteTags() and ClearTags() calls.
func (m *Mem) Writes() int {
	m.mut.Lock()
	defer m.mut.Unlock()

	return m.writes
} // }}}

// func Mem.ReadTags {{{

func (m *Mem) ReadTags(ctx context.Context, e tags.Entity) (tags.Tags, bool, error) {
	if atomic.LoadUint32(&m.closed) == 1 {
		return nil, false, types.ErrShutdown
	}

	m.mut.Lock()
	defer m.mut.Unlock()

	t, ok := m.tags[e]
	if !ok {
		return nil, false, ErrNotFound
	}

	if t == nil {
		return nil, false, nil
	}

	return t.Copy(), true, nil
} // }}}

// func Mem.WriteTags {{{

func (m *Mem) WriteTags(ctx context.Context, e tags.Entity, t tags.Tags) error {
	return m.write(e, t.Copy())
} // }}}

// func Mem.ClearTags {{{

func (m *Mem) ClearTags(ctx context.Context, e tags.Entity) error {
	return m.write(e, nil)
} // }}}

// func Mem.write {{{

func (m *Mem) write(e tags.Entity, t tags.Tags) error {
	if atomic.LoadUint32(&m.closed) == 1 {
		return types.ErrShutdown
	}

	m.mut.Lock()
	defer m.mut.Unlock()

	if err, ok := m.fail[e]; ok {
		return err
	}

	if _, ok := m.tags[e]; !ok {
		return ErrNotFound
	}

	m.tags[e] = t
	m.writes++

	return nil
} // }}}

// func Mem.ListScope {{{

func (m *Mem) ListScope(ctx context.Context, scope string) ([]tags.Entity, error) {
	if atomic.LoadUint32(&m.closed) == 1 {
		return nil, types.ErrShutdown
	}

	m.mut.Lock()
	defer m.mut.Unlock()

	ids, ok := m.scopes[scope]
	if !ok {
		return nil, tags.ScopeErr("ListScope", scope)
	}

	out := make([]tags.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, tags.Entity{Scope: scope, ID: id})
	}

	return out, nil
} // }}}

// func Mem.Scopes {{{

func (m *Mem) Scopes(ctx context.Context) ([]string, error) {
	if atomic.LoadUint32(&m.closed) == 1 {
		return nil, types.ErrShutdown
	}

	m.mut.Lock()
	defer m.mut.Unlock()

	out := make([]string, 0, len(m.scopes))
	for scope := range m.scopes {
		out = append(out, scope)
	}

	sort.Strings(out)

	return out, nil
} // }}}

// func Mem.Close {{{

func (m *Mem) Close() {
	atomic.StoreUint32(&m.closed, 1)
} // }}}

// Reads, queries and changes the tags of entities held in a types.Store
package tagmanager

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"tagger/tags"
	"tagger/types"
)

// func WithRules {{{

// Replaces the default rules ({#} then {id}).
func WithRules(rules tags.Rules) Option {
	return func(tm *TagManager) {
		tm.rules = rules
	}
} // }}}

// func WithResolver {{{

// Sets how host objects given to Handles() become entities.
func WithResolver(r types.HandleResolver) Option {
	return func(tm *TagManager) {
		tm.resolver = r
	}
} // }}}

// func WithMetrics {{{

func WithMetrics(m *Metrics) Option {
	return func(tm *TagManager) {
		tm.metrics = m
	}
} // }}}

// func WithIDGenerator {{{

// Sets the generator used by the {id} rule.
func WithIDGenerator(fn func() string) Option {
	return func(tm *TagManager) {
		tm.newID = fn
	}
} // }}}

// func New {{{

// Creates a TagManager on top of st.
//
// If confPath is empty the defaults are used, otherwise the configuration is loaded and
// watched for changes until ctx is done.
func New(confPath string, st types.Store, l *zerolog.Logger, ctx context.Context, opts ...Option) (*TagManager, error) {
	if st == nil {
		return nil, errors.New("Missing store")
	}

	tm := &TagManager{
		l:        l.With().Str("mod", "tagmanager").Logger(),
		st:       st,
		resolver: DefaultResolver,
		rules:    tags.DefaultRules(),
	}

	for _, opt := range opts {
		opt(tm)
	}

	fl := tm.l.With().Str("func", "New").Logger()

	if confPath != "" {
		if err := tm.loadConf(ctx, confPath); err != nil {
			return nil, err
		}
	}

	fl.Debug().Send()

	return tm, nil
} // }}}

// func TagManager.SavedQuery {{{

// Returns the named query from the configuration.
func (tm *TagManager) SavedQuery(name string) (tags.SavedQuery, bool) {
	sq, ok := tm.conf().saved[name]
	return sq, ok
} // }}}

// func TagManager.Scene {{{

// The configured default scene.
func (tm *TagManager) Scene() string {
	return tm.conf().Scene
} // }}}

// func TagManager.CaseInsensitive {{{

// The configured default for case insensitive matching.
func (tm *TagManager) CaseInsensitive() bool {
	return tm.conf().caseInsensitive()
} // }}}

// func checkEntity {{{

func checkEntity(op string, e tags.Entity) error {
	if e.ID == "" {
		return tags.ArgErr(op, "entity", "null entity reference")
	}

	return nil
} // }}}

// func checkEntities {{{

func checkEntities(op string, entities []tags.Entity) error {
	for _, e := range entities {
		if err := checkEntity(op, e); err != nil {
			return err
		}
	}

	return nil
} // }}}

// func storageErr {{{

func storageErr(op string, e tags.Entity, err error) error {
	// Already wrapped (such as by the lookup), or not a storage problem at all.
	if errors.Is(err, tags.ErrStorage) || errors.Is(err, tags.ErrScopeNotFound) || errors.Is(err, tags.ErrInvalidArgument) {
		return err
	}

	return &tags.StorageError{
		Op:     op,
		Entity: e,
		Err:    err,
	}
} // }}}

// func TagManager.read {{{

// Returns the stored tags, empty if unset.
func (tm *TagManager) read(ctx context.Context, op string, e tags.Entity) (tags.Tags, error) {
	t, set, err := tm.st.ReadTags(ctx, e)
	if err != nil {
		return nil, storageErr(op, e, err)
	}

	if !set {
		return tags.Tags{}, nil
	}

	return t, nil
} // }}}

// func TagManager.write {{{

// Stores t, unsetting the tags if there are none.
func (tm *TagManager) write(ctx context.Context, op string, e tags.Entity, t tags.Tags) error {
	var err error

	if len(t) == 0 {
		err = tm.st.ClearTags(ctx, e)
	} else {
		err = tm.st.WriteTags(ctx, e, t)
	}

	if err != nil {
		return storageErr(op, e, err)
	}

	return nil
} // }}}

// type reader struct {{{

// Adapts the store to tags.Reader for one operation.
type reader struct {
	tm *TagManager
	op string
} // }}}

// func reader.ReadTags {{{

func (r reader) ReadTags(ctx context.Context, e tags.Entity) (tags.Tags, error) {
	return r.tm.read(ctx, r.op, e)
} // }}}

// func TagManager.lookup {{{

// Returns a tags.Lookup over the entities of the store.
//
// A scope that does not exist yet has no tags, so that is not an error here.
func (tm *TagManager) lookup(op string) tags.Lookup {
	return func(ctx context.Context, scope string, re *regexp.Regexp) ([]tags.Tags, error) {
		entities, err := tm.st.ListScope(ctx, scope)
		if errors.Is(err, tags.ErrScopeNotFound) {
			return nil, nil
		}

		if err != nil {
			return nil, storageErr(op, tags.Entity{Scope: scope}, err)
		}

		var out []tags.Tags

		for _, e := range entities {
			t, err := tm.read(ctx, op, e)
			if err != nil {
				return nil, err
			}

			for _, tag := range t {
				if re.MatchString(tag) {
					out = append(out, t)
					break
				}
			}
		}

		return out, nil
	}
} // }}}

// func TagManager.newBatch {{{

// One batch covers one whole event, however many entities it touches.
//
// proposed are the tags the event was called with, nil if there are none.
func (tm *TagManager) newBatch(op string, proposed tags.Tags) *tags.Batch {
	b := tags.NewBatch(tm.lookup(op))
	b.Proposed = proposed

	if tm.newID != nil {
		b.NewID = tm.newID
	}

	return b
} // }}}

// func TagManager.record {{{

func (tm *TagManager) record(ctx context.Context, op string, err error) {
	tm.metrics.RecordOperation(ctx, op, err == nil)
} // }}}

// func TagManager.Get {{{

// Returns the stored tags of e, an empty Tags if none are set.
func (tm *TagManager) Get(ctx context.Context, e tags.Entity) (t tags.Tags, err error) {
	defer func() { tm.record(ctx, "Get", err) }()

	if err := checkEntity("Get", e); err != nil {
		return nil, err
	}

	return tm.read(ctx, "Get", e)
} // }}}

// func TagManager.Has {{{

// Returns if the stored tags of e match in.
func (tm *TagManager) Has(ctx context.Context, e tags.Entity, in interface{}, opts tags.MatchOptions) (ok bool, err error) {
	defer func() { tm.record(ctx, "Has", err) }()

	if err := checkEntity("Has", e); err != nil {
		return false, err
	}

	if err := opts.Check("Has"); err != nil {
		return false, err
	}

	q, err := tags.Normalize(in, "Has")
	if err != nil {
		return false, err
	}

	t, err := tm.read(ctx, "Has", e)
	if err != nil {
		return false, err
	}

	return tags.Compile(q, opts.CaseInsensitive).Match(t, opts)
} // }}}

// func TagManager.Query {{{

// Returns the entities whose tags match in.
//
// With opts.Objects set only those are searched. With opts.AllScenes every scene is searched and
// the result is in Result.Scopes, otherwise opts.SceneID (or the configured scene) is searched.
func (tm *TagManager) Query(ctx context.Context, in interface{}, opts QueryOptions) (res Result, err error) {
	fl := tm.l.With().Str("func", "Query").Logger()

	defer func() { tm.record(ctx, "Query", err) }()

	if err := opts.Check("Query"); err != nil {
		return res, err
	}

	if err := checkEntities("Query", opts.Objects); err != nil {
		return res, err
	}

	q, err := tags.Normalize(in, "Query")
	if err != nil {
		return res, err
	}

	m := tags.Compile(q, opts.CaseInsensitive)
	r := reader{tm: tm, op: "Query"}

	fo := tags.FilterOptions{
		MatchOptions: opts.MatchOptions,
		Ignore:       opts.Ignore,
		Project:      opts.Project,
	}

	switch {
	case opts.Objects != nil:
		res.Entities, err = tags.Filter(ctx, r, opts.Objects, m, fo)
		return res, err
	case opts.AllScenes:
		scopes, err := tm.listAll(ctx)
		if err != nil {
			return res, err
		}

		res.Scopes, err = tags.FilterScopes(ctx, r, scopes, m, fo)

		fl.Debug().Int("scenes", len(scopes)).Int("found", len(res.Scopes)).Send()

		return res, err
	}

	scene := opts.SceneID
	if scene == "" {
		scene = tm.Scene()
	}

	if scene == "" {
		return res, tags.ArgErr("Query", "scene", "no scene given and none configured")
	}

	entities, err := tm.st.ListScope(ctx, scene)
	if err != nil {
		fl.Debug().Err(err).Str("scene", scene).Msg("ListScope")
		return res, storageErr("Query", tags.Entity{Scope: scene}, err)
	}

	res.Entities, err = tags.Filter(ctx, r, entities, m, fo)

	fl.Debug().Str("scene", scene).Int("entities", len(entities)).Int("found", len(res.Entities)).Send()

	return res, err
} // }}}

// func TagManager.listAll {{{

func (tm *TagManager) listAll(ctx context.Context) (map[string][]tags.Entity, error) {
	ids, err := tm.st.Scopes(ctx)
	if err != nil {
		return nil, storageErr("Query", tags.Entity{}, err)
	}

	scopes := make(map[string][]tags.Entity, len(ids))

	for _, id := range ids {
		entities, err := tm.st.ListScope(ctx, id)
		if err != nil {
			return nil, storageErr("Query", tags.Entity{Scope: id}, err)
		}

		scopes[id] = entities
	}

	return scopes, nil
} // }}}

// func Op.String {{{

func (o Op) String() string {
	switch o {
	case OpSet:
		return "SetTags"
	case OpAdd:
		return "AddTags"
	case OpRemove:
		return "RemoveTags"
	case OpToggle:
		return "ToggleTags"
	case OpClear:
		return "ClearAllTags"
	}

	return "Update"
} // }}}

// func ParseOp {{{

// Accepts set, add, remove (or rm), toggle and clear.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "set":
		return OpSet, nil
	case "add":
		return OpAdd, nil
	case "remove", "rm":
		return OpRemove, nil
	case "toggle":
		return OpToggle, nil
	case "clear":
		return OpClear, nil
	}

	return OpSet, tags.ArgErr("ParseOp", "op", "unknown operation %q", s)
} // }}}

// func TagManager.Update {{{

// Applies op with the given tags to each entity in turn.
//
// Everything is validated before the first write. Entities are written in order, the first
// failure stops the rest and earlier writes are not undone.
//
// Any entity left with no tags has its tags unset.
//
// The call is a single rule event, the same {id} tag gets the same id on every entity.
func (tm *TagManager) Update(ctx context.Context, entities []tags.Entity, op Op, in interface{}) (err error) {
	var t tags.Tags
	var written int

	name := op.String()

	fl := tm.l.With().Str("func", name).Int("entities", len(entities)).Logger()

	defer func() {
		tm.record(ctx, name, err)
		tm.metrics.RecordWrites(ctx, name, written)
	}()

	if op < OpSet || op > OpClear {
		return tags.ArgErr("Update", "op", "unknown operation %d", int(op))
	}

	if err := checkEntities(name, entities); err != nil {
		return err
	}

	if op != OpClear {
		if t, err = tags.NormalizeTags(in, name); err != nil {
			return err
		}
	}

	resolve := tm.conf().rules()

	b := tm.newBatch(name, t)
	defer b.Reset()

	for _, e := range entities {
		var nt tags.Tags

		switch op {
		case OpSet:
			nt = t.Copy()
		case OpAdd, OpRemove, OpToggle:
			cur, err := tm.read(ctx, name, e)
			if err != nil {
				fl.Err(err).Str("scope", e.Scope).Str("id", e.ID).Msg("read")
				return err
			}

			switch op {
			case OpAdd:
				nt = cur.Combine(t)
			case OpRemove:
				nt = cur.Remove(t)
			default:
				nt = cur.Toggle(t)
			}
		}

		if resolve && tm.rules.Has(nt) {
			if nt, err = tm.resolve(ctx, b, e, nt); err != nil {
				fl.Err(err).Str("scope", e.Scope).Str("id", e.ID).Msg("resolve")
				return err
			}
		}

		if err := tm.write(ctx, name, e, nt); err != nil {
			fl.Err(err).Str("scope", e.Scope).Str("id", e.ID).Int("written", written).Msg("write")
			return err
		}

		written++
	}

	fl.Debug().Int("written", written).Send()

	return nil
} // }}}

// func TagManager.SetTags {{{

func (tm *TagManager) SetTags(ctx context.Context, entities []tags.Entity, in interface{}) error {
	return tm.Update(ctx, entities, OpSet, in)
} // }}}

// func TagManager.AddTags {{{

func (tm *TagManager) AddTags(ctx context.Context, entities []tags.Entity, in interface{}) error {
	return tm.Update(ctx, entities, OpAdd, in)
} // }}}

// func TagManager.RemoveTags {{{

func (tm *TagManager) RemoveTags(ctx context.Context, entities []tags.Entity, in interface{}) error {
	return tm.Update(ctx, entities, OpRemove, in)
} // }}}

// func TagManager.ToggleTags {{{

func (tm *TagManager) ToggleTags(ctx context.Context, entities []tags.Entity, in interface{}) error {
	return tm.Update(ctx, entities, OpToggle, in)
} // }}}

// func TagManager.ClearAllTags {{{

func (tm *TagManager) ClearAllTags(ctx context.Context, entities []tags.Entity) error {
	return tm.Update(ctx, entities, OpClear, nil)
} // }}}

// func TagManager.resolve {{{

// Runs the rules over the tags of e within the event b.
func (tm *TagManager) resolve(ctx context.Context, b *tags.Batch, e tags.Entity, t tags.Tags) (tags.Tags, error) {
	b.Scope = e.Scope

	return tm.rules.Apply(ctx, b, t)
} // }}}

// func TagManager.ApplyRules {{{

// Resolves any rule placeholders within the stored tags of each entity, writing back the result.
//
// Entities without placeholders are left alone. All of them are resolved as one event, so
// entities holding the same {id} tag at the same place end up sharing the id.
func (tm *TagManager) ApplyRules(ctx context.Context, entities []tags.Entity) (err error) {
	var written int

	fl := tm.l.With().Str("func", "ApplyRules").Logger()

	defer func() {
		tm.record(ctx, "ApplyRules", err)
		tm.metrics.RecordWrites(ctx, "ApplyRules", written)
	}()

	if err := checkEntities("ApplyRules", entities); err != nil {
		return err
	}

	b := tm.newBatch("ApplyRules", nil)
	defer b.Reset()

	for _, e := range entities {
		cur, err := tm.read(ctx, "ApplyRules", e)
		if err != nil {
			return err
		}

		if !tm.rules.Has(cur) {
			continue
		}

		nt, err := tm.resolve(ctx, b, e, cur)
		if err != nil {
			fl.Err(err).Str("scope", e.Scope).Str("id", e.ID).Msg("resolve")
			return err
		}

		if err := tm.write(ctx, "ApplyRules", e, nt); err != nil {
			return err
		}

		written++
	}

	fl.Debug().Int("written", written).Send()

	return nil
} // }}}

// func TagManager.onBefore {{{

func (tm *TagManager) onBefore(ctx context.Context, op string, entities []tags.Entity, proposed interface{}) (out []tags.Tags, err error) {
	defer func() { tm.record(ctx, op, err) }()

	if err := checkEntities(op, entities); err != nil {
		return nil, err
	}

	t, err := tags.NormalizeTags(proposed, op)
	if err != nil {
		return nil, err
	}

	out = make([]tags.Tags, len(entities))

	if !tm.conf().rules() || !tm.rules.Has(t) {
		for i := range entities {
			out[i] = t.Copy()
		}

		return out, nil
	}

	b := tm.newBatch(op, t)
	defer b.Reset()

	for i, e := range entities {
		if out[i], err = tm.resolve(ctx, b, e, t.Copy()); err != nil {
			return nil, err
		}
	}

	return out, nil
} // }}}

// func TagManager.OnBeforeCreate {{{

// Called by the host before e is first stored, returns the tags it should be stored with.
//
// Nothing is written.
func (tm *TagManager) OnBeforeCreate(ctx context.Context, e tags.Entity, proposed interface{}) (tags.Tags, error) {
	out, err := tm.onBefore(ctx, "OnBeforeCreate", []tags.Entity{e}, proposed)
	if err != nil {
		return nil, err
	}

	return out[0], nil
} // }}}

// func TagManager.OnBeforeCreateMany {{{

// Called by the host before several entities created together are first stored, returns the
// tags each should be stored with, in the same order.
//
// They are one event, so a {id} tag gets the one id across all of them. A {#} tag gets a
// different number for each entity within the same scene. Nothing is written.
func (tm *TagManager) OnBeforeCreateMany(ctx context.Context, entities []tags.Entity, proposed interface{}) ([]tags.Tags, error) {
	return tm.onBefore(ctx, "OnBeforeCreate", entities, proposed)
} // }}}

// func TagManager.OnBeforeUpdate {{{

// Called by the host before changed tags of e are stored, returns the tags it should store instead.
//
// Nothing is written.
func (tm *TagManager) OnBeforeUpdate(ctx context.Context, e tags.Entity, proposed interface{}) (tags.Tags, error) {
	out, err := tm.onBefore(ctx, "OnBeforeUpdate", []tags.Entity{e}, proposed)
	if err != nil {
		return nil, err
	}

	return out[0], nil
} // }}}

// func TagManager.Create {{{

// Creates e within the store with the given tags, after the rules have been resolved.
//
// Needs a store that implements types.Creator.
func (tm *TagManager) Create(ctx context.Context, e tags.Entity, in interface{}) (tags.Tags, error) {
	out, err := tm.CreateMany(ctx, []tags.Entity{e}, in)
	if err != nil {
		return nil, err
	}

	return out[0], nil
} // }}}

// func TagManager.CreateMany {{{

// Creates each entity within the store with the given tags as one event, returning the tags each got.
//
// Every entity is stored together with its tags in a single store call, so a failure never
// leaves an entity behind without them. As with Update, the first failure stops the rest and
// entities already created stay.
//
// Needs a store that implements types.Creator.
func (tm *TagManager) CreateMany(ctx context.Context, entities []tags.Entity, in interface{}) (out []tags.Tags, err error) {
	var written int

	fl := tm.l.With().Str("func", "Create").Int("entities", len(entities)).Logger()

	defer func() {
		tm.record(ctx, "Create", err)
		tm.metrics.RecordWrites(ctx, "Create", written)
	}()

	cr, ok := tm.st.(types.Creator)
	if !ok {
		return nil, tags.ArgErr("Create", "", "store can not create entities")
	}

	if err := checkEntities("Create", entities); err != nil {
		return nil, err
	}

	t, err := tags.NormalizeTags(in, "Create")
	if err != nil {
		return nil, err
	}

	resolve := tm.conf().rules() && tm.rules.Has(t)

	b := tm.newBatch("Create", t)
	defer b.Reset()

	out = make([]tags.Tags, 0, len(entities))

	for _, e := range entities {
		nt := t.Copy()

		// Resolved right before each is stored, so a {#} sees the ones created before it but not itself.
		if resolve {
			if nt, err = tm.resolve(ctx, b, e, nt); err != nil {
				fl.Err(err).Str("scope", e.Scope).Str("id", e.ID).Msg("resolve")
				return nil, err
			}
		}

		if err := cr.CreateEntity(ctx, e, nt); err != nil {
			fl.Err(err).Str("scope", e.Scope).Str("id", e.ID).Int("written", written).Msg("CreateEntity")
			return nil, storageErr("Create", e, err)
		}

		written++
		out = append(out, nt)
	}

	return out, nil
} // }}}

// func TagManager.Handles {{{

// Resolves each host object into an entity handle.
func (tm *TagManager) Handles(raws ...interface{}) ([]tags.Entity, error) {
	out := make([]tags.Entity, 0, len(raws))

	for _, raw := range raws {
		e, err := tm.resolver(raw)
		if err != nil {
			return nil, err
		}

		if err := checkEntity("Handles", e); err != nil {
			return nil, err
		}

		out = append(out, e)
	}

	return out, nil
} // }}}

// func ParseEntity {{{

// Parses "scene/id" into an entity.
//
// Only the first / separates the two, ids can contain more.
func ParseEntity(s string) (tags.Entity, error) {
	scope, id, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || scope == "" || id == "" {
		return tags.Entity{}, tags.ArgErr("ParseEntity", "entity", "%q is not scene/id", s)
	}

	return tags.Entity{Scope: scope, ID: id}, nil
} // }}}

// func DefaultResolver {{{

// Accepts a tags.Entity, a *tags.Entity, or a "scene/id" string.
func DefaultResolver(raw interface{}) (tags.Entity, error) {
	switch v := raw.(type) {
	case tags.Entity:
		return v, nil
	case *tags.Entity:
		if v == nil {
			return tags.Entity{}, tags.ArgErr("Handles", "entity", "null entity reference")
		}

		return *v, nil
	case string:
		return ParseEntity(v)
	}

	return tags.Entity{}, tags.ArgErr("Handles", "entity", "can not resolve %T", raw)
} // }}}

package tags

import (
	"context"
	"regexp"
)

// A list of canonical tags attached to one entity.
//
// Once run through Fix() it never contains an empty tag or duplicates, the order
// is kept as given since it is only used for display.
type Tags []string

// type Query struct {{{

// A single query tag, either a literal tag (which may contain * wildcards) or a
// caller supplied regular expression.
//
// Only one of the two is ever set, use Literal() and Pattern() to create them.
type Query struct {
	lit string
	re  *regexp.Regexp
} // }}}

type Queries []Query

// type Entity struct {{{

// Handle to a host managed object that carries tags.
//
// Two entities are the same entity if their handles are equal, the host decides
// what the ID is.
type Entity struct {
	// The scope (scene) the entity lives in.
	Scope string

	ID string
} // }}}

// type MatchOptions struct {{{

type MatchOptions struct {
	// Match if at least one query tag matches.
	MatchAny bool

	// Match only if every query tag matched and the entity has exactly as many tags as the query.
	//
	// Can not be combined with MatchAny.
	MatchExactly bool

	// Lowercases both the entity tags and the literal query tags before matching.
	//
	// Pattern queries are left alone, their case handling is up to whoever built them.
	CaseInsensitive bool
} // }}}

// Reads the current tags of an entity.
//
// Implementations should return an empty Tags for an entity with no tags stored.
type Reader interface {
	ReadTags(context.Context, Entity) (Tags, error)
}

// type FilterOptions struct {{{

type FilterOptions struct {
	MatchOptions

	// Entities to skip before any matching is done.
	Ignore []Entity

	// Optional, maps each matching entity to the handle the caller wants back.
	Project func(Entity) Entity
} // }}}

// Returns the tags of every entity within scope that has at least one tag matching the pattern.
//
// Used by the counter rule to find which numbers are already taken.
type Lookup func(ctx context.Context, scope string, re *regexp.Regexp) ([]Tags, error)

// type Rule struct {{{

// A tag rule replaces a placeholder within a tag with a generated value.
type Rule struct {
	// The literal placeholder, such as {#} or {id}
	Placeholder string

	// Called with the tag still containing the placeholder and the index of the tag
	// within the batch of tags being resolved.
	//
	// Must return the tag with (at least) the first placeholder replaced.
	Resolve func(ctx context.Context, b *Batch, tag string, index int) (string, error)
} // }}}

type Rules []Rule

type idKey struct {
	template string
	index    int
}

type counterKey struct {
	scope   string
	pattern string
}

// type Batch struct {{{

// Holds everything a single rule resolution event needs.
//
// One event can cover several entities, possibly in different scopes. The same tag at
// the same index gets the same {id} for every one of them, and a {#} number handed out
// to one is not handed out again within the same scope.
//
// A Batch is not safe for concurrent use, and must be Reset() at the start and end
// of each event so generated ids do not leak between unrelated events.
type Batch struct {
	// Looks up existing tags within a scope, required for the counter rule.
	Lookup Lookup

	// Generates a new unique id for the {id} rule.
	NewID func() string

	// The scope of the entity currently being resolved, passed on to Lookup.
	Scope string

	// Optional, the tags the event was started with.
	//
	// A tag found here is keyed for the {id} rule by its index here rather than its
	// index within the tags being resolved, so entities that already hold different
	// tags still share ids for the tags the event adds.
	Proposed Tags

	ids    map[idKey]string
	issued map[counterKey]map[int]struct{}

	// The tag currently being resolved, as it was before any rule changed it.
	template string
} // }}}

package tags

import (
	"context"
	"regexp"
	"strings"
)

// type Matcher struct {{{

// A compiled set of query tags, ready to be matched against any number of entities.
type Matcher struct {
	patterns []*regexp.Regexp

	// If the literal queries were lowercased when compiled.
	caseInsensitive bool
} // }}}

// func Compile {{{

// Compiles the query tags into a Matcher.
//
// Literal tags become anchored patterns, with * matching anything (non-greedy) and every
// other special character, . included, matching only itself. So "foo*" matches "foobar" but not "barfoo".
//
// If caseInsensitive is set the literal tags are lowercased here, and the entity tags are
// lowercased when matched. Pattern queries are used as given.
func Compile(q Queries, caseInsensitive bool) *Matcher {
	m := &Matcher{
		patterns:        make([]*regexp.Regexp, 0, len(q)),
		caseInsensitive: caseInsensitive,
	}

	for _, qt := range q {
		if qt.IsPattern() {
			m.patterns = append(m.patterns, qt.re)
			continue
		}

		lit := qt.lit
		if caseInsensitive {
			lit = strings.ToLower(lit)
		}

		m.patterns = append(m.patterns, literalPattern(lit))
	}

	return m
} // }}}

// func literalPattern {{{

func literalPattern(lit string) *regexp.Regexp {
	// QuoteMeta escapes the . for us, so only the * needs turning back into a wildcard.
	expr := strings.ReplaceAll(regexp.QuoteMeta(lit), `\*`, `.*?`)

	return regexp.MustCompile("^" + expr + "$")
} // }}}

func (m *Matcher) Len() int { return len(m.patterns) }

// func MatchOptions.Check {{{

// Returns an error if the options conflict.
func (mo MatchOptions) Check(op string) error {
	if mo.MatchAny && mo.MatchExactly {
		return ArgErr(op, "options", "MatchAny and MatchExactly can not both be set")
	}

	return nil
} // }}}

// func Matcher.Count {{{

// Returns the number of query patterns that match at least one of the given tags.
func (m *Matcher) Count(entityTags Tags) int {
	if m.caseInsensitive {
		entityTags = entityTags.Lower()
	}

	matched := 0

	for _, re := range m.patterns {
		for _, tag := range entityTags {
			if re.MatchString(tag) {
				matched++
				break
			}
		}
	}

	return matched
} // }}}

// func Matcher.Match {{{

// Returns true if the entity tags match the query.
//
//  - MatchAny, at least one query tag matched.
//  - MatchExactly, every query tag matched and the entity has as many tags as the query.
//  - Otherwise every query tag has to match at least one entity tag.
//
// Note for MatchExactly this does not check that each query tag matched a different entity tag,
// two wildcards can match the same tag while another entity tag matches nothing.
//
// An empty query matches nothing.
func (m *Matcher) Match(entityTags Tags, opts MatchOptions) (bool, error) {
	if err := opts.Check("Match"); err != nil {
		return false, err
	}

	return m.match(entityTags, opts), nil
} // }}}

// func Matcher.match {{{

// Same as Match() with the options already checked.
func (m *Matcher) match(entityTags Tags, opts MatchOptions) bool {
	if len(m.patterns) == 0 {
		return false
	}

	matched := m.Count(entityTags)

	switch {
	case opts.MatchAny:
		return matched > 0
	case opts.MatchExactly:
		return matched == len(m.patterns) && len(entityTags) == len(m.patterns)
	}

	return matched >= len(m.patterns)
} // }}}

// func Matches {{{

// Normalizes and compiles the query in and checks it against the given tags.
//
// For checking many entities against the same query, use Compile() once and then Matcher.Match.
func Matches(entityTags Tags, in interface{}, opts MatchOptions) (bool, error) {
	if err := opts.Check("Matches"); err != nil {
		return false, err
	}

	q, err := Normalize(in, "Matches")
	if err != nil {
		return false, err
	}

	return Compile(q, opts.CaseInsensitive).match(entityTags, opts), nil
} // }}}

// func Filter {{{

// Returns the entities within scope whose tags match.
//
// The tags for each entity are read through r as needed, nothing is cached.
// Entities within opts.Ignore are skipped before reading their tags.
func Filter(ctx context.Context, r Reader, scope []Entity, m *Matcher, opts FilterOptions) ([]Entity, error) {
	if err := opts.Check("Filter"); err != nil {
		return nil, err
	}

	var ignore map[Entity]struct{}
	if len(opts.Ignore) > 0 {
		ignore = make(map[Entity]struct{}, len(opts.Ignore))
		for _, e := range opts.Ignore {
			ignore[e] = struct{}{}
		}
	}

	out := make([]Entity, 0)

	for _, e := range scope {
		if _, ok := ignore[e]; ok {
			continue
		}

		et, err := r.ReadTags(ctx, e)
		if err != nil {
			return nil, err
		}

		if !m.match(et, opts.MatchOptions) {
			continue
		}

		if opts.Project != nil {
			e = opts.Project(e)
		}

		out = append(out, e)
	}

	return out, nil
} // }}}

// func FilterScopes {{{

// Runs Filter() on each scope independently.
//
// Only scopes with at least one matching entity are returned.
func FilterScopes(ctx context.Context, r Reader, scopes map[string][]Entity, m *Matcher, opts FilterOptions) (map[string][]Entity, error) {
	if err := opts.Check("FilterScopes"); err != nil {
		return nil, err
	}

	out := make(map[string][]Entity, len(scopes))

	for id, scope := range scopes {
		found, err := Filter(ctx, r, scope, m, opts)
		if err != nil {
			return nil, err
		}

		if len(found) > 0 {
			out[id] = found
		}
	}

	return out, nil
} // }}}

package tags

import (
	"regexp"
	"strings"
)

// func Tags.Copy {{{

// Creates a copy of the input tags sized to only the amount of tags in t.
//
// This does not call Fix() on the returned tags, the caller should do that first.
func (t Tags) Copy() Tags {
	nTags := make(Tags, len(t))
	copy(nTags, t)

	return nTags
} // }}}

// func Tags.Fix {{{

// This fixes the tags so they are valid for storage.
//
// It -
//
// - Trims whitespace around each tag
// - Removes empty tags
// - Removes duplicate tags, keeping the first one seen
//
// The order is not changed, as it is shown to users.
//
// Works in place, so call with -
//
//  t = t.Fix()
func (t Tags) Fix() Tags {
	// No tags? Nothing to do.
	if len(t) == 0 {
		return t
	}

	seen := make(map[string]struct{}, len(t))
	out := t[:0]

	for _, tag := range t {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}

		if _, ok := seen[tag]; ok {
			continue
		}

		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	return out
} // }}}

// func Tags.Has {{{

// Returns true if this Tags contains the provided tag.
//
// The comparison is exact, case included.
func (t Tags) Has(want string) bool {
	if want == "" {
		return false
	}

	for _, tag := range t {
		if tag == want {
			return true
		}
	}

	return false
} // }}}

// func Tags.Equal {{{

// Returns true if both Tags contain the exact same tags, ignoring order.
//
// Both must have been run through Fix() already.
//
// Note that if both tags are empty, this also means they are equal.
func (t Tags) Equal(r Tags) bool {
	// Different lengths?
	if len(t) != len(r) {
		return false
	}

	for _, tag := range r {
		if !t.Has(tag) {
			return false
		}
	}

	return true
} // }}}

// func Tags.Add {{{

// Adds the given tag to the tag list.
//
// If the tag is already in the list it simply returns the same list.
func (t Tags) Add(toAdd string) Tags {
	toAdd = strings.TrimSpace(toAdd)

	if toAdd == "" || t.Has(toAdd) {
		return t
	}

	return append(t, toAdd)
} // }}}

// func Tags.Combine {{{

// Returns every tag in t followed by every tag of r that t does not already have.
//
// Never modifies t or r.
func (t Tags) Combine(r Tags) Tags {
	out := t.Copy()

	for _, tag := range r {
		out = out.Add(tag)
	}

	return out
} // }}}

// func Tags.Remove {{{

// Returns the tags in t that are not in r.
//
// Never modifies t or r.
func (t Tags) Remove(r Tags) Tags {
	out := make(Tags, 0, len(t))

	for _, tag := range t {
		if !r.Has(tag) {
			out = append(out, tag)
		}
	}

	return out
} // }}}

// func Tags.Toggle {{{

// Removes every tag of r that t has, and adds every tag of r that t does not.
//
// Done as a single pass, so a tag listed twice in r is not toggled back.
func (t Tags) Toggle(r Tags) Tags {
	out := t.Remove(r)

	for _, tag := range r {
		if !t.Has(tag) {
			out = out.Add(tag)
		}
	}

	return out
} // }}}

// func Tags.Lower {{{

// Returns a lowercased copy of the tags, used for case insensitive matching.
func (t Tags) Lower() Tags {
	out := make(Tags, len(t))

	for i, tag := range t {
		out[i] = strings.ToLower(tag)
	}

	return out
} // }}}

// func Literal {{{

// A literal query tag, * matches anything.
func Literal(tag string) Query {
	return Query{lit: tag}
} // }}}

// func Pattern {{{

// A query tag matched with the given regular expression as is.
func Pattern(re *regexp.Regexp) Query {
	return Query{re: re}
} // }}}

func (q Query) IsPattern() bool        { return q.re != nil }
func (q Query) Regexp() *regexp.Regexp { return q.re }
func (q Query) Literal() string        { return q.lit }

// func Query.String {{{

func (q Query) String() string {
	if q.re != nil {
		return "/" + q.re.String() + "/"
	}

	return q.lit
} // }}}

// func Queries.Tags {{{

// Returns only the literal queries as Tags.
//
// The second return is false if any pattern was skipped.
func (qs Queries) Tags() (Tags, bool) {
	out := make(Tags, 0, len(qs))
	ok := true

	for _, q := range qs {
		if q.IsPattern() {
			ok = false
			continue
		}

		out = append(out, q.lit)
	}

	return out, ok
} // }}}

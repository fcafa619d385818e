package tags

import (
	"regexp"
	"strings"
)

// func Normalize {{{

// Converts any accepted tag input into a list of query tags.
//
// Accepted input -
//
//  - string, split on commas
//  - *regexp.Regexp or Query, a single query
//  - []string, Tags, []*regexp.Regexp, Queries or []interface{} of any of the single types
//
// Literal tags are trimmed and empty ones dropped.
//
// op is the name of the calling operation, used only in the returned error.
func Normalize(in interface{}, op string) (Queries, error) {
	switch v := in.(type) {
	case string:
		return splitComma(v), nil
	case *regexp.Regexp:
		if v == nil {
			return nil, ArgErr(op, "tags", "nil pattern")
		}

		return Queries{Pattern(v)}, nil
	case Query:
		return addQuery(nil, v), nil
	case []string:
		return stringsToQueries(v), nil
	case Tags:
		return stringsToQueries(v), nil
	case Queries:
		out := make(Queries, 0, len(v))
		for _, q := range v {
			out = addQuery(out, q)
		}

		return out, nil
	case []*regexp.Regexp:
		out := make(Queries, 0, len(v))
		for i, re := range v {
			if re == nil {
				return nil, ArgErr(op, "tags", "nil pattern at index %d", i)
			}

			out = append(out, Pattern(re))
		}

		return out, nil
	case []interface{}:
		out := make(Queries, 0, len(v))
		for i, el := range v {
			switch ev := el.(type) {
			case string:
				out = addQuery(out, Literal(ev))
			case *regexp.Regexp:
				if ev == nil {
					return nil, ArgErr(op, "tags", "nil pattern at index %d", i)
				}

				out = append(out, Pattern(ev))
			case Query:
				out = addQuery(out, ev)
			default:
				return nil, ArgErr(op, "tags", "element %d is %T, must be a string or pattern", i, el)
			}
		}

		return out, nil
	}

	return nil, ArgErr(op, "tags", "%T is not a string, pattern or list", in)
} // }}}

// func NormalizeTags {{{

// Same as Normalize() but for operations that write tags, patterns are not allowed.
//
// The result has been run through Fix().
func NormalizeTags(in interface{}, op string) (Tags, error) {
	qs, err := Normalize(in, op)
	if err != nil {
		return nil, err
	}

	t, ok := qs.Tags()
	if !ok {
		return nil, ArgErr(op, "tags", "patterns can not be stored as tags")
	}

	return t.Fix(), nil
} // }}}

// func splitComma {{{

func splitComma(in string) Queries {
	parts := strings.Split(in, ",")
	out := make(Queries, 0, len(parts))

	for _, p := range parts {
		out = addQuery(out, Literal(p))
	}

	return out
} // }}}

// func stringsToQueries {{{

func stringsToQueries(in []string) Queries {
	out := make(Queries, 0, len(in))

	for _, s := range in {
		out = addQuery(out, Literal(s))
	}

	return out
} // }}}

// func addQuery {{{

// Appends q to qs, trimming literal queries and skipping them if empty.
func addQuery(qs Queries, q Query) Queries {
	if q.IsPattern() {
		return append(qs, q)
	}

	lit := strings.TrimSpace(q.lit)
	if lit == "" {
		return qs
	}

	return append(qs, Literal(lit))
} // }}}

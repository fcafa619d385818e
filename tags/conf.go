package tags

import (
	"fmt"
	"regexp"
)

// This contains all the functions and types needed to load queries from a YAML/JSON configuration file.

// type ConfQuery struct {{{

// A saved query, so common searches do not need to be typed out each time.
//
// Lets say we want every token that belongs to a patrol, ignoring how they were capitalized -
//
//   queries:
//     patrol:
//       tags: [ guard, patrol_* ]
//       caseinsensitive: true
//
// And anything that is either a door or a secret door, with the door number also given as a pattern -
//
//   queries:
//     doors:
//       any: true
//       tags: [ door ]
//       patterns: [ '^secret_door_[0-9]+$' ]
//
// Patterns are regular expressions, used as is (no anchoring, no case changes).
//
// At most one of "any" and "exact" can be set, if neither is then every tag has to match.
type ConfQuery struct {
	Tags            []string `yaml:"tags" json:"tags"`
	Patterns        []string `yaml:"patterns" json:"patterns"`
	Any             bool     `yaml:"any" json:"any"`
	Exact           bool     `yaml:"exact" json:"exact"`
	CaseInsensitive bool     `yaml:"caseinsensitive" json:"caseinsensitive"`
} // }}}

type ConfQueries map[string]ConfQuery

// type SavedQuery struct {{{

// The loaded version of a ConfQuery.
type SavedQuery struct {
	Queries Queries
	Options MatchOptions
} // }}}

type SavedQueries map[string]SavedQuery

// func ConfMakeQuery {{{

func ConfMakeQuery(cq *ConfQuery) (SavedQuery, error) {
	opts := MatchOptions{
		MatchAny:        cq.Any,
		MatchExactly:    cq.Exact,
		CaseInsensitive: cq.CaseInsensitive,
	}

	if err := opts.Check("ConfMakeQuery"); err != nil {
		return SavedQuery{}, err
	}

	qs := stringsToQueries(cq.Tags)

	for _, p := range cq.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return SavedQuery{}, fmt.Errorf("pattern %q: %w", p, err)
		}

		qs = append(qs, Pattern(re))
	}

	if len(qs) == 0 {
		return SavedQuery{}, ArgErr("ConfMakeQuery", "tags", "no tags or patterns")
	}

	return SavedQuery{
		Queries: qs,
		Options: opts,
	}, nil
} // }}}

// func ConfMakeQueries {{{

func ConfMakeQueries(cqs ConfQueries) (SavedQueries, error) {
	sqs := make(SavedQueries, len(cqs))

	for name, cq := range cqs {
		sq, err := ConfMakeQuery(&cq)
		if err != nil {
			return sqs, fmt.Errorf("query %s: %w", name, err)
		}

		sqs[name] = sq
	}

	return sqs, nil
} // }}}

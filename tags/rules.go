package tags

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// Replaced with the lowest positive number not already used by the same tag within the scope.
	PlaceholderCounter = "{#}"

	// Replaced with a random unique id.
	PlaceholderID = "{id}"
)

// func NewBatch {{{

// Creates a Batch using lookup for the counter rule and random UUIDs for the id rule.
//
// lookup can be nil, in which case no existing tags are ever seen and every counter starts at 1.
func NewBatch(lookup Lookup) *Batch {
	return &Batch{
		Lookup: lookup,
		NewID:  uuid.NewString,
		ids:    make(map[idKey]string),
		issued: make(map[counterKey]map[int]struct{}),
	}
} // }}}

// func Batch.Reset {{{

// Forgets every id and counter number handed out so far.
func (b *Batch) Reset() {
	b.ids = make(map[idKey]string)
	b.issued = make(map[counterKey]map[int]struct{})
	b.Scope = ""
} // }}}

// func Batch.ID {{{

// Returns the id for the given tag template and index within the batch, generating it the first time.
func (b *Batch) ID(template string, index int) string {
	if b.ids == nil {
		b.ids = make(map[idKey]string)
	}

	key := idKey{template: template, index: index}
	if id, ok := b.ids[key]; ok {
		return id
	}

	newID := b.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	id := newID()
	b.ids[key] = id

	return id
} // }}}

// func DefaultRules {{{

// The counter rule followed by the id rule.
func DefaultRules() Rules {
	return Rules{CounterRule(), IDRule()}
} // }}}

// func CounterRule {{{

// Replaces {#} with the smallest positive number that no other tag of the same form within the scope uses.
//
// So with "foo_1_tag" and "foo_3_tag" already in the scene, "foo_{#}_tag" becomes "foo_2_tag".
//
// The numbers in use are whatever Batch.Lookup can see within Batch.Scope, plus the numbers
// this Batch already handed out within that scope. Two separate batches resolving the same
// tag before either is stored can still end up with the same number.
func CounterRule() Rule {
	return Rule{
		Placeholder: PlaceholderCounter,
		Resolve:     resolveCounter,
	}
} // }}}

// func resolveCounter {{{

func resolveCounter(ctx context.Context, b *Batch, tag string, index int) (string, error) {
	loc := strings.Index(tag, PlaceholderCounter)
	if loc < 0 {
		return tag, nil
	}

	prefix := tag[:loc]
	suffix := tag[loc+len(PlaceholderCounter):]

	re := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + "([1-9][0-9]*)" + regexp.QuoteMeta(suffix) + "$")

	var existing []Tags
	if b.Lookup != nil {
		var err error
		if existing, err = b.Lookup(ctx, b.Scope, re); err != nil {
			return tag, err
		}
	}

	key := counterKey{scope: b.Scope, pattern: re.String()}

	if b.issued == nil {
		b.issued = make(map[counterKey]map[int]struct{})
	}

	issued := b.issued[key]
	if issued == nil {
		issued = make(map[int]struct{})
		b.issued[key] = issued
	}

	n := lowestFree(re, existing, issued)
	issued[n] = struct{}{}

	return prefix + strconv.Itoa(n) + suffix, nil
} // }}}

// func lowestFree {{{

// Returns the lowest number from 1 that is not captured by re within any of the tags, nor already taken.
func lowestFree(re *regexp.Regexp, existing []Tags, taken map[int]struct{}) int {
	used := make(map[int]struct{}, len(taken))
	highest := 0

	for n := range taken {
		used[n] = struct{}{}
		if n > highest {
			highest = n
		}
	}

	for _, et := range existing {
		for _, t := range et {
			sm := re.FindStringSubmatch(t)
			if len(sm) < 2 {
				continue
			}

			n, err := strconv.Atoi(sm[1])
			if err != nil {
				// Too big for an int, can not be the lowest anyways.
				continue
			}

			used[n] = struct{}{}
			if n > highest {
				highest = n
			}
		}
	}

	for i := 1; i <= highest; i++ {
		if _, ok := used[i]; !ok {
			return i
		}
	}

	return highest + 1
} // }}}

// func IDRule {{{

// Replaces every {id} with a random id.
//
// The same template at the same index within a Batch always gets the same id until Batch.Reset() is called.
func IDRule() Rule {
	return Rule{
		Placeholder: PlaceholderID,
		Resolve: func(ctx context.Context, b *Batch, tag string, index int) (string, error) {
			template := b.template
			if template == "" {
				template = tag
			}

			return strings.ReplaceAll(tag, PlaceholderID, b.ID(template, index)), nil
		},
	}
} // }}}

// func Batch.index {{{

// Where tag sits within the event, its index within Proposed when it is there.
//
// Tags that are not get placed after every proposed one.
func (b *Batch) index(tag string, i int) int {
	if b.Proposed == nil {
		return i
	}

	for j, pt := range b.Proposed {
		if pt == tag {
			return j
		}
	}

	return len(b.Proposed) + i
} // }}}

// func Rules.Has {{{

// Returns true if any of the tags contain a placeholder of any of the rules.
func (trs Rules) Has(t Tags) bool {
	for _, tag := range t {
		for _, tr := range trs {
			if tr.Placeholder != "" && strings.Contains(tag, tr.Placeholder) {
				return true
			}
		}
	}

	return false
} // }}}

// func Rules.Apply {{{

// This runs through the Rules in order on each tag, replacing placeholders and returning the new Tags.
//
// Each rule keeps going until its own placeholder is gone from the tag, so a tag can contain several.
// Tags without any placeholder are returned as is, unknown placeholders are left alone.
//
// The result has been run through Fix().
func (trs Rules) Apply(ctx context.Context, b *Batch, t Tags) (Tags, error) {
	if b == nil {
		b = NewBatch(nil)
	}

	out := make(Tags, 0, len(t))

	for i, tag := range t {
		// The id rule keys on the tag as given, not as changed by earlier rules.
		b.template = tag
		index := b.index(tag, i)

		for _, tr := range trs {
			if tr.Placeholder == "" || tr.Resolve == nil {
				continue
			}

			// Bounded by the number of placeholders, in case a resolver puts one back.
			for n := strings.Count(tag, tr.Placeholder); n > 0; n-- {
				nt, err := tr.Resolve(ctx, b, tag, index)
				if err != nil {
					b.template = ""
					return nil, err
				}

				if nt == tag || !strings.Contains(nt, tr.Placeholder) {
					tag = nt
					break
				}

				tag = nt
			}
		}

		out = append(out, tag)
	}

	b.template = ""

	return out.Fix(), nil
} // }}}

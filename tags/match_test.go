package tags

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

type mapReader map[Entity]Tags

func (mr mapReader) ReadTags(ctx context.Context, e Entity) (Tags, error) {
	return mr[e], nil
}

var errRead = errors.New("read failed")

type failReader struct{}

func (failReader) ReadTags(ctx context.Context, e Entity) (Tags, error) {
	return nil, errRead
}

type matchTest struct {
	Entity Tags
	Query  interface{}
	Opts   MatchOptions
	Expect bool
}

// func TestMatches {{{

func TestMatches(t *testing.T) {
	tests := []matchTest{
		// Default, every query tag has to match.
		{Tags{"a", "b", "c"}, "a,b", MatchOptions{}, true},
		{Tags{"a", "b", "c"}, "a,d", MatchOptions{}, false},
		{Tags{"a"}, "a,b", MatchOptions{}, false},

		// Any
		{Tags{"a", "b"}, "x,b", MatchOptions{MatchAny: true}, true},
		{Tags{"a", "b"}, "x,y", MatchOptions{MatchAny: true}, false},
		{Tags{}, "x", MatchOptions{MatchAny: true}, false},

		// Exact
		{Tags{"a", "b"}, "b,a", MatchOptions{MatchExactly: true}, true},
		{Tags{"a", "b", "c"}, "a,b", MatchOptions{MatchExactly: true}, false},
		{Tags{"a", "b"}, "a,x", MatchOptions{MatchExactly: true}, false},

		// Exact only checks the sizes, two wildcards can hit the same tag.
		{Tags{"ab", "zz"}, "a*,*b", MatchOptions{MatchExactly: true}, true},

		// Case
		{Tags{"Foo"}, "foo", MatchOptions{}, false},
		{Tags{"Foo"}, "foo", MatchOptions{CaseInsensitive: true}, true},
		{Tags{"foo"}, "FOO", MatchOptions{CaseInsensitive: true}, true},

		// Wildcards are anchored.
		{Tags{"foobar"}, "foo*", MatchOptions{}, true},
		{Tags{"barfoo"}, "foo*", MatchOptions{}, false},
		{Tags{"barfoo"}, "*foo", MatchOptions{}, true},
		{Tags{"foo"}, "fo", MatchOptions{}, false},

		// A . is only a dot, other special characters are literal too.
		{Tags{"a.b"}, "a.b", MatchOptions{}, true},
		{Tags{"axb"}, "a.b", MatchOptions{}, false},
		{Tags{"a+b(c)"}, "a+b(c)", MatchOptions{}, true},
		{Tags{"aab"}, "a+b", MatchOptions{}, false},

		// Patterns are used as is, no anchoring.
		{Tags{"secret_door_12"}, regexp.MustCompile("door_[0-9]+"), MatchOptions{}, true},
		{Tags{"Door"}, regexp.MustCompile("door"), MatchOptions{CaseInsensitive: true}, true},
		{Tags{"Door"}, regexp.MustCompile("Door"), MatchOptions{CaseInsensitive: true}, false},

		// Nothing to match with.
		{Tags{"a"}, "", MatchOptions{}, false},
		{Tags{"a"}, "", MatchOptions{MatchAny: true}, false},
	}

	for i, test := range tests {
		res, err := Matches(test.Entity, test.Query, test.Opts)
		if err != nil {
			t.Fatalf("%d: %s", i, err)
		}

		if res != test.Expect {
			t.Fatalf("%d: Matches(%#v, %v, %+v) = %t, expected %t", i, test.Entity, test.Query, test.Opts, res, test.Expect)
		}
	}
} // }}}

// func TestMatchConflict {{{

func TestMatchConflict(t *testing.T) {
	opts := MatchOptions{MatchAny: true, MatchExactly: true}

	if _, err := Matches(Tags{"a"}, "a", opts); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Matches = %v", err)
	}

	m := Compile(Queries{Literal("a")}, false)
	if _, err := m.Match(Tags{"a"}, opts); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Match = %v", err)
	}

	_, err := Filter(context.Background(), mapReader{}, nil, m, FilterOptions{MatchOptions: opts})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Filter = %v", err)
	}
} // }}}

// func TestCount {{{

func TestCount(t *testing.T) {
	m := Compile(Queries{Literal("a*"), Literal("b"), Literal("z")}, false)

	if c := m.Count(Tags{"a1", "a2", "b"}); c != 2 {
		t.Fatalf("Count = %d, expected 2", c)
	}

	if m.Len() != 3 {
		t.Fatalf("Len = %d", m.Len())
	}
} // }}}

// func TestFilter {{{

func TestFilter(t *testing.T) {
	ctx := context.Background()

	e1 := Entity{Scope: "s1", ID: "1"}
	e2 := Entity{Scope: "s1", ID: "2"}
	e3 := Entity{Scope: "s1", ID: "3"}
	e4 := Entity{Scope: "s2", ID: "4"}

	mr := mapReader{
		e1: {"guard", "patrol_1"},
		e2: {"guard"},
		e3: {"door"},
		e4: {"guard", "patrol_2"},
	}

	m := Compile(Queries{Literal("guard")}, false)

	found, err := Filter(ctx, mr, []Entity{e1, e2, e3}, m, FilterOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if len(found) != 2 || found[0] != e1 || found[1] != e2 {
		t.Fatalf("Filter = %#v", found)
	}

	// Ignore
	found, err = Filter(ctx, mr, []Entity{e1, e2, e3}, m, FilterOptions{Ignore: []Entity{e1}})
	if err != nil {
		t.Fatal(err)
	}

	if len(found) != 1 || found[0] != e2 {
		t.Fatalf("Filter(ignore) = %#v", found)
	}

	// Project
	proj := func(e Entity) Entity { return Entity{Scope: "live", ID: e.ID} }

	found, err = Filter(ctx, mr, []Entity{e2}, m, FilterOptions{Project: proj})
	if err != nil {
		t.Fatal(err)
	}

	if len(found) != 1 || found[0].Scope != "live" {
		t.Fatalf("Filter(project) = %#v", found)
	}

	// Nothing found is not an error.
	found, err = Filter(ctx, mr, []Entity{e3}, m, FilterOptions{})
	if err != nil || len(found) != 0 {
		t.Fatalf("Filter(none) = %#v, %v", found, err)
	}

	if _, err := Filter(ctx, failReader{}, []Entity{e1}, m, FilterOptions{}); !errors.Is(err, errRead) {
		t.Fatalf("Filter(fail) = %v", err)
	}
} // }}}

// func TestFilterScopes {{{

func TestFilterScopes(t *testing.T) {
	e1 := Entity{Scope: "s1", ID: "1"}
	e2 := Entity{Scope: "s2", ID: "2"}
	e3 := Entity{Scope: "s3", ID: "3"}

	mr := mapReader{
		e1: {"patrol_1"},
		e2: {"patrol_2"},
		e3: {"door"},
	}

	scopes := map[string][]Entity{
		"s1": {e1},
		"s2": {e2},
		"s3": {e3},
	}

	m := Compile(Queries{Literal("patrol_*")}, false)

	found, err := FilterScopes(context.Background(), mr, scopes, m, FilterOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if len(found) != 2 {
		t.Fatalf("FilterScopes = %#v", found)
	}

	if _, ok := found["s3"]; ok {
		t.Fatal("scope without matches returned")
	}

	if len(found["s2"]) != 1 || found["s2"][0] != e2 {
		t.Fatalf("s2 = %#v", found["s2"])
	}
} // }}}

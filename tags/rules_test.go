package tags

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
)

// func sceneLookup {{{

// Returns a Lookup over the given entity tags, as the counter rule would see a scene.
func sceneLookup(scene []Tags) Lookup {
	return func(ctx context.Context, scope string, re *regexp.Regexp) ([]Tags, error) {
		m := Compile(Queries{Pattern(re)}, false)

		var out []Tags
		for _, et := range scene {
			if m.match(et, MatchOptions{MatchAny: true}) {
				out = append(out, et)
			}
		}

		return out, nil
	}
} // }}}

// func counterIDs {{{

// Deterministic ids for testing.
func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
} // }}}

// func TestCounterRule {{{

func TestCounterRule(t *testing.T) {
	ctx := context.Background()
	trs := Rules{CounterRule()}

	apply := func(scene []Tags, in string) string {
		out, err := trs.Apply(ctx, NewBatch(sceneLookup(scene)), Tags{in})
		if err != nil {
			t.Fatal(err)
		}

		if len(out) != 1 {
			t.Fatalf("Apply(%s) = %#v", in, out)
		}

		return out[0]
	}

	// Nothing in the scene yet.
	if res := apply(nil, "foo_{#}_tag"); res != "foo_1_tag" {
		t.Fatalf("empty scene = %s", res)
	}

	// 1 and 2 used, so 3.
	scene := []Tags{{"foo_1_tag"}, {"other", "foo_2_tag"}}
	if res := apply(scene, "foo_{#}_tag"); res != "foo_3_tag" {
		t.Fatalf("1,2 = %s", res)
	}

	// 2 was removed, so it gets reused.
	scene = []Tags{{"foo_1_tag"}, {"foo_3_tag"}}
	if res := apply(scene, "foo_{#}_tag"); res != "foo_2_tag" {
		t.Fatalf("1,3 = %s", res)
	}

	// Only tags of the exact same form count.
	scene = []Tags{{"foo_1_tag_x"}, {"xfoo_1_tag"}, {"foo_01_tag"}, {"foo_a_tag"}}
	if res := apply(scene, "foo_{#}_tag"); res != "foo_1_tag" {
		t.Fatalf("other forms = %s", res)
	}

	// Special characters in the template are literal.
	scene = []Tags{{"a.1"}, {"ax2"}}
	if res := apply(scene, "a.{#}"); res != "a.2" {
		t.Fatalf("dot = %s", res)
	}

	// Two counters in the one tag.
	if res := apply(nil, "{#}-{#}"); res != "1-1" {
		t.Fatalf("double = %s", res)
	}
} // }}}

// func TestCounterLookupError {{{

func TestCounterLookupError(t *testing.T) {
	errLook := errors.New("lookup failed")

	b := NewBatch(func(ctx context.Context, scope string, re *regexp.Regexp) ([]Tags, error) {
		return nil, errLook
	})

	if _, err := DefaultRules().Apply(context.Background(), b, Tags{"x_{#}"}); !errors.Is(err, errLook) {
		t.Fatalf("Apply = %v", err)
	}
} // }}}

// func TestCounterWithinBatch {{{

func TestCounterWithinBatch(t *testing.T) {
	ctx := context.Background()
	trs := Rules{CounterRule()}

	var scopes []string

	b := NewBatch(func(ctx context.Context, scope string, re *regexp.Regexp) ([]Tags, error) {
		scopes = append(scopes, scope)

		if scope == "Hall" {
			return []Tags{{"lamp_1"}}, nil
		}

		return nil, nil
	})

	resolve := func(scope string) string {
		b.Scope = scope

		out, err := trs.Apply(ctx, b, Tags{"lamp_{#}"})
		if err != nil {
			t.Fatal(err)
		}

		return out[0]
	}

	// Nothing stored between the calls, the batch remembers what it handed out.
	if res := resolve("Hall"); res != "lamp_2" {
		t.Fatalf("first Hall = %s", res)
	}

	if res := resolve("Hall"); res != "lamp_3" {
		t.Fatalf("second Hall = %s", res)
	}

	// Other scopes count on their own.
	if res := resolve("Cellar"); res != "lamp_1" {
		t.Fatalf("Cellar = %s", res)
	}

	if strings.Join(scopes, ",") != "Hall,Hall,Cellar" {
		t.Fatalf("looked up %v", scopes)
	}

	b.Reset()

	if res := resolve("Hall"); res != "lamp_2" {
		t.Fatalf("after Reset = %s", res)
	}
} // }}}

// func TestIDRuleProposed {{{

func TestIDRuleProposed(t *testing.T) {
	ctx := context.Background()
	trs := Rules{IDRule()}

	b := NewBatch(nil)
	b.NewID = counterIDs()
	b.Proposed = Tags{"grp_{id}"}

	// Different existing tags in front, the proposed tag still gets the one id.
	one, err := trs.Apply(ctx, b, Tags{"a", "grp_{id}"})
	if err != nil {
		t.Fatal(err)
	}

	two, err := trs.Apply(ctx, b, Tags{"grp_{id}", "old_{id}"})
	if err != nil {
		t.Fatal(err)
	}

	if one[1] != "grp_id1" || two[0] != "grp_id1" {
		t.Fatalf("one = %v, two = %v", one, two)
	}

	// Not proposed, keyed after the proposed ones.
	if two[1] != "old_id2" {
		t.Fatalf("two[1] = %s", two[1])
	}
} // }}}

// func TestIDRule {{{

func TestIDRule(t *testing.T) {
	ctx := context.Background()
	trs := Rules{IDRule()}

	b := NewBatch(nil)
	b.NewID = counterIDs()

	out, err := trs.Apply(ctx, b, Tags{"npc_{id}", "{id}/{id}", "plain"})
	if err != nil {
		t.Fatal(err)
	}

	if out[0] != "npc_id1" {
		t.Fatalf("out[0] = %s", out[0])
	}

	// Both in the one tag get the same id.
	if out[1] != "id2/id2" {
		t.Fatalf("out[1] = %s", out[1])
	}

	if out[2] != "plain" {
		t.Fatalf("out[2] = %s", out[2])
	}

	// Same template at the same index within the batch, same id.
	again, err := trs.Apply(ctx, b, Tags{"npc_{id}"})
	if err != nil {
		t.Fatal(err)
	}

	if again[0] != "npc_id1" {
		t.Fatalf("same batch = %s", again[0])
	}

	// Different index, different id.
	other, err := trs.Apply(ctx, b, Tags{"x", "npc_{id}"})
	if err != nil {
		t.Fatal(err)
	}

	if other[1] == "npc_id1" {
		t.Fatal("different index reused the id")
	}

	// And after a reset, a new id.
	b.Reset()

	reset, err := trs.Apply(ctx, b, Tags{"npc_{id}"})
	if err != nil {
		t.Fatal(err)
	}

	if reset[0] == "npc_id1" {
		t.Fatal("id survived Reset()")
	}
} // }}}

// func TestIDRuleUUID {{{

func TestIDRuleUUID(t *testing.T) {
	out, err := DefaultRules().Apply(context.Background(), nil, Tags{"a_{id}", "b_{id}"})
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(out[0], "{id}") || len(out[0]) <= len("a_") {
		t.Fatalf("out[0] = %s", out[0])
	}

	if strings.TrimPrefix(out[0], "a_") == strings.TrimPrefix(out[1], "b_") {
		t.Fatal("two templates got the same id")
	}
} // }}}

// func TestApplyRules {{{

func TestApplyRules(t *testing.T) {
	ctx := context.Background()

	b := NewBatch(sceneLookup([]Tags{{"wolf_1_pack"}}))
	b.NewID = counterIDs()

	out, err := DefaultRules().Apply(ctx, b, Tags{"wolf_{#}_{id}", "{unknown}", "pack", "pack"})
	if err != nil {
		t.Fatal(err)
	}

	// The counter ran first, its search includes the literal {id} so sees nothing.
	expect := Tags{"wolf_1_id1", "{unknown}", "pack"}
	if len(out) != len(expect) {
		t.Fatalf("got %#v", out)
	}

	for i := range expect {
		if out[i] != expect[i] {
			t.Fatalf("got %#v, expected %#v", out, expect)
		}
	}

	if !DefaultRules().Has(Tags{"a", "b_{#}"}) {
		t.Fatal("Has missed {#}")
	}

	if DefaultRules().Has(Tags{"a", "{x}"}) {
		t.Fatal("Has found an unknown placeholder")
	}
} // }}}

// func TestApplyRulesEmpty {{{

func TestApplyRulesEmpty(t *testing.T) {
	b := NewBatch(nil)
	b.NewID = func() string { return "  " }

	// A rule that gives back nothing leaves no tag behind.
	out, err := Rules{IDRule()}.Apply(context.Background(), b, Tags{"{id}"})
	if err != nil {
		t.Fatal(err)
	}

	if len(out) != 0 {
		t.Fatalf("got %#v", out)
	}
} // }}}

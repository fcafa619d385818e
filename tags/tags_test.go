package tags

import (
	"testing"
)

// func TestFix {{{

func TestFix(t *testing.T) {
	tOrig := Tags{" b", "a", "", "b ", "c", "a", "   "}

	// This is the above fixed
	tFixed := Tags{"b", "a", "c"}

	tOrig = tOrig.Fix()

	if len(tOrig) != len(tFixed) {
		t.Logf("tOrig = %#v", tOrig)
		t.Fatalf("sizes tOrig (%d) != tFixed (%d)", len(tOrig), len(tFixed))
	}

	// Order is kept.
	for i := range tFixed {
		if tOrig[i] != tFixed[i] {
			t.Fatalf("tOrig[%d] = %q, expected %q", i, tOrig[i], tFixed[i])
		}
	}
} // }}}

// func TestHas {{{

func TestHas(t *testing.T) {
	tgs := Tags{"door", "Guard", "patrol_1"}

	if tgs.Has("guard") {
		t.Fatal("guard, case should matter")
	}

	if !tgs.Has("Guard") {
		t.Fatal("Guard")
	}

	if tgs.Has("") {
		t.Fatal("empty tag")
	}

	if !tgs.Has("patrol_1") {
		t.Fatal("patrol_1")
	}
} // }}}

// func TestEqual {{{

func TestEqual(t *testing.T) {
	tLeft := Tags{"a", "b", "c", "d"}
	tEqa1 := Tags{"c", "b", "d", "a"}
	tEqa2 := Tags{"a", "e", "d", "c"}
	tEqa3 := Tags{"a", "b", "c"}

	if !tLeft.Equal(tEqa1) {
		t.Fatal("Left != Eqa1")
	}

	if tLeft.Equal(tEqa2) {
		t.Fatal("Left == Eqa2")
	}

	if tLeft.Equal(tEqa3) {
		t.Fatal("Left == Eqa3")
	}

	if !(Tags{}).Equal(nil) {
		t.Fatal("empty != nil")
	}
} // }}}

// func TestAdd {{{

func TestAdd(t *testing.T) {
	tgs := Tags{}

	tgs = tgs.Add("x")
	tgs = tgs.Add("x")
	tgs = tgs.Add(" x ")
	tgs = tgs.Add("")

	if !tgs.Equal(Tags{"x"}) {
		t.Fatalf("Add twice = %#v", tgs)
	}
} // }}}

// func TestCombine {{{

func TestCombine(t *testing.T) {
	tLeft := Tags{"a", "b"}
	tRight := Tags{"b", "c"}

	tgs := tLeft.Combine(tRight)
	if !tgs.Equal(Tags{"a", "b", "c"}) {
		t.Fatalf("Combine = %#v", tgs)
	}

	// Neither input should have changed.
	if len(tLeft) != 2 || len(tRight) != 2 {
		t.Fatalf("inputs modified: %#v %#v", tLeft, tRight)
	}
} // }}}

// func TestRemove {{{

func TestRemove(t *testing.T) {
	tgs := Tags{"a", "b", "c"}.Remove(Tags{"b", "z"})

	if !tgs.Equal(Tags{"a", "c"}) {
		t.Fatalf("Remove = %#v", tgs)
	}

	tgs = tgs.Remove(Tags{"a", "c"})
	if len(tgs) != 0 {
		t.Fatalf("Remove all = %#v", tgs)
	}
} // }}}

// func TestToggle {{{

func TestToggle(t *testing.T) {
	orig := Tags{"a", "b", "c"}
	toggle := Tags{"b", "d"}

	once := orig.Toggle(toggle)
	if !once.Equal(Tags{"a", "c", "d"}) {
		t.Fatalf("Toggle = %#v", once)
	}

	// Toggling again should give us back what we started with.
	twice := once.Toggle(toggle)
	if !twice.Equal(orig) {
		t.Fatalf("Toggle twice = %#v, expected %#v", twice, orig)
	}
} // }}}

// func TestLower {{{

func TestLower(t *testing.T) {
	tgs := Tags{"Foo", "BAR"}
	low := tgs.Lower()

	if low[0] != "foo" || low[1] != "bar" {
		t.Fatalf("Lower = %#v", low)
	}

	// Storage case is kept.
	if tgs[0] != "Foo" {
		t.Fatalf("Lower modified the input: %#v", tgs)
	}
} // }}}

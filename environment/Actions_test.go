package environment

import "testing"

// TestActionSetRoundTrip checks the index/name mapping of the full
// vocabulary.
func TestActionSetRoundTrip(t *testing.T) {
	actions := FullActionSet()
	for i := 0; i < actions.Len(); i++ {
		name, err := actions.Name(i)
		if err != nil {
			t.Fatal(err)
		}
		idx, err := actions.Index(name)
		if err != nil {
			t.Fatal(err)
		}
		if idx != i {
			t.Errorf("action %q: index %d round-tripped to %d", name, i, idx)
		}
	}

	if _, err := actions.Name(actions.Len()); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

// TestNavigationActionSet checks that the restricted vocabulary keeps
// open/close but drops the manipulation actions.
func TestNavigationActionSet(t *testing.T) {
	actions := NavigationActionSet()
	if actions.Len() != 7 {
		t.Fatalf("expected 7 navigation actions, got %d", actions.Len())
	}
	if !actions.Contains(Open) || !actions.Contains(Close) {
		t.Error("navigation set must keep open and close")
	}
	if actions.Contains(Take) || actions.Contains(Put) {
		t.Error("navigation set must not contain take or put")
	}
	if _, err := actions.Index(Take); err == nil {
		t.Error("expected error indexing an absent action")
	}
}

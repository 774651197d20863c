package sizes

import (
	"reflect"
	"testing"
)

func TestParseDropsDuplicatesAndBlanks(t *testing.T) {
	s := Parse("40, 41,41, ,42,40")
	if got := s.String(); got != "40,41,42" {
		t.Fatalf("expected 40,41,42, got %q", got)
	}
}

func TestParseEmpty(t *testing.T) {
	s := Parse("")
	if s.Len() != 0 {
		t.Fatalf("expected empty set, got %v", s.Values())
	}
	if s.String() != "" {
		t.Fatalf("expected empty string form, got %q", s.String())
	}
}

func TestAddIsIdempotent(t *testing.T) {
	s := Parse("40,41")
	if changed := s.Add("41"); changed {
		t.Fatal("adding an existing size must not change the set")
	}
	if changed := s.Add("42"); !changed {
		t.Fatal("adding a new size must change the set")
	}
	if got := s.String(); got != "40,41,42" {
		t.Fatalf("expected 40,41,42, got %q", got)
	}
}

func TestRemoveTwiceEqualsOnce(t *testing.T) {
	s := Parse("40,41,42")
	if changed := s.Remove("41"); !changed {
		t.Fatal("first removal must change the set")
	}
	after := s.String()
	if changed := s.Remove("41"); changed {
		t.Fatal("second removal must be a no-op")
	}
	if s.String() != after {
		t.Fatalf("set changed on repeated removal: %q vs %q", s.String(), after)
	}
	if after != "40,42" {
		t.Fatalf("expected 40,42, got %q", after)
	}
}

func TestValuesIsACopy(t *testing.T) {
	s := Parse("40,41")
	vals := s.Values()
	vals[0] = "99"
	if !reflect.DeepEqual(s.Values(), []string{"40", "41"}) {
		t.Fatalf("mutating Values() output leaked into the set: %v", s.Values())
	}
}

func TestNoDuplicatesAfterAnySequence(t *testing.T) {
	s := Parse("40")
	ops := []struct {
		add  bool
		size string
	}{
		{true, "41"}, {true, "41"}, {false, "40"}, {true, "40"},
		{false, "41"}, {true, "41"}, {true, "42"},
	}
	for _, op := range ops {
		if op.add {
			s.Add(op.size)
		} else {
			s.Remove(op.size)
		}
		seen := map[string]bool{}
		for _, v := range s.Values() {
			if seen[v] {
				t.Fatalf("duplicate %q after ops: %v", v, s.Values())
			}
			seen[v] = true
		}
	}
}

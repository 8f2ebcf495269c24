package conversion

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIDSetKeysOrder(t *testing.T) {
	set := NewIDSet()
	for _, id := range []ID{"10", "2", "1", "x", "30"} {
		set.Add(id)
	}

	expected := []ID{"1", "2", "10", "30", "x"}
	if diff := cmp.Diff(expected, set.Keys()); diff != "" {
		t.Errorf("unexpected keys (-want +got):\n%s", diff)
	}
}

func TestIDSetAddAll(t *testing.T) {
	a := NewIDSet()
	a.Add("1")
	a.Add("2")

	b := NewIDSet()
	b.Add("2")
	b.Add("3")

	a.AddAll(b)

	expected := []ID{"1", "2", "3"}
	if diff := cmp.Diff(expected, a.Keys()); diff != "" {
		t.Errorf("unexpected keys (-want +got):\n%s", diff)
	}
}

func TestDefaultIDSetMapGetOrCreate(t *testing.T) {
	m := NewDefaultIDSetMap()
	m.GetOrCreate("1").Add("10")
	m.GetOrCreate("1").Add("20")

	if m.Len() != 1 {
		t.Errorf("unexpected length. want=%d have=%d", 1, m.Len())
	}

	expected := []ID{"10", "20"}
	if diff := cmp.Diff(expected, m.Get("1").Keys()); diff != "" {
		t.Errorf("unexpected members (-want +got):\n%s", diff)
	}

	if set := m.Get("2"); set != nil {
		t.Errorf("unexpected set for absent key: %v", set.Keys())
	}
}

func TestDefaultIDSetMapReplaceKey(t *testing.T) {
	m := NewDefaultIDSetMap()
	m.GetOrCreate("1").Add("10")
	m.GetOrCreate("2").Add("20")

	m.ReplaceKey("2", "1")

	if m.Get("2") != nil {
		t.Errorf("expected old key to be removed")
	}

	expected := []ID{"10", "20"}
	if diff := cmp.Diff(expected, m.Get("1").Keys()); diff != "" {
		t.Errorf("unexpected merged members (-want +got):\n%s", diff)
	}

	// Replacing into an empty slot moves the set wholesale.
	m.ReplaceKey("1", "3")
	if diff := cmp.Diff(expected, m.Get("3").Keys()); diff != "" {
		t.Errorf("unexpected moved members (-want +got):\n%s", diff)
	}
}

func TestDisjointIDSetExtractSet(t *testing.T) {
	set := NewDisjointIDSet()
	set.Union("1", "2")
	set.Union("3", "4")
	set.Union("2", "3")
	set.Union("5", "6")

	expected := []ID{"1", "2", "3", "4"}
	for _, id := range expected {
		if diff := cmp.Diff(expected, set.ExtractSet(id).Keys()); diff != "" {
			t.Errorf("unexpected set for %s (-want +got):\n%s", id, diff)
		}
	}

	if diff := cmp.Diff([]ID{"5", "6"}, set.ExtractSet("5").Keys()); diff != "" {
		t.Errorf("unexpected set (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]ID{"99"}, set.ExtractSet("99").Keys()); diff != "" {
		t.Errorf("unexpected singleton (-want +got):\n%s", diff)
	}
}

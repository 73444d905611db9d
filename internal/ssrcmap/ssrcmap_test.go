package ssrcmap

import "testing"

func TestMap_BindAndLookup(t *testing.T) {
	t.Parallel()

	m := New()
	m.Bind(100, "user-1", "Alice")

	id, ok := m.Lookup(100)
	if !ok {
		t.Fatal("expected source 100 to resolve")
	}
	if id.UserID != "user-1" || id.DisplayName != "Alice" {
		t.Errorf("got %+v, want user-1/Alice", id)
	}

	src, ok := m.SourceFor("user-1")
	if !ok || src != 100 {
		t.Errorf("SourceFor(user-1) = %d, %v, want 100, true", src, ok)
	}
}

func TestMap_ReassignmentRemovesPriorSource(t *testing.T) {
	t.Parallel()

	m := New()
	m.Bind(100, "user-1", "Alice")
	m.Bind(200, "user-1", "Alice")

	if _, ok := m.Lookup(100); ok {
		t.Error("expected prior source id 100 to be removed after reassignment")
	}
	src, ok := m.SourceFor("user-1")
	if !ok || src != 200 {
		t.Errorf("SourceFor(user-1) = %d, %v, want 200, true", src, ok)
	}
}

func TestMap_Unbind(t *testing.T) {
	t.Parallel()

	m := New()
	m.Bind(100, "user-1", "Alice")
	m.Unbind(100)

	if _, ok := m.Lookup(100); ok {
		t.Error("expected source 100 to be gone after Unbind")
	}
	if _, ok := m.SourceFor("user-1"); ok {
		t.Error("expected user-1 to be gone after Unbind")
	}
}

func TestMap_UnbindStaleSourceDoesNotClobberNewBinding(t *testing.T) {
	t.Parallel()

	m := New()
	m.Bind(100, "user-1", "Alice")
	m.Bind(200, "user-1", "Alice")

	// Unbinding the stale source id must not remove the reverse entry that
	// now points at the new source id.
	m.Unbind(100)

	src, ok := m.SourceFor("user-1")
	if !ok || src != 200 {
		t.Errorf("SourceFor(user-1) = %d, %v, want 200, true", src, ok)
	}
}

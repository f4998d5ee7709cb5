package gameboot

import "testing"

func TestScope(t *testing.T) {
	t.Run("it keeps values in attach order", func(t *testing.T) {
		s := newScope(ScopeName)
		s.Attach("save", 1)
		s.Attach("events", 2)
		s.Attach("ui", 3)

		verifyStringsEqual(t, []string{"save", "events", "ui"}, s.Names())
		v, ok := s.Lookup("events")
		if !ok || v != 2 {
			t.Fatalf("expected events to be 2, got %v (found: %t)", v, ok)
		}
	})

	t.Run("attaching a name twice replaces the value in place", func(t *testing.T) {
		s := newScope(ScopeName)
		s.Attach("save", "old")
		s.Attach("ui", "ui")
		s.Attach("save", "new")

		verifyStringsEqual(t, []string{"save", "ui"}, s.Names())
		if v, _ := s.Lookup("save"); v != "new" {
			t.Fatalf("expected %q, got %v", "new", v)
		}
	})

	t.Run("unknown names are not found", func(t *testing.T) {
		s := newScope(ScopeName)
		if _, ok := s.Lookup("audio"); ok {
			t.Fatal("expected audio not to be found")
		}
		verifyCountEq(t, len(s.Names()), 0)
	})
}

package notify

import (
	"testing"
)

func TestChangeTypeString(t *testing.T) {
	tests := []struct {
		ct   ChangeType
		want string
	}{
		{ChangeSet, "set"},
		{ChangeDelete, "delete"},
		{ChangeReload, "reload"},
		{ChangeType(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.ct.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.ct, got, tt.want)
		}
	}
}

func TestSubscribeReceivesEverything(t *testing.T) {
	n := New()
	defer n.Close()

	var got []Change
	n.Subscribe(func(c Change) { got = append(got, c) })

	n.NotifySet("ai.model", "a", "b", "settings")
	n.NotifyDelete("logging.level", "info", "file")
	n.NotifyReload("file")

	if len(got) != 3 {
		t.Fatalf("received %d changes, want 3", len(got))
	}
	if got[0].Path != "ai.model" || got[0].NewValue != "b" || got[0].Source != "settings" {
		t.Errorf("first change = %+v", got[0])
	}
	if got[2].Type != ChangeReload {
		t.Errorf("third change type = %v, want reload", got[2].Type)
	}
}

func TestSubscribePathMatching(t *testing.T) {
	n := New()
	defer n.Close()

	count := 0
	n.SubscribePath("ai", func(Change) { count++ })

	n.NotifySet("ai", nil, 1, "test")
	n.NotifySet("ai.model", nil, "m", "test")
	n.NotifySet("aim", nil, 1, "test")
	n.NotifySet("ghost.triggerDelay", nil, 1, "test")
	n.NotifyReload("test")

	if count != 3 {
		t.Errorf("observer called %d times, want 3", count)
	}
}

func TestUnsubscribe(t *testing.T) {
	n := New()
	defer n.Close()

	count := 0
	sub := n.SubscribePath("ai", func(Change) { count++ })
	n.NotifySet("ai.enabled", false, true, "test")

	sub.Unsubscribe()
	sub.Unsubscribe()
	n.NotifySet("ai.enabled", true, false, "test")

	if count != 1 {
		t.Errorf("observer called %d times, want 1", count)
	}
	if n.Len() != 0 {
		t.Errorf("Len() = %d, want 0", n.Len())
	}
}

func TestUnsubscribeFromCallback(t *testing.T) {
	n := New()
	defer n.Close()

	var sub *Subscription
	calls := 0
	sub = n.Subscribe(func(Change) {
		calls++
		sub.Unsubscribe()
	})

	n.NotifyReload("test")
	n.NotifyReload("test")

	if calls != 1 {
		t.Errorf("observer called %d times, want 1", calls)
	}
}

func TestClosedNotifierIsSilent(t *testing.T) {
	n := New()
	called := false
	n.Subscribe(func(Change) { called = true })

	n.Close()
	n.Close()
	n.NotifyReload("test")

	if called {
		t.Error("closed notifier delivered a change")
	}
}

func TestIsParentPath(t *testing.T) {
	tests := []struct {
		parent, child string
		want          bool
	}{
		{"ai", "ai.model", true},
		{"ai", "ai", false},
		{"ai", "aim", false},
		{"ai.model", "ai", false},
		{"", "ai", true},
		{"", "", false},
	}

	for _, tt := range tests {
		if got := IsParentPath(tt.parent, tt.child); got != tt.want {
			t.Errorf("IsParentPath(%q, %q) = %v, want %v", tt.parent, tt.child, got, tt.want)
		}
	}
}

package notify

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingHub struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingHub) Broadcast(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingHub) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func TestCenter_NotifyReplacesVisible(t *testing.T) {
	c := NewCenter(zap.NewNop())

	a := c.Notify("first", SeverityInfo)
	b := c.Notify("second", SeverityError)

	cur := c.Current()
	if cur == nil || cur.ID != b.ID {
		t.Fatalf("current: %+v, want %q", cur, b.ID)
	}
	if cur.Message != "second" {
		t.Errorf("message: %q", cur.Message)
	}
	// The displaced notification's id must not dismiss the replacement.
	c.Dismiss(a.ID)
	if got := c.Current(); got == nil || got.ID != b.ID {
		t.Errorf("stale dismiss removed the replacement: %+v", got)
	}
}

func TestCenter_AutoDismiss(t *testing.T) {
	c := NewCenter(zap.NewNop(), WithTTL(20*time.Millisecond))

	c.Notify("transient", SeveritySuccess)
	if c.Current() == nil {
		t.Fatal("notification should be visible")
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Current() != nil {
		if time.Now().After(deadline) {
			t.Fatal("notification never auto-dismissed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCenter_UnknownSeverityFallsBackToInfo(t *testing.T) {
	c := NewCenter(zap.NewNop())
	n := c.Notify("msg", Severity("fatal"))
	if n.Severity != SeverityInfo {
		t.Errorf("severity: %q, want info", n.Severity)
	}
}

func TestCenter_DismissIsIdempotent(t *testing.T) {
	c := NewCenter(zap.NewNop())
	n := c.Notify("once", SeverityInfo)
	c.Dismiss(n.ID)
	c.Dismiss(n.ID)
	if c.Current() != nil {
		t.Error("notification still visible")
	}
}

func TestCenter_ModalSingleton(t *testing.T) {
	hub := &recordingHub{}
	c := NewCenter(zap.NewNop(), WithBroadcaster(hub))

	first := c.OpenModal("Export", "choose a format")
	second := c.OpenModal("Confirm", "delete 3 records?")

	cur := c.CurrentModal()
	if cur == nil || cur.ID != second.ID {
		t.Fatalf("current modal: %+v", cur)
	}

	// Closing with the displaced dialog's id must not close the new one.
	c.CloseModal(first.ID)
	if got := c.CurrentModal(); got == nil || got.ID != second.ID {
		t.Errorf("stale close removed the open modal: %+v", got)
	}

	c.CloseModal(second.ID)
	if c.CurrentModal() != nil {
		t.Error("modal still open after close")
	}

	want := []string{EventModalOpened, EventModalClosed, EventModalOpened, EventModalClosed}
	got := hub.kinds()
	if len(got) != len(want) {
		t.Fatalf("events: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCenter_Loading(t *testing.T) {
	c := NewCenter(zap.NewNop())

	c.SetLoading("model-results", "Analyzing...")
	msg, ok := c.Loading("model-results")
	if !ok || msg != "Analyzing..." {
		t.Errorf("loading: %q %v", msg, ok)
	}
	// A new message replaces the old one in place.
	c.SetLoading("model-results", "Still analyzing...")
	msg, _ = c.Loading("model-results")
	if msg != "Still analyzing..." {
		t.Errorf("replaced loading: %q", msg)
	}

	c.ClearLoading("model-results")
	if _, ok := c.Loading("model-results"); ok {
		t.Error("loading state not cleared")
	}
	// Clearing an absent container is a no-op.
	c.ClearLoading("rule-results")
}

func TestCenter_BroadcastsNotificationEvents(t *testing.T) {
	hub := &recordingHub{}
	c := NewCenter(zap.NewNop(), WithBroadcaster(hub))

	n := c.Notify("saved", SeveritySuccess)
	c.Dismiss(n.ID)

	got := hub.kinds()
	if len(got) != 2 || got[0] != EventNotification || got[1] != EventNotificationCleared {
		t.Errorf("events: %v", got)
	}
}

package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/partcat/partcat/pkg/types"
)

var events = types.NewTableName("prod", "db", "events")

func notification(table types.QualifiedName) Notification {
	return Notification{
		Type:       PartitionsSaved,
		Table:      table,
		Partitions: []string{"dt=1"},
		Timestamp:  time.Now().UnixNano(),
	}
}

func TestNotifier_PublishNoSubscribers(t *testing.T) {
	n := NewNotifier(100)
	// Should not panic and should not block
	n.Publish(notification(events))

	var nilNotifier *Notifier
	nilNotifier.Publish(notification(events))
}

func TestNotifier_SubscribeReceivesNotification(t *testing.T) {
	n := NewNotifier(100)
	sub := n.Subscribe("sub-1")

	n.Publish(notification(events))

	select {
	case notif := <-sub.Ch:
		if notif.Table != events || notif.Type != PartitionsSaved {
			t.Errorf("unexpected notification %+v", notif)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive notification within timeout")
	}
}

func TestNotifier_Filters(t *testing.T) {
	tests := []struct {
		filter string
		table  types.QualifiedName
		want   bool
	}{
		{"prod", events, true},
		{"prod/db", events, true},
		{"prod/db/events", events, true},
		{"prod/db/", events, true},
		{"prod/d", events, false},
		{"dev", events, false},
		{"prod/db/events", types.NewTableName("prod", "db", "eventsx"), false},
	}

	for _, tt := range tests {
		n := NewNotifier(1)
		sub := n.Subscribe("", tt.filter)
		n.Publish(notification(tt.table))

		got := len(sub.Ch) == 1
		if got != tt.want {
			t.Errorf("filter %q table %s: expected delivery %v, got %v", tt.filter, tt.table, tt.want, got)
		}
	}
}

func TestNotifier_FullChannelDropsNotification(t *testing.T) {
	n := NewNotifier(1)
	sub := n.Subscribe("sub-4")

	fill := notification(types.NewTableName("prod", "db", "fill"))
	sub.Ch <- fill

	done := make(chan struct{})
	go func() {
		n.Publish(notification(events))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publish blocked when channel was full")
	}

	if notif := <-sub.Ch; notif.Table != fill.Table {
		t.Errorf("expected the original notification, got %+v", notif)
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier(100)
	sub := n.Subscribe("test-sub")
	n.Unsubscribe("test-sub")

	if _, ok := <-sub.Ch; ok {
		t.Error("expected channel to be closed")
	}
	// Unsubscribing twice is harmless.
	n.Unsubscribe("test-sub")
}

func TestNotifier_ResubscribeClosesPrevious(t *testing.T) {
	n := NewNotifier(1)
	first := n.Subscribe("same")
	second := n.Subscribe("same")

	if _, ok := <-first.Ch; ok {
		t.Error("expected the replaced subscriber's channel to be closed")
	}
	n.Publish(notification(events))
	if len(second.Ch) != 1 {
		t.Error("expected the new subscriber to receive notifications")
	}
}

func TestNotifier_GeneratedIDs(t *testing.T) {
	n := NewNotifier(1)
	a := n.Subscribe("")
	b := n.Subscribe("")
	if a.ID == b.ID || a.ID == "" {
		t.Errorf("expected distinct generated ids, got %q and %q", a.ID, b.ID)
	}
	n.Close()
	if _, ok := <-a.Ch; ok {
		t.Error("Close should close every subscriber channel")
	}
}

func TestNotifier_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	n := NewNotifier(1)

	for round := 0; round < 50; round++ {
		id := fmt.Sprintf("sub-%d", round)
		n.Subscribe(id)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				n.Publish(notification(events))
			}
		}()
		go func() {
			defer wg.Done()
			n.Unsubscribe(id)
		}()
		wg.Wait()
	}

	n.Subscribe("last")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			n.Publish(notification(events))
		}
	}()
	go func() {
		defer wg.Done()
		n.Close()
	}()
	wg.Wait()
}

func TestNotifier_SubscribeAfterClose(t *testing.T) {
	n := NewNotifier(10)
	n.Close()

	sub := n.Subscribe("late")
	n.Publish(notification(events))
	if _, ok := <-sub.Ch; ok {
		t.Error("expected a closed channel after Close")
	}
}

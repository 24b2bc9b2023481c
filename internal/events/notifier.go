// Package events provides an in-process notification bus for partition
// changes committed through the dispatcher.
package events

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/partcat/partcat/pkg/types"
)

// Type is the kind of change a notification reports.
type Type int

const (
	PartitionsSaved Type = iota
	PartitionsDeleted
)

func (t Type) String() string {
	switch t {
	case PartitionsSaved:
		return "partitions_saved"
	case PartitionsDeleted:
		return "partitions_deleted"
	default:
		return "unknown"
	}
}

// Notification reports a change to partitions of one table.
type Notification struct {
	Type  Type
	Table types.QualifiedName
	// Partitions are the partition names that changed.
	Partitions []string
	Timestamp  int64
}

// Notifier is a pub/sub bus. Publishing never blocks: a subscriber whose
// channel is full misses the notification. Channels are only closed under
// the write lock, so a publish never sends on a closed channel.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
	closed      bool
}

// Subscriber receives notifications for the tables matching its filters.
type Subscriber struct {
	ID string
	// Filters are qualified-name prefixes such as "prod" or "prod/db/events".
	Filters []string
	Ch      chan Notification
}

// NewNotifier creates a notifier whose subscriber channels hold bufferSize
// notifications.
func NewNotifier(bufferSize int) *Notifier {
	return &Notifier{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  bufferSize,
	}
}

// Publish sends notif to every matching subscriber. A nil notifier drops it.
func (n *Notifier) Publish(notif Notification) {
	if n == nil {
		return
	}
	table := notif.Table.String()

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, sub := range n.subscribers {
		if !matches(sub.Filters, table) {
			continue
		}
		select {
		case sub.Ch <- notif:
		default:
		}
	}
}

// Subscribe registers a subscriber. An empty id gets a generated one.
// Subscribing after Close returns a subscriber whose channel is closed.
func (n *Notifier) Subscribe(id string, filters ...string) *Subscriber {
	if id == "" {
		id = "sub_" + uuid.NewString()
	}
	sub := &Subscriber{
		ID:      id,
		Filters: filters,
		Ch:      make(chan Notification, n.bufferSize),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(sub.Ch)
		return sub
	}
	if old, ok := n.subscribers[id]; ok {
		close(old.Ch)
	}
	n.subscribers[id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.subscribers[id]; ok {
		delete(n.subscribers, id)
		close(sub.Ch)
	}
}

// Close unsubscribes everyone. Later publishes are dropped.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, sub := range n.subscribers {
		delete(n.subscribers, id)
		close(sub.Ch)
	}
	n.closed = true
}

// matches reports whether table falls under one of the filters. Filters
// match on '/' boundaries, so "prod/db" does not match "prod/dbx/t".
func matches(filters []string, table string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		f = strings.TrimSuffix(f, "/")
		if f == "" || table == f || strings.HasPrefix(table, f+"/") {
			return true
		}
	}
	return false
}

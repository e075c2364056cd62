// Package notify delivers configuration and settings changes to
// subscribers.
//
// Observers subscribe either to every change or to a dot-separated path.
// A path subscription also receives changes below it, so "ai" observes
// "ai.model". Reload events reach every observer.
package notify

import (
	"strings"
	"sync"
)

// ChangeType is the kind of change being broadcast.
type ChangeType int

const (
	// ChangeSet indicates a value was set or updated.
	ChangeSet ChangeType = iota

	// ChangeDelete indicates a value was removed.
	ChangeDelete

	// ChangeReload indicates the whole source was reloaded.
	ChangeReload
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeSet:
		return "set"
	case ChangeDelete:
		return "delete"
	case ChangeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Change describes one change event.
type Change struct {
	// Path is the dot-separated key that changed. Empty for reloads.
	Path string

	Type     ChangeType
	OldValue any
	NewValue any

	// Source names the origin of the change ("settings", "file", "env").
	Source string
}

// Observer receives change events.
type Observer func(change Change)

// Subscription is an active registration.
type Subscription struct {
	id       uint64
	notifier *Notifier
	once     sync.Once
}

// Unsubscribe removes the registration. It may be called more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.notifier == nil {
		return
	}
	s.once.Do(func() {
		s.notifier.remove(s.id)
	})
}

type registration struct {
	path     string // empty for global observers
	observer Observer
}

// Notifier fans change events out to observers. Delivery is synchronous
// and happens outside the notifier's lock, so observers may subscribe or
// unsubscribe from within a callback.
type Notifier struct {
	mu     sync.RWMutex
	regs   map[uint64]registration
	nextID uint64
	closed bool
}

// New creates an empty notifier.
func New() *Notifier {
	return &Notifier{
		regs: make(map[uint64]registration),
	}
}

// Subscribe registers an observer for every change.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	return n.add("", observer)
}

// SubscribePath registers an observer for path and everything below it.
func (n *Notifier) SubscribePath(path string, observer Observer) *Subscription {
	return n.add(path, observer)
}

func (n *Notifier) add(path string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.regs[id] = registration{path: path, observer: observer}
	return &Subscription{id: id, notifier: n}
}

func (n *Notifier) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.regs, id)
}

// Len returns the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.regs)
}

// Notify delivers change to every matching observer.
func (n *Notifier) Notify(change Change) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}
	var observers []Observer
	for _, reg := range n.regs {
		if matches(reg.path, change) {
			observers = append(observers, reg.observer)
		}
	}
	n.mu.RUnlock()

	for _, obs := range observers {
		obs(change)
	}
}

// NotifySet broadcasts a set change.
func (n *Notifier) NotifySet(path string, oldValue, newValue any, source string) {
	n.Notify(Change{
		Path:     path,
		Type:     ChangeSet,
		OldValue: oldValue,
		NewValue: newValue,
		Source:   source,
	})
}

// NotifyDelete broadcasts a delete change.
func (n *Notifier) NotifyDelete(path string, oldValue any, source string) {
	n.Notify(Change{
		Path:     path,
		Type:     ChangeDelete,
		OldValue: oldValue,
		Source:   source,
	})
}

// NotifyReload broadcasts a reload.
func (n *Notifier) NotifyReload(source string) {
	n.Notify(Change{Type: ChangeReload, Source: source})
}

// Close stops all delivery. It is safe to call Close multiple times.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.regs = make(map[uint64]registration)
}

func matches(subscribed string, change Change) bool {
	if subscribed == "" || change.Type == ChangeReload {
		return true
	}
	return subscribed == change.Path || IsParentPath(subscribed, change.Path)
}

// IsParentPath reports whether parent is a strict ancestor of child,
// e.g. "ai" is a parent of "ai.model" but not of "aim".
func IsParentPath(parent, child string) bool {
	if parent == "" {
		return child != ""
	}
	return len(child) > len(parent) &&
		strings.HasPrefix(child, parent) &&
		child[len(parent)] == '.'
}

// Package notify provides change notification for the configuration store.
//
// Components subscribe to key changes and receive callbacks when values are
// written, keys are removed, a layer binding is activated, or the backing
// keyset is reloaded from storage.
package notify

import (
	"strings"
	"sync"
)

// ChangeType represents the type of configuration change.
type ChangeType int

const (
	// ChangeSet indicates a key value was written.
	ChangeSet ChangeType = iota

	// ChangeRemove indicates a key was removed.
	ChangeRemove

	// ChangeActivate indicates a layer binding was activated.
	ChangeActivate

	// ChangeReload indicates the backing keyset was replaced or bulk-refreshed.
	ChangeReload
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeSet:
		return "set"
	case ChangeRemove:
		return "remove"
	case ChangeActivate:
		return "activate"
	case ChangeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Change represents a single change event.
type Change struct {
	// Name is the slash-separated key name, or the layer tag for
	// activation events. Empty for reload events.
	Name string

	// Type is the type of change.
	Type ChangeType

	// OldValue is the previous value, if any.
	OldValue string

	// NewValue is the new value, if any.
	NewValue string
}

// Observer is called when a change occurs.
type Observer func(change Change)

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	notifier *Notifier
}

// Unsubscribe removes this subscription.
func (s *Subscription) Unsubscribe() {
	if s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

type entry struct {
	prefix   string // "" subscribes to everything
	observer Observer
}

// Notifier manages change subscriptions and delivery.
type Notifier struct {
	mu        sync.RWMutex
	observers map[uint64]entry
	nextID    uint64

	async  bool
	buffer chan Change
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithAsync enables buffered asynchronous delivery.
func WithAsync(bufferSize int) Option {
	return func(n *Notifier) {
		if bufferSize > 0 {
			n.async = true
			n.buffer = make(chan Change, bufferSize)
		}
	}
}

// New creates a new Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		observers: make(map[uint64]entry),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.async {
		n.wg.Add(1)
		go n.processAsync()
	}
	return n
}

// Subscribe registers an observer for all changes.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	return n.subscribe("", observer)
}

// SubscribeBelow registers an observer for changes at or below a key prefix.
// Subscribing to "/editor" receives changes to "/editor" and "/editor/tab".
func (n *Notifier) SubscribeBelow(prefix string, observer Observer) *Subscription {
	return n.subscribe(prefix, observer)
}

func (n *Notifier) subscribe(prefix string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.observers[id] = entry{prefix: prefix, observer: observer}

	return &Subscription{id: id, notifier: n}
}

// Notify delivers a change to all matching observers.
func (n *Notifier) Notify(change Change) {
	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return
	}

	if n.async {
		select {
		case n.buffer <- change:
		case <-n.done:
		}
		return
	}

	n.deliver(change)
}

// NotifySet is a convenience method for value writes.
func (n *Notifier) NotifySet(name, oldValue, newValue string) {
	n.Notify(Change{Name: name, Type: ChangeSet, OldValue: oldValue, NewValue: newValue})
}

// NotifyActivate is a convenience method for layer activations.
func (n *Notifier) NotifyActivate(tag, current string) {
	n.Notify(Change{Name: tag, Type: ChangeActivate, NewValue: current})
}

// NotifyReload is a convenience method for keyset reloads.
func (n *Notifier) NotifyReload() {
	n.Notify(Change{Type: ChangeReload})
}

// Close shuts down the notifier. Safe to call more than once.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.observers, id)
}

// deliver sends a change to matching observers outside the lock.
func (n *Notifier) deliver(change Change) {
	n.mu.RLock()
	var observers []Observer
	for _, e := range n.observers {
		if matches(e.prefix, change) {
			observers = append(observers, e.observer)
		}
	}
	n.mu.RUnlock()

	for _, obs := range observers {
		obs(change)
	}
}

func (n *Notifier) processAsync() {
	defer n.wg.Done()

	for {
		select {
		case change := <-n.buffer:
			n.deliver(change)
		case <-n.done:
			// Drain remaining buffered changes
			for {
				select {
				case change := <-n.buffer:
					n.deliver(change)
				default:
					return
				}
			}
		}
	}
}

// matches reports whether a prefix subscription applies to a change.
// Reload and activation events reach every observer.
func matches(prefix string, change Change) bool {
	if prefix == "" {
		return true
	}
	if change.Type == ChangeReload || change.Type == ChangeActivate {
		return true
	}
	if change.Name == prefix {
		return true
	}
	return strings.HasPrefix(change.Name, strings.TrimSuffix(prefix, "/")+"/")
}

package shelfsync

import "sync"

// Notifier is a broadcast registry for the "store changed" signal. The
// pull pipeline publishes once per successful apply; any number of
// subscribers may react, with no ordering guarantee among them.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

// NewNotifier returns an empty registry.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan struct{})}
}

// Subscribe registers a listener. The returned channel receives a signal
// per publish (coalesced while the subscriber is busy); the cancel
// function removes the subscription.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan struct{}, 1)
	n.subs[id] = ch
	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Publish signals every subscriber without blocking. A subscriber that
// has not drained its previous signal keeps a single pending one.
func (n *Notifier) Publish() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

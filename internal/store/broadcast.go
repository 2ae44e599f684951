package store

import "sync"

// subscriberBuffer is the channel buffer handed to each subscriber.
const subscriberBuffer = 100

// broadcaster fans [Change] values out to subscribers.
//
// Sends are non-blocking: if a subscriber's buffer is full the change is
// dropped for that subscriber so writers never wait on readers.
type broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Change]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subscribers: make(map[chan Change]struct{})}
}

// Subscribe creates a new subscription.
func (b *broadcaster) Subscribe() <-chan Change {
	ch := make(chan Change, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// more than once or with an unknown channel.
func (b *broadcaster) Unsubscribe(ch <-chan Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subCh := range b.subscribers {
		if subCh == ch {
			delete(b.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (b *broadcaster) publish(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- c:
		default:
			// subscriber is slow, drop the change
		}
	}
}

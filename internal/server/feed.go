package server

import (
	"sync"

	"github.com/iudanet/docsync/pkg/api"
)

// feedBuffer is the per-subscriber channel capacity. A subscriber that
// falls further behind than this starts missing pushed entries and must
// catch up through FetchSince.
const feedBuffer = 16

// Feed broadcasts committed log entries to subscribers. Delivery is
// best-effort: sends never block the commit path.
type Feed struct {
	subs map[int]chan api.LogEntry
	next int
	mu   sync.Mutex
}

// NewFeed creates a feed with no subscribers.
func NewFeed() *Feed {
	return &Feed{
		subs: make(map[int]chan api.LogEntry),
	}
}

// Subscribe registers a new subscriber. The returned cancel func removes
// the subscription and closes the channel.
func (f *Feed) Subscribe() (<-chan api.LogEntry, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++

	ch := make(chan api.LogEntry, feedBuffer)
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()

		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publish delivers an entry to every subscriber whose buffer has room.
func (f *Feed) publish(entry api.LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		select {
		case ch <- entry:
		default:
			// Подписчик отстал: он догонит через FetchSince.
		}
	}
}

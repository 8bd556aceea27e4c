package local

import (
	"sync"

	"taskboard/internal/model"
)

// feedHub fans task-table changes out to subscribers. Sends are non-blocking
// with a generous buffer; a subscriber that falls 256 events behind misses
// events and recovers via the refetch path.
type feedHub struct {
	mu   sync.Mutex
	subs map[chan model.Change]struct{}
}

func newFeedHub() *feedHub {
	return &feedHub{subs: map[chan model.Change]struct{}{}}
}

type feedSubscription struct {
	hub  *feedHub
	ch   chan model.Change
	once sync.Once
}

func (s *feedSubscription) Changes() <-chan model.Change { return s.ch }

func (s *feedSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if _, ok := s.hub.subs[s.ch]; ok {
			delete(s.hub.subs, s.ch)
			close(s.ch)
		}
		s.hub.mu.Unlock()
	})
}

func (h *feedHub) subscribe() *feedSubscription {
	ch := make(chan model.Change, 256)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return &feedSubscription{hub: h, ch: ch}
}

func (h *feedHub) broadcast(c model.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (h *feedHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

package eventsvc

import "sync"

// hub fans freshly published events out to live subscribers. Delivery is
// best-effort: a subscriber whose buffer is full misses the event and
// catches up from the log.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan *Event]struct{}
}

func newHub() *hub {
	return &hub{subs: map[string]map[chan *Event]struct{}{}}
}

// subscribe registers a buffered listener for one topic. The returned
// cancel func must be called to release the channel.
func (h *hub) subscribe(topicID string, buf int) (<-chan *Event, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan *Event, buf)
	h.mu.Lock()
	set, ok := h.subs[topicID]
	if !ok {
		set = map[chan *Event]struct{}{}
		h.subs[topicID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[topicID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, topicID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// broadcast offers the event to every subscriber without blocking.
func (h *hub) broadcast(topicID string, e *Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[topicID] {
		select {
		case ch <- e:
		default:
		}
	}
}

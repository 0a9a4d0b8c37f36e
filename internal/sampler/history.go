package sampler

import "sync"

// history is a bounded ring of outcomes with fan-out to subscribers.
type history struct {
	mu     sync.Mutex
	ring   []Outcome
	next   int
	full   bool
	subs   map[int]chan Outcome
	nextID int
	closed bool
}

func newHistory(size int) *history {
	return &history{
		ring: make([]Outcome, size),
		subs: make(map[int]chan Outcome),
	}
}

func (h *history) add(o Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ring[h.next] = o
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}

	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- o:
		default:
		}
	}
}

// last returns up to n outcomes, newest first.
func (h *history) last(n int) []Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := h.next
	if h.full {
		count = len(h.ring)
	}
	if n <= 0 || n > count {
		n = count
	}
	out := make([]Outcome, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.ring)) % len(h.ring)
		out = append(out, h.ring[idx])
	}
	return out
}

func (h *history) subscribe(buffer int) (<-chan Outcome, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Outcome, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *history) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

package channel

import "sync"

// History is a record of recent message senders.
type History struct {
	mu   sync.Mutex
	ring []histelem
	k    uint64
}

type histelem struct {
	mu   sync.Mutex
	k    uint64 // total number of elements written up to and including this one
	id   string
	who  string
	name string
}

// ringsize is the number of messages in a history.
const ringsize = 1 << 9

// ringsize must be a power of 2; this line enforces that.
var _ [0]struct{} = [ringsize & (ringsize - 1)]struct{}{}

func NewHistory() *History {
	return &History{ring: make([]histelem, ringsize)}
}

// Add records a message.
func (h *History) Add(id, who, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := h.k % ringsize
	h.ring[k].mu.Lock()
	h.ring[k].k = h.k + 1
	h.ring[k].id = id
	h.ring[k].who = who
	h.ring[k].name = name
	h.ring[k].mu.Unlock()
	h.k++ // We don't modulo so that Messages can detect changed elements.
}

// HistoryMessage is the minimal representation of a message recorded in a
// channel's history.
type HistoryMessage struct {
	ID     string
	Sender string
	Name   string
}

// Messages returns a slice of the messages in the channel history,
// approximately in order from oldest to newest.
func (h *History) Messages() []HistoryMessage {
	r := make([]HistoryMessage, 0, ringsize)
	h.mu.Lock()
	k := h.k
	// Iterate from ringsize tickets back.
	l := uint64(max(int64(k)-ringsize, 0))
	h.ring[l%ringsize].mu.Lock()
	h.mu.Unlock()
	for l < k {
		e := &h.ring[l%ringsize]
		if e.k > k || e.who == "" {
			// Overwritten since we started, or never written.
			// We are currently holding the lock on e.
			// Set our final index to l so that we unlock it after the loop.
			k = l
			break
		}
		r = append(r, HistoryMessage{ID: e.id, Sender: e.who, Name: e.name})
		// Lock the next element before we unlock the current one
		// so that no writer can skip past us.
		i := l + 1
		h.ring[i%ringsize].mu.Lock()
		e.mu.Unlock()
		l = i
	}
	h.ring[k%ringsize].mu.Unlock()
	return r
}

// Chatters returns up to n distinct recent senders, most recent first,
// excluding the given users. If n <= 0, there is no limit.
func (h *History) Chatters(n int, exclude ...string) []string {
	msgs := h.Messages()
	seen := make(map[string]bool, len(exclude))
	for _, u := range exclude {
		seen[u] = true
	}
	var r []string
	for i := len(msgs) - 1; i >= 0; i-- {
		u := msgs[i].Sender
		if seen[u] {
			continue
		}
		seen[u] = true
		r = append(r, u)
		if len(r) == n {
			break
		}
	}
	return r
}

// Package outbox keeps the recent output of every node and fans it out to
// live subscribers.
package outbox

import (
	"sort"
	"sync"
	"time"

	"watsoniot-bridge/go-backend/internal/dispatch"
)

type Kind string

const (
	KindMessage Kind = "message"
	KindError   Kind = "error"
)

type Event struct {
	Seq       int64     `json:"seq"`
	NodeID    string    `json:"nodeId"`
	Kind      Kind      `json:"kind"`
	MsgID     string    `json:"_msgid,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub keeps a bounded history per node plus a set of non-blocking
// subscribers. A subscriber that falls behind is dropped and its channel
// closed.
type Hub struct {
	mu      sync.Mutex
	nextSeq int64
	limit   int
	history map[string][]Event
	subs    map[int]chan Event
	nextSub int
}

var _ dispatch.Output = (*Hub)(nil)

// NewHub retains at most limit events per node.
func NewHub(limit int) *Hub {
	if limit < 1 {
		limit = 1
	}
	return &Hub{
		limit:   limit,
		history: make(map[string][]Event),
		subs:    make(map[int]chan Event),
	}
}

// Send records an outbound node message.
func (h *Hub) Send(nodeID string, out dispatch.Message) {
	h.publish(Event{NodeID: nodeID, Kind: KindMessage, MsgID: out.ID, Payload: out.Payload})
}

// Error records a message reported on a node's error channel.
func (h *Hub) Error(nodeID string, in dispatch.Message, err error) {
	ev := Event{NodeID: nodeID, Kind: KindError, MsgID: in.ID}
	if err != nil {
		ev.Error = err.Error()
	}
	h.publish(ev)
}

func (h *Hub) publish(ev Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	ev.Seq = h.nextSeq
	ev.Timestamp = time.Now().UTC()
	kept := append(h.history[ev.NodeID], ev)
	if len(kept) > h.limit {
		kept = append([]Event(nil), kept[len(kept)-h.limit:]...)
	}
	h.history[ev.NodeID] = kept

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			close(ch)
			delete(h.subs, id)
		}
	}
	return ev
}

// Since returns retained events after fromSeq in sequence order. An empty
// nodeID merges every node.
func (h *Hub) Since(nodeID string, fromSeq int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if nodeID != "" {
		return after(h.history[nodeID], fromSeq, make([]Event, 0))
	}
	return h.mergedLocked(fromSeq)
}

// Subscribe replays retained events after fromSeq and streams new ones
// until cancel is called.
func (h *Hub) Subscribe(fromSeq int64) ([]Event, <-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := h.mergedLocked(fromSeq)

	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			close(sub)
			delete(h.subs, id)
		}
	}
	return replay, ch, cancel
}

func (h *Hub) mergedLocked(fromSeq int64) []Event {
	out := make([]Event, 0)
	for _, events := range h.history {
		out = after(events, fromSeq, out)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func after(events []Event, fromSeq int64, out []Event) []Event {
	for _, ev := range events {
		if ev.Seq > fromSeq {
			out = append(out, ev)
		}
	}
	return out
}

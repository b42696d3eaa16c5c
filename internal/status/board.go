package status

import "sync"

// Board keeps the latest status of every node for the observation API.
type Board struct {
	mu     sync.RWMutex
	latest map[string]Status
}

func NewBoard() *Board {
	return &Board{latest: make(map[string]Status)}
}

func (b *Board) Publish(nodeID string, s Status) {
	b.mu.Lock()
	b.latest[nodeID] = s
	b.mu.Unlock()
}

func (b *Board) Get(nodeID string) (Status, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.latest[nodeID]
	return s, ok
}

// Multi fans a status change out to several publishers in order. Nil
// entries are skipped.
type Multi []Publisher

func (m Multi) Publish(nodeID string, s Status) {
	for _, p := range m {
		if p != nil {
			p.Publish(nodeID, s)
		}
	}
}

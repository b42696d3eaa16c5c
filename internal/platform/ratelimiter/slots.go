package ratelimiter

import "sync"

// Slots caps concurrent long-lived streams globally and per client.
type Slots struct {
	maxGlobal    int
	maxPerClient int

	mu       sync.Mutex
	global   int
	byClient map[string]int
}

func NewSlots(maxGlobal, maxPerClient int) *Slots {
	if maxGlobal <= 0 {
		maxGlobal = 64
	}
	if maxPerClient <= 0 {
		maxPerClient = 4
	}
	return &Slots{
		maxGlobal:    maxGlobal,
		maxPerClient: maxPerClient,
		byClient:     make(map[string]int),
	}
}

// Acquire takes a slot for client. The release func must be called once.
func (s *Slots) Acquire(client string) (func(), bool) {
	if s == nil {
		return func() {}, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.global >= s.maxGlobal || s.byClient[client] >= s.maxPerClient {
		return nil, false
	}
	s.global++
	s.byClient[client]++

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.global--
			if next := s.byClient[client] - 1; next > 0 {
				s.byClient[client] = next
			} else {
				delete(s.byClient, client)
			}
		})
	}, true
}

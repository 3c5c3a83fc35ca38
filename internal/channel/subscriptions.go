package channel

import "sync"

// SubscriptionSet is the de-duplicated set of event topics the client
// wants from the server. It only ever grows; the full set is replayed
// as one subscribe frame on every successful (re)connect.
type SubscriptionSet struct {
	mu    sync.Mutex
	order []string
	seen  map[string]struct{}
}

func NewSubscriptionSet() *SubscriptionSet {
	return &SubscriptionSet{seen: make(map[string]struct{})}
}

// Add unions topics into the set, preserving first-appearance order.
// Returns the number of topics that were new.
func (s *SubscriptionSet) Add(topics ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, t := range topics {
		if t == "" {
			continue
		}
		if _, ok := s.seen[t]; ok {
			continue
		}
		s.seen[t] = struct{}{}
		s.order = append(s.order, t)
		added++
	}
	return added
}

// Topics returns a copy of the set in first-appearance order.
func (s *SubscriptionSet) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of held topics.
func (s *SubscriptionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

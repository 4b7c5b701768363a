package connection

import "sort"

// subscriptionSet tracks topics to replay on every open, with the optional
// params each was subscribed with.
type subscriptionSet struct {
	topics map[string]any
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{topics: make(map[string]any)}
}

// add inserts topic or replaces its params. Returns true if topic was new.
func (s *subscriptionSet) add(topic string, params any) bool {
	_, exists := s.topics[topic]
	s.topics[topic] = params
	return !exists
}

// remove deletes topic. Returns true if it was present.
func (s *subscriptionSet) remove(topic string) bool {
	if _, ok := s.topics[topic]; !ok {
		return false
	}
	delete(s.topics, topic)
	return true
}

func (s *subscriptionSet) params(topic string) any {
	return s.topics[topic]
}

func (s *subscriptionSet) len() int {
	return len(s.topics)
}

// sorted returns the topics in lexical order so replay is deterministic.
func (s *subscriptionSet) sorted() []string {
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

package ui

import (
	"sync"

	"github.com/linux-automation/tacd/internal/model"
	"github.com/linux-automation/tacd/internal/topic"
)

// alertStack maintains the set of currently pending modal alerts,
// publishing it as an ordered slice onto a topic whenever it changes
// (spec.md §4.4: "an ordered set of modal alerts is maintained as a
// topic"). Membership, not position, is what callers rely on; order is
// kept as insertion order purely so the published value is stable and
// diffable.
type alertStack struct {
	mu     sync.Mutex
	kinds  []model.AlertKind
	Topic  *topic.Topic[[]model.AlertKind]
}

func newAlertStack(t *topic.Topic[[]model.AlertKind]) *alertStack {
	s := &alertStack{Topic: t}
	s.publish()
	return s
}

func (s *alertStack) push(k model.AlertKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.kinds {
		if existing == k {
			return
		}
	}
	s.kinds = append(s.kinds, k)
	s.publish()
}

func (s *alertStack) pop(k model.AlertKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.kinds {
		if existing == k {
			s.kinds = append(s.kinds[:i], s.kinds[i+1:]...)
			s.publish()
			return
		}
	}
}

func (s *alertStack) has(k model.AlertKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.kinds {
		if existing == k {
			return true
		}
	}
	return false
}

// highest returns the highest-priority pending alert, if any.
func (s *alertStack) highest() (model.AlertKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.HighestPriority(s.kinds)
}

// publish must be called with mu held.
func (s *alertStack) publish() {
	snapshot := make([]model.AlertKind, len(s.kinds))
	copy(snapshot, s.kinds)
	s.Topic.Publish(snapshot)
}

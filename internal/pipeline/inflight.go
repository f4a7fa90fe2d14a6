package pipeline

import (
	"sync"
	"time"

	v1alpha1 "github.com/headwind-sh/headwind/pkg/apis/headwind.sh/v1alpha1"
)

// inflightKey identifies a (workload, slot) pair, the granularity of
// spec.md invariant 1 ("at most one URQ in a non-terminal phase").
type inflightKey struct {
	kind      string
	namespace string
	name      string
	slot      string
}

// inflightEntry is what the Inflight Set tracks per spec.md §3: "the
// active URQ name, pipeline phase, and health-watch deadline". It holds
// only identities, never controller state (spec.md §9 "No cyclic
// ownership"), so reconstruction from persisted URQs on restart is
// authoritative.
type inflightEntry struct {
	urqName        string
	phase          v1alpha1.Phase
	healthDeadline time.Time
}

// InflightSet is the single in-memory map of spec.md §5: "guarded by a
// mutex; the only mutations are insert-on-propose-accept and
// remove-on-terminal".
type InflightSet struct {
	mu      sync.Mutex
	entries map[inflightKey]inflightEntry
}

func NewInflightSet() *InflightSet {
	return &InflightSet{entries: make(map[inflightKey]inflightEntry)}
}

func keyFor(kind, namespace, name, slot string) inflightKey {
	return inflightKey{kind: kind, namespace: namespace, name: name, slot: slot}
}

// Has reports whether (kind, namespace, name, slot) already has a
// non-terminal URQ tracked.
func (s *InflightSet) Has(kind, namespace, name, slot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[keyFor(kind, namespace, name, slot)]
	return ok
}

// Insert records a newly accepted proposal's URQ as in flight.
func (s *InflightSet) Insert(kind, namespace, name, slot, urqName string, phase v1alpha1.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[keyFor(kind, namespace, name, slot)] = inflightEntry{urqName: urqName, phase: phase}
}

// SetHealthDeadline records when a health-watch window for this key ends.
func (s *InflightSet) SetHealthDeadline(kind, namespace, name, slot string, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyFor(kind, namespace, name, slot)
	e := s.entries[k]
	e.healthDeadline = deadline
	s.entries[k] = e
}

// Remove drops the key on terminal transition (Completed, Rejected, or
// Failed).
func (s *InflightSet) Remove(kind, namespace, name, slot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, keyFor(kind, namespace, name, slot))
}

// Len reports how many (workload, slot) keys currently have a non-terminal
// URQ in flight -- used to drive the updates_pending gauge.
func (s *InflightSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

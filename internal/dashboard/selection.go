package dashboard

import (
	"time"

	"straitpulse/pkg/contracts/domain"
)

// Selection is the live set of active indicators and the chosen date range.
// It is owned by a Controller; callers only ever see Snapshots.
type Selection struct {
	active map[string]bool
	rng    domain.DateRange
}

func newSelection(active map[string]bool, rng domain.DateRange) Selection {
	s := Selection{active: make(map[string]bool, len(active)), rng: rng}
	for id, on := range active {
		if on {
			s.active[id] = true
		}
	}
	return s
}

func (s *Selection) toggle(id string) bool {
	if s.active[id] {
		delete(s.active, id)
		return false
	}
	s.active[id] = true
	return true
}

// Snapshot is an immutable copy of the selection taken at one instant.
// Indicators are resolved and in catalog order.
type Snapshot struct {
	Indicators []domain.Indicator `json:"indicators"`
	Range      domain.DateRange   `json:"range"`
	Version    uint64             `json:"version"`
	TakenAt    time.Time          `json:"taken_at"`
}

// IDs returns the active indicator ids in catalog order
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s.Indicators))
	for i, ind := range s.Indicators {
		ids[i] = ind.ID
	}
	return ids
}

// Labels returns the active indicator labels in catalog order
func (s Snapshot) Labels() []string {
	labels := make([]string, len(s.Indicators))
	for i, ind := range s.Indicators {
		labels[i] = ind.Label
	}
	return labels
}

// ActiveSet returns the active indicator ids as a set
func (s Snapshot) ActiveSet() map[string]bool {
	set := make(map[string]bool, len(s.Indicators))
	for _, ind := range s.Indicators {
		set[ind.ID] = true
	}
	return set
}

// Empty reports whether no indicator is active
func (s Snapshot) Empty() bool {
	return len(s.Indicators) == 0
}

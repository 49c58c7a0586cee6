package routing

import (
	"fmt"
	"sort"

	"github.com/aponysus/regone/request"
)

// RangeMap is the routing map of one collection: its partition key ranges ordered by
// lower bound.
type RangeMap struct {
	ranges []request.PartitionKeyRange
	byID   map[string]int
}

// NewRangeMap sorts ranges and rejects overlapping or duplicate ranges.
func NewRangeMap(ranges []request.PartitionKeyRange) (*RangeMap, error) {
	sorted := make([]request.PartitionKeyRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinInclusive < sorted[j].MinInclusive
	})

	m := &RangeMap{
		ranges: sorted,
		byID:   make(map[string]int, len(sorted)),
	}
	for i, r := range sorted {
		if _, dup := m.byID[r.ID]; dup {
			return nil, fmt.Errorf("regone: duplicate partition key range id %q", r.ID)
		}
		m.byID[r.ID] = i

		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if prev.MaxExclusive == "" || prev.MaxExclusive > r.MinInclusive {
			return nil, fmt.Errorf("regone: partition key range %s overlaps %s", r, prev)
		}
	}
	return m, nil
}

// Lookup returns the range containing the effective partition key.
func (m *RangeMap) Lookup(epk string) (request.PartitionKeyRange, bool) {
	if m == nil {
		return request.PartitionKeyRange{}, false
	}
	// First range whose lower bound is above epk; the candidate is the one before it.
	i := sort.Search(len(m.ranges), func(i int) bool {
		return m.ranges[i].MinInclusive > epk
	})
	if i == 0 {
		return request.PartitionKeyRange{}, false
	}
	r := m.ranges[i-1]
	if !r.Contains(epk) {
		return request.PartitionKeyRange{}, false
	}
	return r, true
}

// ByID returns the range with the given id.
func (m *RangeMap) ByID(id string) (request.PartitionKeyRange, bool) {
	if m == nil {
		return request.PartitionKeyRange{}, false
	}
	i, ok := m.byID[id]
	if !ok {
		return request.PartitionKeyRange{}, false
	}
	return m.ranges[i], true
}

func (m *RangeMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.ranges)
}

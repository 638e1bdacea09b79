package queues

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// QueueRef addresses a single queue of the logical device.
type QueueRef struct {
	Family uint32
	Index  uint32
}

// Request is the number of queues to create from one family.
type Request struct {
	Family     uint32
	Count      uint32
	Priorities []float32
}

// Layout describes which queues the logical device is created with and which
// of them serve each role. Roles may alias the same queue.
type Layout struct {
	Requests []Request

	Graphics QueueRef
	Compute  QueueRef
	Present  QueueRef
}

// Distinct returns the number of different queues used by the roles.
func (l Layout) Distinct() int {
	seen := map[QueueRef]struct{}{
		l.Graphics: {},
		l.Compute:  {},
		l.Present:  {},
	}
	return len(seen)
}

// Plan turns selected family indices into queue creation requests. When the
// compute role shares its family with graphics and the family has two or more
// queues, compute gets queue 1 of that family so culling and drawing can
// overlap. Otherwise roles in the same family share queue 0.
func Plan(indices FamilyIndices, families []FamilyProperties) (Layout, error) {
	if !indices.IsComplete() {
		return Layout{}, errors.New("queue family indices are not complete")
	}

	g, c, p := indices.Graphics.Get(), indices.Compute.Get(), indices.Present.Get()
	for _, idx := range []uint32{g, c, p} {
		if int(idx) >= len(families) {
			return Layout{}, errors.Newf("queue family %d does not exist", idx)
		}
	}

	layout := Layout{
		Graphics: QueueRef{Family: g},
		Compute:  QueueRef{Family: c},
		Present:  QueueRef{Family: p},
	}

	if c == g && families[g].QueueCount >= 2 {
		layout.Compute.Index = 1
	}

	counts := make(map[uint32]uint32)
	for _, ref := range []QueueRef{layout.Graphics, layout.Compute, layout.Present} {
		if ref.Index+1 > counts[ref.Family] {
			counts[ref.Family] = ref.Index + 1
		}
	}

	for family, count := range counts {
		priorities := make([]float32, count)
		for i := range priorities {
			priorities[i] = 1.0
		}
		layout.Requests = append(layout.Requests, Request{
			Family:     family,
			Count:      count,
			Priorities: priorities,
		})
	}

	sort.Slice(layout.Requests, func(i, j int) bool {
		return layout.Requests[i].Family < layout.Requests[j].Family
	})

	return layout, nil
}

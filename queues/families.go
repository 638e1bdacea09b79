// Package queues decides which Vulkan queue families and queues the renderer
// uses for graphics, compute and presentation.
//
// Selection works on plain data returned by an Enumerator so that it can be
// exercised without a GPU.
package queues

import (
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ironsmile/vulkan-forwardplus-go/optional"
)

var (
	// ErrNoGraphicsFamily is returned when the device has no graphics queue.
	ErrNoGraphicsFamily = errors.New("no queue family supports graphics")

	// ErrNoComputeFamily is returned when the device has no compute queue.
	ErrNoComputeFamily = errors.New("no queue family supports compute")

	// ErrNoPresentFamily is returned when no queue family can present to the
	// drawing surface.
	ErrNoPresentFamily = errors.New("no queue family supports presentation")
)

// FamilyProperties is the part of VkQueueFamilyProperties the selection cares
// about.
type FamilyProperties struct {
	Graphics   bool
	Compute    bool
	QueueCount uint32
}

// Enumerator gives access to the queue families of one physical device.
type Enumerator interface {
	// QueueFamilies returns the properties of every family in index order.
	QueueFamilies() []FamilyProperties

	// SupportsPresent reports whether family can present to the surface.
	SupportsPresent(family uint32) (bool, error)
}

// FamilyIndices holds the indexes of Vulkan queue families needed by the programs.
type FamilyIndices struct {

	// Graphics is the index of the graphics queue family.
	Graphics optional.Optional[uint32]

	// Compute is the index of the queue family used for light culling.
	Compute optional.Optional[uint32]

	// Present is the index of the queue family used for presenting to the drawing
	// surface.
	Present optional.Optional[uint32]
}

// IsComplete returns true if all families have been set.
func (f *FamilyIndices) IsComplete() bool {
	return f.Graphics.HasValue() && f.Compute.HasValue() && f.Present.HasValue()
}

// Unified returns true when one family serves all three roles.
func (f *FamilyIndices) Unified() bool {
	if !f.IsComplete() {
		return false
	}
	g := f.Graphics.Get()
	return f.Compute.Get() == g && f.Present.Get() == g
}

// SameGraphicsCompute returns true when graphics and compute work is
// submitted to the same family and no ownership transfer is needed.
func (f *FamilyIndices) SameGraphicsCompute() bool {
	return f.Graphics.HasValue() && f.Compute.HasValue() &&
		f.Graphics.Get() == f.Compute.Get()
}

// Select finds the queue families for a device.
//
// A family which can do graphics, compute and presentation at once is always
// preferred. Otherwise graphics goes to the first graphics family (one which
// can also compute wins), compute goes to the graphics family when possible or
// to the first compute-capable family, and presentation goes to the first
// family which supports it.
func Select(e Enumerator) (FamilyIndices, error) {
	var indices FamilyIndices

	families := e.QueueFamilies()
	present := make([]bool, len(families))

	for i, family := range families {
		if family.QueueCount == 0 {
			continue
		}

		ok, err := e.SupportsPresent(uint32(i))
		if err != nil {
			log.WithError(err).Warnf("querying surface support for queue family %d", i)
			continue
		}
		present[i] = ok

		if ok && family.Graphics && family.Compute {
			indices.Graphics.Set(uint32(i))
			indices.Compute.Set(uint32(i))
			indices.Present.Set(uint32(i))
			return indices, nil
		}
	}

	for i, family := range families {
		if family.QueueCount == 0 || !family.Graphics {
			continue
		}

		if !indices.Graphics.HasValue() || (family.Compute && !indices.Compute.HasValue()) {
			indices.Graphics.Set(uint32(i))
			if family.Compute {
				indices.Compute.Set(uint32(i))
			}
		}
	}

	if !indices.Compute.HasValue() {
		for i, family := range families {
			if family.QueueCount > 0 && family.Compute {
				indices.Compute.Set(uint32(i))
				break
			}
		}
	}

	for i, ok := range present {
		if ok {
			indices.Present.Set(uint32(i))
			break
		}
	}

	switch {
	case !indices.Graphics.HasValue():
		return indices, ErrNoGraphicsFamily
	case !indices.Compute.HasValue():
		return indices, ErrNoComputeFamily
	case !indices.Present.HasValue():
		return indices, ErrNoPresentFamily
	}

	return indices, nil
}

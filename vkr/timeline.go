package vkr

import (
	vk "github.com/vulkan-go/vulkan"
)

// Access is how a queue family uses a buffer.
type Access struct {
	Family uint32
	Stage  vk.PipelineStageFlags
	Mask   vk.AccessFlags
}

// graphicsUse is the access of the graphics queue to the light buffers: the
// fragment shader reads them and transfers refill the point lights.
func graphicsUse(family uint32) Access {
	return Access{
		Family: family,
		Stage: vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) |
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		Mask: vk.AccessFlags(vk.AccessShaderReadBit) |
			vk.AccessFlags(vk.AccessTransferWriteBit),
	}
}

// computeUse is the access of light culling to the light buffers.
func computeUse(family uint32) Access {
	return Access{
		Family: family,
		Stage:  vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		Mask: vk.AccessFlags(vk.AccessShaderReadBit) |
			vk.AccessFlags(vk.AccessShaderWriteBit),
	}
}

// Barrier is a set of buffer memory barriers sharing the same stages.
type Barrier struct {
	SrcStage vk.PipelineStageFlags
	DstStage vk.PipelineStageFlags
	Buffers  []vk.BufferMemoryBarrier
}

// Empty returns true when there is nothing to record.
func (b Barrier) Empty() bool {
	return len(b.Buffers) == 0
}

// Record adds the barrier to a command buffer.
func (b Barrier) Record(commandBuffer vk.CommandBuffer) {
	if b.Empty() {
		return
	}

	vk.CmdPipelineBarrier(
		commandBuffer,
		b.SrcStage, b.DstStage,
		0,
		0, nil,
		uint32(len(b.Buffers)), b.Buffers,
		0, nil,
	)
}

// Handoff moves a group of buffers from one access to another.
//
// When the two accesses belong to different queue families the move is an
// ownership transfer: Release has to be recorded on the queue giving the
// buffers up and Acquire on the queue receiving them. Within one family
// Release is empty and Acquire is a single ordinary barrier.
type Handoff struct {
	From    Access
	To      Access
	Buffers []vk.Buffer
}

// Transfer returns true when the handoff crosses queue families.
func (h Handoff) Transfer() bool {
	return h.From.Family != h.To.Family
}

// Release returns the barrier for the command buffer which last used the
// buffers.
func (h Handoff) Release() Barrier {
	if !h.Transfer() {
		return Barrier{}
	}

	return h.barrier(
		h.From.Stage,
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		h.From.Mask, 0,
	)
}

// Acquire returns the barrier for the command buffer which uses the buffers
// next.
func (h Handoff) Acquire() Barrier {
	if !h.Transfer() {
		return h.barrier(h.From.Stage, h.To.Stage, h.From.Mask, h.To.Mask)
	}

	return h.barrier(
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		h.To.Stage,
		0, h.To.Mask,
	)
}

func (h Handoff) barrier(
	srcStage, dstStage vk.PipelineStageFlags,
	srcAccess, dstAccess vk.AccessFlags,
) Barrier {
	srcFamily, dstFamily := uint32(vk.QueueFamilyIgnored), uint32(vk.QueueFamilyIgnored)
	if h.Transfer() {
		srcFamily, dstFamily = h.From.Family, h.To.Family
	}

	b := Barrier{
		SrcStage: srcStage,
		DstStage: dstStage,
		Buffers:  make([]vk.BufferMemoryBarrier, 0, len(h.Buffers)),
	}
	for _, buffer := range h.Buffers {
		b.Buffers = append(b.Buffers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			SrcQueueFamilyIndex: srcFamily,
			DstQueueFamilyIndex: dstFamily,
			Buffer:              buffer,
			Offset:              0,
			Size:                vk.DeviceSize(vk.WholeSize),
		})
	}

	return b
}

// Timeline remembers the last access of every buffer it has seen and turns
// every new use into a Handoff.
type Timeline struct {
	last map[vk.Buffer]Access
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{last: make(map[vk.Buffer]Access)}
}

// Track records a as the last access of buffers without creating a handoff.
func (t *Timeline) Track(a Access, buffers ...vk.Buffer) {
	for _, buffer := range buffers {
		t.last[buffer] = a
	}
}

// Use moves buffers to the access to. Buffers are expected to move as a group
// and the previous access is taken from the first one seen before. Buffers
// which were never tracked start in to.
func (t *Timeline) Use(to Access, buffers ...vk.Buffer) Handoff {
	from, found := to, false
	for _, buffer := range buffers {
		if a, ok := t.last[buffer]; ok && !found {
			from, found = a, true
		}
		t.last[buffer] = to
	}

	return Handoff{
		From:    from,
		To:      to,
		Buffers: append([]vk.Buffer(nil), buffers...),
	}
}

// Last returns the last access of buffer.
func (t *Timeline) Last(buffer vk.Buffer) (Access, bool) {
	a, ok := t.last[buffer]
	return a, ok
}

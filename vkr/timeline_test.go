package vkr

import (
	"testing"
	"unsafe"

	. "github.com/onsi/gomega"
	vk "github.com/vulkan-go/vulkan"
)

func fakeBuffer(n uintptr) vk.Buffer {
	return *(*vk.Buffer)(unsafe.Pointer(&n))
}

func TestHandoffAcrossFamilies(t *testing.T) {
	g := NewWithT(t)

	visibility, lights := fakeBuffer(1), fakeBuffer(2)
	h := Handoff{
		From:    graphicsUse(0),
		To:      computeUse(2),
		Buffers: []vk.Buffer{visibility, lights},
	}
	g.Expect(h.Transfer()).To(BeTrue())

	release := h.Release()
	g.Expect(release.Buffers).To(HaveLen(2))
	g.Expect(release.SrcStage).To(Equal(graphicsUse(0).Stage))
	g.Expect(release.DstStage).To(Equal(vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)))

	acquire := h.Acquire()
	g.Expect(acquire.Buffers).To(HaveLen(2))
	g.Expect(acquire.SrcStage).To(Equal(vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)))
	g.Expect(acquire.DstStage).To(Equal(vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)))

	for i, buffer := range []vk.Buffer{visibility, lights} {
		r, a := release.Buffers[i], acquire.Buffers[i]

		g.Expect(r.Buffer).To(Equal(buffer))
		g.Expect(a.Buffer).To(Equal(buffer))

		g.Expect(r.SrcQueueFamilyIndex).To(BeEquivalentTo(0))
		g.Expect(r.DstQueueFamilyIndex).To(BeEquivalentTo(2))
		g.Expect(a.SrcQueueFamilyIndex).To(Equal(r.SrcQueueFamilyIndex))
		g.Expect(a.DstQueueFamilyIndex).To(Equal(r.DstQueueFamilyIndex))

		g.Expect(r.SrcAccessMask).To(Equal(graphicsUse(0).Mask))
		g.Expect(r.DstAccessMask).To(BeZero())
		g.Expect(a.SrcAccessMask).To(BeZero())
		g.Expect(a.DstAccessMask).To(Equal(computeUse(2).Mask))
	}
}

func TestHandoffWithinFamily(t *testing.T) {
	g := NewWithT(t)

	h := Handoff{
		From:    computeUse(0),
		To:      graphicsUse(0),
		Buffers: []vk.Buffer{fakeBuffer(7)},
	}
	g.Expect(h.Transfer()).To(BeFalse())
	g.Expect(h.Release().Empty()).To(BeTrue())

	acquire := h.Acquire()
	g.Expect(acquire.Buffers).To(HaveLen(1))
	g.Expect(acquire.SrcStage).To(Equal(vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)))
	g.Expect(acquire.DstStage).To(Equal(graphicsUse(0).Stage))

	b := acquire.Buffers[0]
	g.Expect(b.SrcQueueFamilyIndex).To(BeEquivalentTo(vk.QueueFamilyIgnored))
	g.Expect(b.DstQueueFamilyIndex).To(BeEquivalentTo(vk.QueueFamilyIgnored))
	g.Expect(b.SrcAccessMask).To(Equal(computeUse(0).Mask))
	g.Expect(b.DstAccessMask).To(Equal(graphicsUse(0).Mask))
}

func TestTimelineRoundTrip(t *testing.T) {
	g := NewWithT(t)

	visibility, lights := fakeBuffer(1), fakeBuffer(2)

	tl := NewTimeline()
	tl.Track(graphicsUse(0), visibility, lights)

	toCompute := tl.Use(computeUse(1), visibility, lights)
	toGraphics := tl.Use(graphicsUse(0), visibility, lights)

	g.Expect(toCompute.From).To(Equal(graphicsUse(0)))
	g.Expect(toCompute.To).To(Equal(computeUse(1)))
	g.Expect(toGraphics.From).To(Equal(computeUse(1)))
	g.Expect(toGraphics.To).To(Equal(graphicsUse(0)))

	last, ok := tl.Last(lights)
	g.Expect(ok).To(BeTrue())
	g.Expect(last).To(Equal(graphicsUse(0)))
}

func TestTimelineUntrackedBuffer(t *testing.T) {
	g := NewWithT(t)

	tl := NewTimeline()
	h := tl.Use(computeUse(3), fakeBuffer(9))

	g.Expect(h.Transfer()).To(BeFalse())
	g.Expect(h.Release().Empty()).To(BeTrue())

	_, ok := tl.Last(fakeBuffer(10))
	g.Expect(ok).To(BeFalse())
}

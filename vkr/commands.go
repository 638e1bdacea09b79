package vkr

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/vulkan-forwardplus-go/lifetime"
	"github.com/ironsmile/vulkan-forwardplus-go/renderer"
)

// lightHandoffs returns the moves of the light buffers from the graphics
// queue to light culling and back within one frame.
func (b *Backend) lightHandoffs() (toCompute, toGraphics Handoff) {
	layout := b.ctx.layout
	buffers := []vk.Buffer{b.visibility.Handle(), b.lights.Handle()}

	timeline := NewTimeline()
	timeline.Track(graphicsUse(layout.Graphics.Family), buffers...)

	toCompute = timeline.Use(computeUse(layout.Compute.Family), buffers...)
	toGraphics = timeline.Use(graphicsUse(layout.Graphics.Family), buffers...)
	return toCompute, toGraphics
}

// allocateCommandBuffer allocates a primary command buffer from pool. The
// returned wrapper frees it back to the pool.
func (b *Backend) allocateCommandBuffer(
	pool *lifetime.Owned[vk.CommandPool],
) (*lifetime.Owned[vk.CommandBuffer], error) {
	device := b.ctx.device.Get()
	commandPool := pool.Get()

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	res := vk.AllocateCommandBuffers(device, &allocInfo, commandBuffers)
	if err := vk.Error(res); err != nil {
		return nil, errors.Wrap(err, "failed to allocate command buffer")
	}

	return lifetime.Track(b.ledger, "commandBuffer", commandBuffers[0], func(cb vk.CommandBuffer) {
		vk.FreeCommandBuffers(device, commandPool, 1, []vk.CommandBuffer{cb})
	}), nil
}

// record allocates a command buffer which may be resubmitted while pending and
// fills it with record.
func (b *Backend) record(
	pool *lifetime.Owned[vk.CommandPool],
	record func(vk.CommandBuffer) error,
) (*lifetime.Owned[vk.CommandBuffer], error) {
	owned, err := b.allocateCommandBuffer(pool)
	if err != nil {
		return nil, err
	}
	commandBuffer := owned.Get()

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit),
	}

	res := vk.BeginCommandBuffer(commandBuffer, &beginInfo)
	if err := vk.Error(res); err != nil {
		owned.Release()
		return nil, errors.Wrap(err, "cannot add begin command to the buffer")
	}

	if err := record(commandBuffer); err != nil {
		owned.Release()
		return nil, err
	}

	if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
		owned.Release()
		return nil, errors.Wrap(err, "recording commands to buffer failed")
	}

	return owned, nil
}

func (b *Backend) bindGeometry(commandBuffer vk.CommandBuffer) {
	vk.CmdSetViewport(commandBuffer, 0, 1, []vk.Viewport{b.viewport()})
	vk.CmdSetScissor(commandBuffer, 0, 1, []vk.Rect2D{b.scissor()})

	vertexBuffers := []vk.Buffer{b.vertices.Handle()}
	offsets := []vk.DeviceSize{0}
	vk.CmdBindVertexBuffers(commandBuffer, 0, 1, vertexBuffers, offsets)

	vk.CmdBindIndexBuffer(commandBuffer, b.indices.Handle(), 0, vk.IndexTypeUint32)
}

func (b *Backend) bindSets(
	commandBuffer vk.CommandBuffer,
	bindPoint vk.PipelineBindPoint,
	layout vk.PipelineLayout,
	order []SetLayout,
) {
	sets := make([]vk.DescriptorSet, 0, len(order))
	for _, set := range order {
		sets = append(sets, b.sets[set])
	}

	vk.CmdBindDescriptorSets(
		commandBuffer,
		bindPoint,
		layout,
		0,
		uint32(len(sets)),
		sets,
		0,
		nil,
	)
}

// RecordDepthPrePassCommands records the pass which writes scene depth for
// light culling. It ends by releasing the light buffers to the compute queue.
func (b *Backend) RecordDepthPrePassCommands() error {
	b.depthCommands.Release()
	b.depthCommands = nil

	toCompute, _ := b.lightHandoffs()

	owned, err := b.record(b.ctx.graphicsPool, func(commandBuffer vk.CommandBuffer) error {
		var clearValues [1]vk.ClearValue
		clearValues[0].SetDepthStencil(1, 0)

		renderPassInfo := vk.RenderPassBeginInfo{
			SType:           vk.StructureTypeRenderPassBeginInfo,
			RenderPass:      b.depthRenderPass.Get(),
			Framebuffer:     b.depthFramebuffer.Get(),
			RenderArea:      b.scissor(),
			ClearValueCount: uint32(len(clearValues)),
			PClearValues:    clearValues[:],
		}

		vk.CmdBeginRenderPass(commandBuffer, &renderPassInfo, vk.SubpassContentsInline)
		vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointGraphics, b.depthPipeline.Get())
		b.bindGeometry(commandBuffer)
		b.bindSets(commandBuffer, vk.PipelineBindPointGraphics, b.depthLayout.Get(), DepthSetOrder)
		vk.CmdDrawIndexed(commandBuffer, b.indexCount, 1, 0, 0, 0)
		vk.CmdEndRenderPass(commandBuffer)

		toCompute.Release().Record(commandBuffer)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "depth pre-pass")
	}

	b.depthCommands = owned
	return nil
}

// RecordLightCullingCommands records the compute dispatch with one work
// group per tile.
func (b *Backend) RecordLightCullingCommands(pc renderer.PushConstants) error {
	b.cullingCommands.Release()
	b.cullingCommands = nil

	toCompute, toGraphics := b.lightHandoffs()
	tilesX, tilesY := pc.TileNums[0], pc.TileNums[1]

	owned, err := b.record(b.ctx.computePool, func(commandBuffer vk.CommandBuffer) error {
		toCompute.Acquire().Record(commandBuffer)

		vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointCompute, b.cullingPipeline.Get())
		b.bindSets(commandBuffer, vk.PipelineBindPointCompute, b.cullingLayout.Get(), LightCullingSetOrder)
		vk.CmdPushConstants(
			commandBuffer,
			b.cullingLayout.Get(),
			vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			0,
			renderer.PushConstantsSize,
			unsafe.Pointer(&pc),
		)
		vk.CmdDispatch(commandBuffer, uint32(tilesX), uint32(tilesY), 1)

		toGraphics.Release().Record(commandBuffer)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "light culling")
	}

	b.cullingCommands = owned
	return nil
}

// RecordGraphicsCommands records the main pass for every swapchain image.
func (b *Backend) RecordGraphicsCommands(pc renderer.PushConstants) error {
	b.releaseGraphicsCommands()

	_, toGraphics := b.lightHandoffs()

	for i, framebuffer := range b.framebuffers {
		owned, err := b.record(b.ctx.graphicsPool, func(commandBuffer vk.CommandBuffer) error {
			toGraphics.Acquire().Record(commandBuffer)

			var clearValues [2]vk.ClearValue
			clearValues[0].SetColor([]float32{0, 0, 0, 1})
			clearValues[1].SetDepthStencil(1, 0)

			renderPassInfo := vk.RenderPassBeginInfo{
				SType:           vk.StructureTypeRenderPassBeginInfo,
				RenderPass:      b.mainRenderPass.Get(),
				Framebuffer:     framebuffer.Get(),
				RenderArea:      b.scissor(),
				ClearValueCount: uint32(len(clearValues)),
				PClearValues:    clearValues[:],
			}

			vk.CmdBeginRenderPass(commandBuffer, &renderPassInfo, vk.SubpassContentsInline)
			vk.CmdPushConstants(
				commandBuffer,
				b.mainLayout.Get(),
				vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
				0,
				renderer.PushConstantsSize,
				unsafe.Pointer(&pc),
			)
			vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointGraphics, b.mainPipeline.Get())
			b.bindGeometry(commandBuffer)
			b.bindSets(commandBuffer, vk.PipelineBindPointGraphics, b.mainLayout.Get(), MainSetOrder)
			vk.CmdDrawIndexed(commandBuffer, b.indexCount, 1, 0, 0, 0)
			vk.CmdEndRenderPass(commandBuffer)

			// The next depth pre-pass starts from an attachment layout.
			return recordTransition(
				commandBuffer,
				b.prePassDepth.Handle(),
				b.depthFormat,
				vk.ImageLayoutShaderReadOnlyOptimal,
				vk.ImageLayoutDepthStencilAttachmentOptimal,
			)
		})
		if err != nil {
			return errors.Wrapf(err, "main pass for image %d", i)
		}

		b.graphicsCommands = append(b.graphicsCommands, owned)
	}

	return nil
}

func (b *Backend) releaseGraphicsCommands() {
	for _, cb := range b.graphicsCommands {
		cb.Release()
	}
	b.graphicsCommands = nil
}

package vkr

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/vulkan-forwardplus-go/lifetime"
)

// Buffer is a buffer with its own device memory.
type Buffer struct {
	handle *lifetime.Owned[vk.Buffer]
	memory *lifetime.Owned[vk.DeviceMemory]
	size   vk.DeviceSize
}

// Handle returns the Vulkan buffer. A nil buffer returns the null handle.
func (b *Buffer) Handle() vk.Buffer {
	if b == nil {
		return vk.NullBuffer
	}
	return b.handle.Get()
}

// Size returns the requested size of the buffer in bytes.
func (b *Buffer) Size() vk.DeviceSize {
	if b == nil {
		return 0
	}
	return b.size
}

// Release destroys the buffer and frees its memory.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	b.handle.Release()
	b.memory.Release()
}

// Image is an image with its own device memory and a view covering it.
type Image struct {
	handle *lifetime.Owned[vk.Image]
	memory *lifetime.Owned[vk.DeviceMemory]
	view   *lifetime.Owned[vk.ImageView]
	format vk.Format
}

// Handle returns the Vulkan image.
func (i *Image) Handle() vk.Image {
	if i == nil {
		return vk.NullImage
	}
	return i.handle.Get()
}

// View returns the view of the image.
func (i *Image) View() vk.ImageView {
	if i == nil {
		return vk.NullImageView
	}
	return i.view.Get()
}

// Release destroys the view, the image and frees its memory.
func (i *Image) Release() {
	if i == nil {
		return
	}
	i.view.Release()
	i.handle.Release()
	i.memory.Release()
}

// uniqueFamilies returns the distinct entries of families in order.
func uniqueFamilies(families ...uint32) []uint32 {
	var out []uint32
	for _, f := range families {
		found := false
		for _, o := range out {
			if o == f {
				found = true
				break
			}
		}
		if !found {
			out = append(out, f)
		}
	}
	return out
}

// sharing returns the sharing mode for a resource used by the given queue
// families.
func sharing(families []uint32) (vk.SharingMode, []uint32) {
	families = uniqueFamilies(families...)
	if len(families) > 1 {
		return vk.SharingModeConcurrent, families
	}
	return vk.SharingModeExclusive, nil
}

// createBuffer creates a buffer. Passing more than one distinct queue family
// makes it concurrently shared between them.
func (c *Context) createBuffer(
	size vk.DeviceSize,
	usage vk.BufferUsageFlags,
	properties vk.MemoryPropertyFlags,
	families ...uint32,
) (*Buffer, error) {
	device := c.device.Get()
	mode, indices := sharing(families)

	bufferInfo := vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		Size:                  size,
		Usage:                 usage,
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(indices)),
		PQueueFamilyIndices:   indices,
	}

	var buffer vk.Buffer
	res := vk.CreateBuffer(device, &bufferInfo, nil, &buffer)
	if err := vk.Error(res); err != nil {
		return nil, errors.Wrap(err, "failed to create buffer")
	}
	b := &Buffer{
		handle: lifetime.Track(c.ledger, "buffer", buffer, func(h vk.Buffer) {
			vk.DestroyBuffer(device, h, nil)
		}),
		size: size,
	}

	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer, &memRequirements)
	memRequirements.Deref()

	memory, err := c.allocate(memRequirements, properties)
	if err != nil {
		b.Release()
		return nil, errors.Wrap(err, "buffer memory")
	}
	b.memory = memory

	res = vk.BindBufferMemory(device, buffer, memory.Get(), 0)
	if err := vk.Error(res); err != nil {
		b.Release()
		return nil, errors.Wrap(err, "failed to bind buffer memory")
	}

	return b, nil
}

func (c *Context) allocate(
	requirements vk.MemoryRequirements,
	properties vk.MemoryPropertyFlags,
) (*lifetime.Owned[vk.DeviceMemory], error) {
	memTypeIndex, err := c.findMemoryType(requirements.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memTypeIndex,
	}

	device := c.device.Get()

	var memory vk.DeviceMemory
	res := vk.AllocateMemory(device, &allocInfo, nil, &memory)
	if err := vk.Error(res); err != nil {
		return nil, errors.Wrap(err, "failed to allocate memory")
	}

	return lifetime.Track(c.ledger, "memory", memory, func(m vk.DeviceMemory) {
		vk.FreeMemory(device, m, nil)
	}), nil
}

func (c *Context) findMemoryType(
	typeFilter uint32,
	properties vk.MemoryPropertyFlags,
) (uint32, error) {
	for i := uint32(0); i < c.memProperties.MemoryTypeCount; i++ {
		memType := c.memProperties.MemoryTypes[i]
		memType.Deref()

		if typeFilter&(1<<i) == 0 {
			continue
		}

		if memType.PropertyFlags&properties != properties {
			continue
		}

		return i, nil
	}

	return 0, errors.Wrapf(ErrNoMemoryType, "properties %#x", properties)
}

// hostVisible is the memory of staging buffers.
var hostVisible = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) |
	vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)

// createStagingBuffer creates a host visible buffer for copies to the device.
func (c *Context) createStagingBuffer(size vk.DeviceSize) (*Buffer, error) {
	return c.createBuffer(
		size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		hostVisible,
	)
}

// writeBuffer copies data into a host visible buffer.
func (c *Context) writeBuffer(b *Buffer, data []byte) error {
	if vk.DeviceSize(len(data)) > b.size {
		return errors.Newf("writing %d bytes into a buffer of %d", len(data), b.size)
	}

	device := c.device.Get()

	var pData unsafe.Pointer
	res := vk.MapMemory(device, b.memory.Get(), 0, vk.DeviceSize(len(data)), 0, &pData)
	if err := vk.Error(res); err != nil {
		return errors.Wrap(err, "failed to map memory")
	}
	vk.Memcopy(pData, data)
	vk.UnmapMemory(device, b.memory.Get())

	return nil
}

// uploadBuffer copies data into the start of a device local buffer through
// staging. It returns once the copy has finished.
func (c *Context) uploadBuffer(staging, dst *Buffer, data []byte) error {
	if err := c.writeBuffer(staging, data); err != nil {
		return errors.Wrap(err, "filling the staging buffer")
	}

	if err := c.copyBuffer(staging.Handle(), dst.Handle(), vk.DeviceSize(len(data))); err != nil {
		return errors.Wrap(err, "copying the staging buffer")
	}

	return nil
}

// createDeviceLocalBuffer creates a buffer and fills it with data through a
// temporary staging buffer.
func (c *Context) createDeviceLocalBuffer(
	data []byte,
	usage vk.BufferUsageFlags,
) (*Buffer, error) {
	size := vk.DeviceSize(len(data))

	staging, err := c.createStagingBuffer(size)
	if err != nil {
		return nil, errors.Wrap(err, "creating the staging buffer")
	}
	defer staging.Release()

	buffer, err := c.createBuffer(
		size,
		vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)|usage,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	)
	if err != nil {
		return nil, err
	}

	if err := c.uploadBuffer(staging, buffer, data); err != nil {
		buffer.Release()
		return nil, err
	}

	return buffer, nil
}

func (c *Context) copyBuffer(
	srcBuffer vk.Buffer,
	dstBuffer vk.Buffer,
	size vk.DeviceSize,
) error {
	return c.singleTimeCommands(func(commandBuffer vk.CommandBuffer) error {
		copyRegion := vk.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		}

		vk.CmdCopyBuffer(commandBuffer, srcBuffer, dstBuffer, 1, []vk.BufferCopy{copyRegion})
		return nil
	})
}

// singleTimeCommands records commands with record, submits them to the
// graphics queue and waits for the queue to become idle.
func (c *Context) singleTimeCommands(record func(vk.CommandBuffer) error) error {
	device := c.device.Get()
	pool := c.graphicsPool.Get()

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        pool,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	res := vk.AllocateCommandBuffers(device, &allocInfo, commandBuffers)
	if err := vk.Error(res); err != nil {
		return errors.Wrap(err, "failed to allocate command buffer")
	}
	defer vk.FreeCommandBuffers(device, pool, 1, commandBuffers)

	commandBuffer := commandBuffers[0]

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vk.Error(vk.BeginCommandBuffer(commandBuffer, &beginInfo)); err != nil {
		return errors.Wrap(err, "failed to begin command buffer")
	}

	if err := record(commandBuffer); err != nil {
		return err
	}

	if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
		return errors.Wrap(err, "failed to end command buffer")
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    commandBuffers,
	}

	res = vk.QueueSubmit(c.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)
	if err := vk.Error(res); err != nil {
		return errors.Wrap(err, "failed to submit to graphics queue")
	}

	if err := vk.Error(vk.QueueWaitIdle(c.graphicsQueue)); err != nil {
		return errors.Wrap(err, "failed to wait on graphics queue idle")
	}

	return nil
}

// createImage creates a 2D image with a view. Passing more than one distinct
// queue family makes it concurrently shared between them.
func (c *Context) createImage(
	width, height uint32,
	format vk.Format,
	usage vk.ImageUsageFlags,
	aspect vk.ImageAspectFlags,
	families ...uint32,
) (*Image, error) {
	device := c.device.Get()
	mode, indices := sharing(families)

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:             1,
		ArrayLayers:           1,
		Format:                format,
		Tiling:                vk.ImageTilingOptimal,
		InitialLayout:         vk.ImageLayoutUndefined,
		Usage:                 usage,
		SharingMode:           mode,
		QueueFamilyIndexCount: uint32(len(indices)),
		PQueueFamilyIndices:   indices,
		Samples:               vk.SampleCount1Bit,
	}

	var image vk.Image
	res := vk.CreateImage(device, &imageInfo, nil, &image)
	if err := vk.Error(res); err != nil {
		return nil, errors.Wrap(err, "failed to create an image")
	}
	img := &Image{
		handle: lifetime.Track(c.ledger, "image", image, func(h vk.Image) {
			vk.DestroyImage(device, h, nil)
		}),
		format: format,
	}

	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, image, &memRequirements)
	memRequirements.Deref()

	memory, err := c.allocate(
		memRequirements,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	)
	if err != nil {
		img.Release()
		return nil, errors.Wrap(err, "image memory")
	}
	img.memory = memory

	res = vk.BindImageMemory(device, image, memory.Get(), 0)
	if err := vk.Error(res); err != nil {
		img.Release()
		return nil, errors.Wrap(err, "failed to bind image memory")
	}

	view, err := c.createImageView(image, format, aspect)
	if err != nil {
		img.Release()
		return nil, err
	}
	img.view = view

	return img, nil
}

func (c *Context) createImageView(
	image vk.Image,
	format vk.Format,
	aspectFlags vk.ImageAspectFlags,
) (*lifetime.Owned[vk.ImageView], error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFlags,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	device := c.device.Get()

	var imageView vk.ImageView
	res := vk.CreateImageView(device, &createInfo, nil, &imageView)
	if err := vk.Error(res); err != nil {
		return nil, errors.Wrap(err, "failed to create image view")
	}

	return lifetime.Track(c.ledger, "imageView", imageView, func(v vk.ImageView) {
		vk.DestroyImageView(device, v, nil)
	}), nil
}

// recordTransition records a layout change of image into commandBuffer.
func recordTransition(
	commandBuffer vk.CommandBuffer,
	image vk.Image,
	format vk.Format,
	oldLayout vk.ImageLayout,
	newLayout vk.ImageLayout,
) error {
	t, err := transitionFor(oldLayout, newLayout)
	if err != nil {
		return err
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectMask(format, newLayout),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		SrcAccessMask: t.srcAccess,
		DstAccessMask: t.dstAccess,
	}

	vk.CmdPipelineBarrier(
		commandBuffer,
		t.srcStage, t.dstStage,
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{barrier},
	)

	return nil
}

// transitionImageLayout changes the layout of image and waits for it.
func (c *Context) transitionImageLayout(
	image vk.Image,
	format vk.Format,
	oldLayout vk.ImageLayout,
	newLayout vk.ImageLayout,
) error {
	return c.singleTimeCommands(func(commandBuffer vk.CommandBuffer) error {
		return recordTransition(commandBuffer, image, format, oldLayout, newLayout)
	})
}

func (c *Context) copyBufferToImage(
	buffer vk.Buffer,
	image vk.Image,
	width, height uint32,
) error {
	return c.singleTimeCommands(func(commandBuffer vk.CommandBuffer) error {
		region := vk.BufferImageCopy{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,

			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},

			ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: vk.Extent3D{
				Width:  width,
				Height: height,
				Depth:  1,
			},
		}

		vk.CmdCopyBufferToImage(
			commandBuffer,
			buffer,
			image,
			vk.ImageLayoutTransferDstOptimal,
			1,
			[]vk.BufferImageCopy{region},
		)
		return nil
	})
}

// createTextureImage uploads RGBA pixels into a sampled image.
func (c *Context) createTextureImage(
	width, height uint32,
	pixels []byte,
	format vk.Format,
) (*Image, error) {
	staging, err := c.createStagingBuffer(vk.DeviceSize(len(pixels)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create texture staging buffer")
	}
	defer staging.Release()

	if err := c.writeBuffer(staging, pixels); err != nil {
		return nil, err
	}

	img, err := c.createImage(
		width, height,
		format,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)|
			vk.ImageUsageFlags(vk.ImageUsageSampledBit),
		vk.ImageAspectFlags(vk.ImageAspectColorBit),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create texture image")
	}

	err = c.transitionImageLayout(
		img.Handle(), format,
		vk.ImageLayoutUndefined,
		vk.ImageLayoutTransferDstOptimal,
	)
	if err != nil {
		img.Release()
		return nil, errors.Wrap(err, "transition image layout")
	}

	if err := c.copyBufferToImage(staging.Handle(), img.Handle(), width, height); err != nil {
		img.Release()
		return nil, errors.Wrap(err, "copying buffer to image")
	}

	err = c.transitionImageLayout(
		img.Handle(), format,
		vk.ImageLayoutTransferDstOptimal,
		vk.ImageLayoutShaderReadOnlyOptimal,
	)
	if err != nil {
		img.Release()
		return nil, errors.Wrap(err, "transitioning to read only optimal layout")
	}

	return img, nil
}

func (c *Context) findSupportedFormat(
	candidates []vk.Format,
	tiling vk.ImageTiling,
	features vk.FormatFeatureFlags,
) (vk.Format, error) {
	for _, format := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(c.physicalDevice, format, &props)
		props.Deref()

		if tiling == vk.ImageTilingLinear &&
			(props.LinearTilingFeatures&features) == features {
			return format, nil
		}

		if tiling == vk.ImageTilingOptimal &&
			(props.OptimalTilingFeatures&features) == features {
			return format, nil
		}
	}

	return 0, ErrNoFormat
}

// findDepthFormat returns a depth format which can be both rendered to and
// sampled.
func (c *Context) findDepthFormat() (vk.Format, error) {
	format, err := c.findSupportedFormat(
		depthFormatCandidates,
		vk.ImageTilingOptimal,
		vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)|
			vk.FormatFeatureFlags(vk.FormatFeatureSampledImageBit),
	)
	if err != nil {
		return 0, errors.Wrap(err, "depth")
	}
	return format, nil
}

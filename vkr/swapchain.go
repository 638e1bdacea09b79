package vkr

import (
	"cmp"
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/vulkan-forwardplus-go/lifetime"
	"github.com/ironsmile/vulkan-forwardplus-go/renderer"
)

type swapchainSupportDetails struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func querySwapchainSupport(
	device vk.PhysicalDevice,
	surface vk.Surface,
) (swapchainSupportDetails, error) {
	details := swapchainSupportDetails{}

	var capabilities vk.SurfaceCapabilities
	res := vk.GetPhysicalDeviceSurfaceCapabilities(device, surface, &capabilities)
	if err := vk.Error(res); err != nil {
		return details, errors.Wrap(err, "failed to query device surface capabilities")
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	details.capabilities = capabilities

	var formatCount uint32
	res = vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, nil)
	if err := vk.Error(res); err != nil {
		return details, errors.Wrap(err, "failed to query device surface formats")
	}

	if formatCount != 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		res = vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, formats)
		if err := vk.Error(res); err != nil {
			return details, errors.Wrap(err, "failed to read device surface formats")
		}
		for _, format := range formats {
			format.Deref()
			details.formats = append(details.formats, format)
		}
	}

	var presentModeCount uint32
	res = vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &presentModeCount, nil)
	if err := vk.Error(res); err != nil {
		return details, errors.Wrap(err, "failed to query device surface present modes")
	}

	if presentModeCount != 0 {
		presentModes := make([]vk.PresentMode, presentModeCount)
		res = vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &presentModeCount, presentModes)
		if err := vk.Error(res); err != nil {
			return details, errors.Wrap(err, "failed to read device surface present modes")
		}
		details.presentModes = presentModes
	}

	return details, nil
}

func chooseSwapSurfaceFormat(availableFormats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == vk.FormatB8g8r8a8Unorm &&
			format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

func chooseSwapPresentMode(available []vk.PresentMode) vk.PresentMode {
	for _, mode := range available {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}

	return vk.PresentModeFifo
}

// chooseSwapExtent returns the extent the surface dictates or, when the
// surface lets the application decide, the requested extent clamped to what
// the surface supports.
func chooseSwapExtent(capabilities vk.SurfaceCapabilities, requested renderer.Extent) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}

	return vk.Extent2D{
		Width: clamp(
			requested.Width,
			capabilities.MinImageExtent.Width,
			capabilities.MaxImageExtent.Width,
		),
		Height: clamp(
			requested.Height,
			capabilities.MinImageExtent.Height,
			capabilities.MaxImageExtent.Height,
		),
	}
}

func chooseImageCount(capabilities vk.SurfaceCapabilities) uint32 {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

func clamp[T cmp.Ordered](val, min, max T) T {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// releaseSwapchainTargets destroys everything created from the swapchain
// images. The swapchain itself is kept so it can be handed to its successor.
func (b *Backend) releaseSwapchainTargets() {
	b.releaseGraphicsCommands()

	for _, fb := range b.framebuffers {
		fb.Release()
	}
	b.framebuffers = nil

	for _, view := range b.imageViews {
		view.Release()
	}
	b.imageViews = nil
	b.swapchainImages = nil
}

// CreateSwapchain creates a swapchain for the requested extent. The previous
// swapchain is passed as the predecessor and destroyed afterwards.
func (b *Backend) CreateSwapchain(requested renderer.Extent) (renderer.Extent, error) {
	c := b.ctx
	device := c.device.Get()

	support, err := querySwapchainSupport(c.physicalDevice, c.surface.Get())
	if err != nil {
		return renderer.Extent{}, err
	}

	surfaceFormat := chooseSwapSurfaceFormat(support.formats)
	presentMode := chooseSwapPresentMode(support.presentModes)
	extent := chooseSwapExtent(support.capabilities, requested)

	b.releaseSwapchainTargets()
	old := b.swapchain.Take()
	defer old.Release()

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          c.surface.Get(),
		MinImageCount:    chooseImageCount(support.capabilities),
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageFormat:      surfaceFormat.Format,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old.Get(),
	}

	mode, families := sharing([]uint32{c.layout.Graphics.Family, c.layout.Present.Family})
	createInfo.ImageSharingMode = mode
	createInfo.QueueFamilyIndexCount = uint32(len(families))
	createInfo.PQueueFamilyIndices = families

	var swapchain vk.Swapchain
	res := vk.CreateSwapchain(device, &createInfo, nil, &swapchain)
	if err := vk.Error(res); err != nil {
		return renderer.Extent{}, errors.Wrap(err, "failed to create swap chain")
	}
	b.swapchain = lifetime.Track(b.ledger, "swapchain", swapchain, func(s vk.Swapchain) {
		vk.DestroySwapchain(device, s, nil)
	})

	var imagesCount uint32
	res = vk.GetSwapchainImages(device, swapchain, &imagesCount, nil)
	if err := vk.Error(res); err != nil {
		return renderer.Extent{}, errors.Wrap(err, "failed to get swap chain image count")
	}

	images := make([]vk.Image, imagesCount)
	res = vk.GetSwapchainImages(device, swapchain, &imagesCount, images)
	if err := vk.Error(res); err != nil {
		return renderer.Extent{}, errors.Wrap(err, "failed to get swap chain images")
	}

	b.swapchainImages = images
	b.swapchainFormat = surfaceFormat.Format
	b.extent = extent

	b.logger.WithField("images", imagesCount).
		WithField("presentMode", presentMode).
		Debug("swapchain created")

	return renderer.Extent{Width: extent.Width, Height: extent.Height}, nil
}

// CreateImageViews creates a view for every swapchain image.
func (b *Backend) CreateImageViews() error {
	for _, view := range b.imageViews {
		view.Release()
	}
	b.imageViews = make([]*lifetime.Owned[vk.ImageView], 0, len(b.swapchainImages))

	for i, swapchainImage := range b.swapchainImages {
		imageView, err := b.ctx.createImageView(
			swapchainImage,
			b.swapchainFormat,
			vk.ImageAspectFlags(vk.ImageAspectColorBit),
		)
		if err != nil {
			return errors.Wrapf(err, "failed to create image view %d", i)
		}

		b.imageViews = append(b.imageViews, imageView)
	}

	return nil
}

// CreateDepthResources creates the depth buffer of the main pass and the
// depth image written by the pre-pass. The latter is sampled by light
// culling on the compute queue so it is shared with the compute family.
func (b *Backend) CreateDepthResources() error {
	c := b.ctx

	b.depthImage.Release()
	b.prePassDepth.Release()
	b.depthImage, b.prePassDepth = nil, nil

	depthFormat, err := c.findDepthFormat()
	if err != nil {
		return errors.Wrap(err, "could not find suitable depth image format")
	}
	b.depthFormat = depthFormat

	// Views used for sampling must name a single aspect.
	sampledAspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)

	b.depthImage, err = c.createImage(
		b.extent.Width, b.extent.Height,
		depthFormat,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		sampledAspect,
	)
	if err != nil {
		return errors.Wrap(err, "could not create depth image")
	}

	b.prePassDepth, err = c.createImage(
		b.extent.Width, b.extent.Height,
		depthFormat,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)|
			vk.ImageUsageFlags(vk.ImageUsageSampledBit),
		sampledAspect,
		c.layout.Graphics.Family, c.layout.Compute.Family,
	)
	if err != nil {
		return errors.Wrap(err, "could not create pre-pass depth image")
	}

	for _, img := range []*Image{b.depthImage, b.prePassDepth} {
		err := c.transitionImageLayout(
			img.Handle(), depthFormat,
			vk.ImageLayoutUndefined,
			vk.ImageLayoutDepthStencilAttachmentOptimal,
		)
		if err != nil {
			return errors.Wrap(err, "transitioning depth image")
		}
	}

	return nil
}

// CreateFramebuffers creates one framebuffer per swapchain image for the main
// pass and one for the depth pre-pass.
func (b *Backend) CreateFramebuffers() error {
	for _, fb := range b.framebuffers {
		fb.Release()
	}
	b.framebuffers = make([]*lifetime.Owned[vk.Framebuffer], 0, len(b.imageViews))
	b.depthFramebuffer.Release()

	for i, view := range b.imageViews {
		fb, err := b.createFramebuffer(
			b.mainRenderPass.Get(),
			[]vk.ImageView{view.Get(), b.depthImage.View()},
		)
		if err != nil {
			return errors.Wrapf(err, "failed to create frame buffer %d", i)
		}
		b.framebuffers = append(b.framebuffers, fb)
	}

	fb, err := b.createFramebuffer(
		b.depthRenderPass.Get(),
		[]vk.ImageView{b.prePassDepth.View()},
	)
	if err != nil {
		return errors.Wrap(err, "failed to create depth pre-pass frame buffer")
	}
	b.depthFramebuffer = fb

	return nil
}

func (b *Backend) createFramebuffer(
	renderPass vk.RenderPass,
	attachments []vk.ImageView,
) (*lifetime.Owned[vk.Framebuffer], error) {
	device := b.ctx.device.Get()

	frameBufferInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           b.extent.Width,
		Height:          b.extent.Height,
		Layers:          1,
	}

	var frameBuffer vk.Framebuffer
	res := vk.CreateFramebuffer(device, &frameBufferInfo, nil, &frameBuffer)
	if err := vk.Error(res); err != nil {
		return nil, err
	}

	return lifetime.Track(b.ledger, "framebuffer", frameBuffer, func(f vk.Framebuffer) {
		vk.DestroyFramebuffer(device, f, nil)
	}), nil
}

package vkr

import (
	"math"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/vulkan-forwardplus-go/camera"
	"github.com/ironsmile/vulkan-forwardplus-go/lifetime"
	"github.com/ironsmile/vulkan-forwardplus-go/lighting"
	"github.com/ironsmile/vulkan-forwardplus-go/models"
	"github.com/ironsmile/vulkan-forwardplus-go/renderer"
	"github.com/ironsmile/vulkan-forwardplus-go/shaders"
	"github.com/ironsmile/vulkan-forwardplus-go/textures"
	"github.com/ironsmile/vulkan-forwardplus-go/unsafer"
)

var _ renderer.Backend = (*Backend)(nil)

// Assets is the scene data uploaded once when the backend is created.
type Assets struct {
	Mesh   models.Mesh
	Albedo textures.Image
	Normal textures.Image

	// Shaders maps every name in shaders.All to its SPIR-V bytecode.
	Shaders map[string][]byte
}

// Options configures New.
type Options struct {
	AppName    string
	Validation bool

	// Ledger counts the created Vulkan objects. A new one is used when nil.
	Ledger *lifetime.Ledger
	Logger log.FieldLogger
}

// Backend is the Vulkan implementation of renderer.Backend.
type Backend struct {
	ctx    *Context
	ledger *lifetime.Ledger
	logger log.FieldLogger

	// static holds everything which lives as long as the backend.
	static  lifetime.Stack
	shaders map[string][]byte
	closed  bool

	swapchain       *lifetime.Owned[vk.Swapchain]
	swapchainImages []vk.Image
	swapchainFormat vk.Format
	extent          vk.Extent2D
	imageViews      []*lifetime.Owned[vk.ImageView]

	mainRenderPass   *lifetime.Owned[vk.RenderPass]
	depthRenderPass  *lifetime.Owned[vk.RenderPass]
	framebuffers     []*lifetime.Owned[vk.Framebuffer]
	depthFramebuffer *lifetime.Owned[vk.Framebuffer]

	depthFormat  vk.Format
	depthImage   *Image
	prePassDepth *Image

	setLayouts     [setLayoutCount]*lifetime.Owned[vk.DescriptorSetLayout]
	descriptorPool *lifetime.Owned[vk.DescriptorPool]
	sets           [setLayoutCount]vk.DescriptorSet

	mainLayout      *lifetime.Owned[vk.PipelineLayout]
	depthLayout     *lifetime.Owned[vk.PipelineLayout]
	cullingLayout   *lifetime.Owned[vk.PipelineLayout]
	mainPipeline    *lifetime.Owned[vk.Pipeline]
	depthPipeline   *lifetime.Owned[vk.Pipeline]
	cullingPipeline *lifetime.Owned[vk.Pipeline]

	textureSampler *lifetime.Owned[vk.Sampler]
	depthSampler   *lifetime.Owned[vk.Sampler]
	albedo         *Image
	normalMap      *Image

	vertices   *Buffer
	indices    *Buffer
	indexCount uint32

	objectUniforms *Buffer
	cameraUniforms *Buffer
	cameraStaging  *Buffer
	lights         *Buffer
	lightsStaging  *Buffer
	lightScratch   []byte
	visibility     *Buffer

	depthCommands    *lifetime.Owned[vk.CommandBuffer]
	cullingCommands  *lifetime.Owned[vk.CommandBuffer]
	graphicsCommands []*lifetime.Owned[vk.CommandBuffer]

	imageAvailable       *lifetime.Owned[vk.Semaphore]
	depthPrePassFinished *lifetime.Owned[vk.Semaphore]
	lightCullingFinished *lifetime.Owned[vk.Semaphore]
	renderFinished       *lifetime.Owned[vk.Semaphore]
	inFlight             *lifetime.Owned[vk.Fence]
}

// New creates the Vulkan context for window and uploads assets. The swapchain
// and everything depending on it are created later by the renderer.
func New(window Window, assets Assets, opts Options) (*Backend, error) {
	if assets.Mesh.Empty() {
		return nil, errors.New("the scene mesh has no triangles")
	}
	for _, name := range shaders.All {
		if _, ok := assets.Shaders[name]; !ok {
			return nil, errors.Newf("missing bytecode for shader %s", name)
		}
	}

	b := &Backend{
		ledger:  opts.Ledger,
		logger:  opts.Logger,
		shaders: assets.Shaders,
	}
	if b.ledger == nil {
		b.ledger = lifetime.NewLedger()
	}
	if b.logger == nil {
		b.logger = log.StandardLogger()
	}

	ctx, err := NewContext(window, ContextOptions{
		AppName:    opts.AppName,
		Validation: opts.Validation,
		Ledger:     b.ledger,
		Logger:     b.logger,
	})
	if err != nil {
		return nil, err
	}
	b.ctx = ctx

	if err := b.init(assets); err != nil {
		b.Close()
		return nil, err
	}

	b.logger.WithFields(log.Fields{
		"device":          ctx.DeviceName(),
		"separateCompute": ctx.SeparateComputeFamily(),
		"vertices":        len(assets.Mesh.Vertices),
		"indices":         len(assets.Mesh.Indices),
	}).Info("vulkan backend ready")

	return b, nil
}

func (b *Backend) init(assets Assets) error {
	if err := b.createDescriptorSetLayouts(); err != nil {
		return errors.Wrap(err, "createDescriptorSetLayouts")
	}

	if err := b.createPipelineLayouts(); err != nil {
		return errors.Wrap(err, "createPipelineLayouts")
	}

	if err := b.createDescriptorPool(); err != nil {
		return errors.Wrap(err, "createDescriptorPool")
	}

	if err := b.createDescriptorSets(); err != nil {
		return errors.Wrap(err, "createDescriptorSets")
	}

	if err := b.createSamplers(); err != nil {
		return errors.Wrap(err, "createSamplers")
	}

	if err := b.createTextures(assets.Albedo, assets.Normal); err != nil {
		return errors.Wrap(err, "createTextures")
	}

	if err := b.createGeometry(assets.Mesh); err != nil {
		return errors.Wrap(err, "createGeometry")
	}

	if err := b.createObjectUniforms(); err != nil {
		return errors.Wrap(err, "createObjectUniforms")
	}

	if err := b.createCameraUniforms(); err != nil {
		return errors.Wrap(err, "createCameraUniforms")
	}

	if err := b.createLightBuffers(); err != nil {
		return errors.Wrap(err, "createLightBuffers")
	}

	b.writeObjectSet()
	b.writeCameraSet()

	if err := b.createSyncObjects(); err != nil {
		return errors.Wrap(err, "createSyncObjects")
	}

	return nil
}

// Ledger returns the counter of live Vulkan objects.
func (b *Backend) Ledger() *lifetime.Ledger {
	return b.ledger
}

// DeviceName returns the name of the GPU in use.
func (b *Backend) DeviceName() string {
	return b.ctx.DeviceName()
}

func (b *Backend) createTextures(albedo, normal textures.Image) error {
	for _, t := range []struct {
		name   string
		img    textures.Image
		format vk.Format
		dst    **Image
	}{
		{"albedo", albedo, vk.FormatR8g8b8a8Srgb, &b.albedo},
		{"normal", normal, vk.FormatR8g8b8a8Unorm, &b.normalMap},
	} {
		if t.img.Size() == 0 || len(t.img.Pixels) < t.img.Size() {
			return errors.Newf("%s texture has no pixels", t.name)
		}

		img, err := b.ctx.createTextureImage(
			uint32(t.img.Width), uint32(t.img.Height),
			t.img.Pixels[:t.img.Size()],
			t.format,
		)
		if err != nil {
			return errors.Wrapf(err, "%s texture", t.name)
		}
		*t.dst = img
		b.static.Push(img)
	}

	return nil
}

func (b *Backend) createGeometry(mesh models.Mesh) error {
	vertices, err := b.ctx.createDeviceLocalBuffer(
		unsafer.SliceToBytes(mesh.Vertices),
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
	)
	if err != nil {
		return errors.Wrap(err, "vertex buffer")
	}
	b.vertices = vertices
	b.static.Push(vertices)

	indices, err := b.ctx.createDeviceLocalBuffer(
		unsafer.SliceToBytes(mesh.Indices),
		vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit),
	)
	if err != nil {
		return errors.Wrap(err, "index buffer")
	}
	b.indices = indices
	b.indexCount = uint32(len(mesh.Indices))
	b.static.Push(indices)

	return nil
}

// createCameraUniforms creates the camera uniform buffer. It is read by the
// graphics and the compute queue at the same time so it is shared between
// them.
func (b *Backend) createCameraUniforms() error {
	layout := b.ctx.layout

	buffer, err := b.ctx.createBuffer(
		camera.UboSize,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)|
			vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		layout.Graphics.Family, layout.Compute.Family,
	)
	if err != nil {
		return errors.Wrap(err, "camera buffer")
	}
	b.cameraUniforms = buffer
	b.static.Push(buffer)

	staging, err := b.ctx.createStagingBuffer(camera.UboSize)
	if err != nil {
		return errors.Wrap(err, "camera staging buffer")
	}
	b.cameraStaging = staging
	b.static.Push(staging)

	return nil
}

func (b *Backend) createLightBuffers() error {
	buffer, err := b.ctx.createBuffer(
		lighting.LightBufferSize,
		vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)|
			vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	)
	if err != nil {
		return errors.Wrap(err, "point light buffer")
	}
	b.lights = buffer
	b.static.Push(buffer)

	staging, err := b.ctx.createStagingBuffer(lighting.LightBufferSize)
	if err != nil {
		return errors.Wrap(err, "point light staging buffer")
	}
	b.lightsStaging = staging
	b.static.Push(staging)

	b.lightScratch = make([]byte, lighting.LightBufferSize)
	return nil
}

func (b *Backend) createSyncObjects() error {
	device := b.ctx.device.Get()

	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	for _, s := range []struct {
		name string
		dst  **lifetime.Owned[vk.Semaphore]
	}{
		{"imageAvailable", &b.imageAvailable},
		{"depthPrePassFinished", &b.depthPrePassFinished},
		{"lightCullingFinished", &b.lightCullingFinished},
		{"renderFinished", &b.renderFinished},
	} {
		var semaphore vk.Semaphore
		if err := vk.Error(
			vk.CreateSemaphore(device, &semaphoreInfo, nil, &semaphore),
		); err != nil {
			return errors.Wrapf(err, "failed to create %s semaphore", s.name)
		}
		*s.dst = lifetime.Track(b.ledger, "semaphore", semaphore, func(h vk.Semaphore) {
			vk.DestroySemaphore(device, h, nil)
		})
		b.static.Push(*s.dst)
	}

	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}

	var fence vk.Fence
	if err := vk.Error(
		vk.CreateFence(device, &fenceInfo, nil, &fence),
	); err != nil {
		return errors.Wrap(err, "failed to create inFlight fence")
	}
	b.inFlight = lifetime.Track(b.ledger, "fence", fence, func(f vk.Fence) {
		vk.DestroyFence(device, f, nil)
	})
	b.static.Push(b.inFlight)

	return nil
}

// WaitIdle blocks until the device has finished all submitted work.
func (b *Backend) WaitIdle() error {
	return b.ctx.WaitIdle()
}

// AcquireNextImage waits for the previous frame to finish and acquires the
// next swapchain image.
func (b *Backend) AcquireNextImage() (uint32, renderer.Status, error) {
	device := b.ctx.device.Get()

	fences := []vk.Fence{b.inFlight.Get()}
	res := vk.WaitForFences(device, 1, fences, vk.True, math.MaxUint64)
	if err := vk.Error(res); err != nil {
		return 0, renderer.StatusSuccess, errors.Wrap(err, "waiting for the previous frame")
	}

	var imageIndex uint32
	res = vk.AcquireNextImage(
		device,
		b.swapchain.Get(),
		math.MaxUint64,
		b.imageAvailable.Get(),
		vk.Fence(vk.NullHandle),
		&imageIndex,
	)

	status, err := presentStatus(res)
	if err != nil {
		return 0, status, errors.Wrap(err, "failed to acquire swap chain image")
	}
	return imageIndex, status, nil
}

// presentStatus maps the results of acquiring and presenting images.
func presentStatus(res vk.Result) (renderer.Status, error) {
	switch res {
	case vk.Success:
		return renderer.StatusSuccess, nil
	case vk.Suboptimal:
		return renderer.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return renderer.StatusOutOfDate, nil
	default:
		return renderer.StatusSuccess, vk.Error(res)
	}
}

// UploadCamera copies the camera uniforms into the device local buffer.
func (b *Backend) UploadCamera(ubo camera.Ubo) error {
	return b.ctx.uploadBuffer(b.cameraStaging, b.cameraUniforms, unsafer.StructToBytes(&ubo))
}

// UploadLights copies the point lights into their storage buffer.
func (b *Backend) UploadLights(lights []lighting.PointLight) error {
	if err := lighting.Pack(b.lightScratch, lights); err != nil {
		return err
	}

	size := lighting.LightBufferHeaderSize + lighting.PointLightSize*len(lights)
	return b.ctx.uploadBuffer(b.lightsStaging, b.lights, b.lightScratch[:size])
}

// SubmitDepthPrePass submits the depth pre-pass to the graphics queue.
func (b *Backend) SubmitDepthPrePass() error {
	signalSemaphores := []vk.Semaphore{b.depthPrePassFinished.Get()}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{b.depthCommands.Get()},
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}

	res := vk.QueueSubmit(b.ctx.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)
	if err := vk.Error(res); err != nil {
		return errors.Wrap(err, "depth pre-pass submit error")
	}
	return nil
}

// SubmitLightCulling submits light culling to the compute queue once the
// depth pre-pass is done.
func (b *Backend) SubmitLightCulling() error {
	waitSemaphores := []vk.Semaphore{b.depthPrePassFinished.Get()}
	signalSemaphores := []vk.Semaphore{b.lightCullingFinished.Get()}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: uint32(len(waitSemaphores)),
		PWaitSemaphores:    waitSemaphores,
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{b.cullingCommands.Get()},
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}

	res := vk.QueueSubmit(b.ctx.computeQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)
	if err := vk.Error(res); err != nil {
		return errors.Wrap(err, "light culling submit error")
	}
	return nil
}

// SubmitMain submits the main pass for imageIndex. It waits for the image and
// for light culling and signals the in-flight fence when done.
func (b *Backend) SubmitMain(imageIndex uint32) error {
	if int(imageIndex) >= len(b.graphicsCommands) {
		return errors.Newf("no main pass commands for image %d", imageIndex)
	}

	fences := []vk.Fence{b.inFlight.Get()}
	if err := vk.Error(vk.ResetFences(b.ctx.device.Get(), 1, fences)); err != nil {
		return errors.Wrap(err, "resetting in-flight fence")
	}

	waitSemaphores := []vk.Semaphore{
		b.imageAvailable.Get(),
		b.lightCullingFinished.Get(),
	}
	signalSemaphores := []vk.Semaphore{b.renderFinished.Get()}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: uint32(len(waitSemaphores)),
		PWaitSemaphores:    waitSemaphores,
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{b.graphicsCommands[imageIndex].Get()},
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}

	res := vk.QueueSubmit(b.ctx.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, b.inFlight.Get())
	if err := vk.Error(res); err != nil {
		return errors.Wrap(err, "queue submit error")
	}
	return nil
}

// Present queues imageIndex for presentation once the main pass is done.
func (b *Backend) Present(imageIndex uint32) (renderer.Status, error) {
	waitSemaphores := []vk.Semaphore{b.renderFinished.Get()}
	swapchains := []vk.Swapchain{b.swapchain.Get()}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waitSemaphores)),
		PWaitSemaphores:    waitSemaphores,
		SwapchainCount:     uint32(len(swapchains)),
		PSwapchains:        swapchains,
		PImageIndices:      []uint32{imageIndex},
	}

	status, err := presentStatus(vk.QueuePresent(b.ctx.presentQueue, &presentInfo))
	if err != nil {
		return status, errors.Wrap(err, "failed to present swap chain image")
	}
	return status, nil
}

// Close destroys every object the backend created, the extent dependent ones
// first. It is safe to call more than once.
func (b *Backend) Close() {
	if b.closed || b.ctx == nil {
		return
	}
	b.closed = true

	if err := b.ctx.WaitIdle(); err != nil {
		b.logger.WithError(err).Warn("waiting for the device before cleanup")
	}

	b.releaseGraphicsCommands()
	b.cullingCommands.Release()
	b.depthCommands.Release()

	for _, fb := range b.framebuffers {
		fb.Release()
	}
	b.framebuffers = nil
	b.depthFramebuffer.Release()

	b.visibility.Release()
	b.depthImage.Release()
	b.prePassDepth.Release()

	b.releasePipelines()
	b.depthRenderPass.Release()
	b.mainRenderPass.Release()

	for _, view := range b.imageViews {
		view.Release()
	}
	b.imageViews = nil
	b.swapchain.Release()

	b.static.Release()
	b.ctx.Close()
}

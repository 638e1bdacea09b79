package renderer

import (
	"github.com/ironsmile/vulkan-forwardplus-go/camera"
	"github.com/ironsmile/vulkan-forwardplus-go/lighting"
)

// Backend performs the GPU side of rendering.
//
// The Create* and Record* methods are called by the renderer in a fixed order
// on start up and every time the swapchain has to be rebuilt. Each of them
// replaces whatever the previous call of the same method created. Objects
// which do not depend on the window size are owned by the backend for its
// whole lifetime.
type Backend interface {
	// WaitIdle blocks until the device has finished all submitted work.
	WaitIdle() error

	// CreateSwapchain builds a swapchain for the requested extent, passing the
	// previous one as its predecessor, and returns the extent actually used.
	CreateSwapchain(requested Extent) (Extent, error)
	CreateImageViews() error
	CreateRenderPasses() error
	CreatePipelines() error

	// CreateDepthResources creates the depth buffer of the main pass and the
	// sampled depth image written by the depth pre-pass.
	CreateDepthResources() error
	CreateFramebuffers() error

	// CreateLightVisibilityBuffer replaces the per tile light list storage
	// buffer and points the light culling descriptor set at it.
	CreateLightVisibilityBuffer(size uint64) error

	// UpdateIntermediateDescriptorSet binds the new pre-pass depth image.
	UpdateIntermediateDescriptorSet() error

	RecordGraphicsCommands(pc PushConstants) error
	RecordLightCullingCommands(pc PushConstants) error
	RecordDepthPrePassCommands() error

	// AcquireNextImage waits for the previous frame and acquires the next
	// swapchain image.
	AcquireNextImage() (uint32, Status, error)

	// UploadCamera and UploadLights copy uniforms through host visible
	// staging memory into device local buffers. They block until the copy is
	// done.
	UploadCamera(ubo camera.Ubo) error
	UploadLights(lights []lighting.PointLight) error

	SubmitDepthPrePass() error
	SubmitLightCulling() error
	SubmitMain(imageIndex uint32) error
	Present(imageIndex uint32) (Status, error)

	// Close destroys everything the backend created.
	Close()
}

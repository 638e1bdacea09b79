package renderer_test

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/ironsmile/vulkan-forwardplus-go/camera"
	"github.com/ironsmile/vulkan-forwardplus-go/lifetime"
	"github.com/ironsmile/vulkan-forwardplus-go/lighting"
	"github.com/ironsmile/vulkan-forwardplus-go/renderer"
)

const fakeImageCount = 3

type handle uint64

// mustOutlive lists for every kind the kinds built on top of it. None of them
// may be alive when a handle of the kind is destroyed.
var mustOutlive = map[string][]string{
	"swapchain":  {"imageView", "framebuffer"},
	"imageView":  {"framebuffer"},
	"renderPass": {"pipeline", "framebuffer"},
	"image":      {"framebuffer"},
}

// fakeBackend mimics the ownership rules of the Vulkan backend. Every object
// is tracked by a ledger and every call is recorded.
type fakeBackend struct {
	ledger *lifetime.Ledger
	next   handle

	calls []string

	swapchain      *lifetime.Owned[handle]
	imageViews     []*lifetime.Owned[handle]
	renderPasses   [2]*lifetime.Owned[handle]
	pipelines      [3]*lifetime.Owned[handle]
	depthImages    [2]*lifetime.Owned[handle]
	framebuffers   []*lifetime.Owned[handle]
	visibility     *lifetime.Owned[handle]
	commandBuffers []*lifetime.Owned[handle]

	predecessors []handle
	extent       renderer.Extent
	maxExtent    renderer.Extent

	depthExtent       renderer.Extent
	framebufferExtent renderer.Extent
	orderViolations   []string

	visibilitySize uint64
	pushConstants  []renderer.PushConstants

	staging     []byte
	lightBuffer []byte
	camera      camera.Ubo

	acquireStatus []renderer.Status
	presentStatus []renderer.Status
	failOn        string
	closed        int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		ledger:      lifetime.NewLedger(),
		staging:     make([]byte, lighting.LightBufferSize),
		lightBuffer: make([]byte, lighting.LightBufferSize),
		swapchain:   &lifetime.Owned[handle]{},
		visibility:  &lifetime.Owned[handle]{},
	}
}

func (f *fakeBackend) track(kind string) *lifetime.Owned[handle] {
	f.next++
	return lifetime.Track(f.ledger, kind, f.next, func(handle) {
		for _, dependent := range mustOutlive[kind] {
			if live := f.ledger.Live(dependent); live > 0 {
				f.orderViolations = append(f.orderViolations,
					fmt.Sprintf("%s destroyed while %d %s alive", kind, live, dependent))
			}
		}
	})
}

func releaseList(list []*lifetime.Owned[handle]) {
	for i := len(list) - 1; i >= 0; i-- {
		list[i].Release()
	}
}

func (f *fakeBackend) record(call string) error {
	f.calls = append(f.calls, call)
	if call == f.failOn {
		return errors.Newf("%s failed", call)
	}
	return nil
}

func (f *fakeBackend) resetCalls() {
	f.calls = nil
}

func replaceAll(list []*lifetime.Owned[handle], n int, create func() *lifetime.Owned[handle]) []*lifetime.Owned[handle] {
	for _, o := range list {
		o.Release()
	}
	list = list[:0]
	for range n {
		list = append(list, create())
	}
	return list
}

func (f *fakeBackend) WaitIdle() error {
	return f.record("WaitIdle")
}

func (f *fakeBackend) CreateSwapchain(requested renderer.Extent) (renderer.Extent, error) {
	if err := f.record("CreateSwapchain"); err != nil {
		return renderer.Extent{}, err
	}

	releaseList(f.commandBuffers)
	releaseList(f.framebuffers)
	releaseList(f.imageViews)
	f.commandBuffers, f.framebuffers, f.imageViews = nil, nil, nil

	old := f.swapchain.Take()
	f.predecessors = append(f.predecessors, old.Get())
	f.swapchain = f.track("swapchain")
	old.Release()

	f.extent = requested
	if !f.maxExtent.Empty() {
		f.extent.Width = min(f.extent.Width, f.maxExtent.Width)
		f.extent.Height = min(f.extent.Height, f.maxExtent.Height)
	}

	return f.extent, nil
}

func (f *fakeBackend) CreateImageViews() error {
	if err := f.record("CreateImageViews"); err != nil {
		return err
	}
	f.imageViews = replaceAll(f.imageViews, fakeImageCount, func() *lifetime.Owned[handle] {
		return f.track("imageView")
	})
	return nil
}

func (f *fakeBackend) CreateRenderPasses() error {
	if err := f.record("CreateRenderPasses"); err != nil {
		return err
	}
	releaseList(f.pipelines[:])
	releaseList(f.framebuffers)
	f.framebuffers = nil

	for i := range f.renderPasses {
		f.renderPasses[i].Release()
		f.renderPasses[i] = f.track("renderPass")
	}
	return nil
}

func (f *fakeBackend) CreatePipelines() error {
	if err := f.record("CreatePipelines"); err != nil {
		return err
	}
	for i := range f.pipelines {
		f.pipelines[i].Release()
		f.pipelines[i] = f.track("pipeline")
	}
	return nil
}

func (f *fakeBackend) CreateDepthResources() error {
	if err := f.record("CreateDepthResources"); err != nil {
		return err
	}
	for i := range f.depthImages {
		f.depthImages[i].Release()
		f.depthImages[i] = f.track("image")
	}
	f.depthExtent = f.extent
	return nil
}

func (f *fakeBackend) CreateFramebuffers() error {
	if err := f.record("CreateFramebuffers"); err != nil {
		return err
	}
	// One per swapchain image and one for the depth pre-pass.
	f.framebuffers = replaceAll(f.framebuffers, fakeImageCount+1, func() *lifetime.Owned[handle] {
		return f.track("framebuffer")
	})
	f.framebufferExtent = f.extent
	return nil
}

func (f *fakeBackend) CreateLightVisibilityBuffer(size uint64) error {
	if err := f.record("CreateLightVisibilityBuffer"); err != nil {
		return err
	}
	f.visibilitySize = size
	f.visibility.Release()
	f.visibility = f.track("buffer")
	return nil
}

func (f *fakeBackend) UpdateIntermediateDescriptorSet() error {
	return f.record("UpdateIntermediateDescriptorSet")
}

func (f *fakeBackend) RecordGraphicsCommands(pc renderer.PushConstants) error {
	if err := f.record("RecordGraphicsCommands"); err != nil {
		return err
	}
	f.pushConstants = append(f.pushConstants, pc)
	f.commandBuffers = replaceAll(f.commandBuffers, fakeImageCount, func() *lifetime.Owned[handle] {
		return f.track("commandBuffer")
	})
	return nil
}

func (f *fakeBackend) RecordLightCullingCommands(pc renderer.PushConstants) error {
	f.pushConstants = append(f.pushConstants, pc)
	return f.record("RecordLightCullingCommands")
}

func (f *fakeBackend) RecordDepthPrePassCommands() error {
	return f.record("RecordDepthPrePassCommands")
}

func (f *fakeBackend) AcquireNextImage() (uint32, renderer.Status, error) {
	if err := f.record("AcquireNextImage"); err != nil {
		return 0, renderer.StatusSuccess, err
	}

	status := renderer.StatusSuccess
	if len(f.acquireStatus) > 0 {
		status, f.acquireStatus = f.acquireStatus[0], f.acquireStatus[1:]
	}
	return 1, status, nil
}

func (f *fakeBackend) UploadCamera(ubo camera.Ubo) error {
	f.camera = ubo
	return f.record("UploadCamera")
}

// UploadLights goes through a staging copy the same way the device backend
// does.
func (f *fakeBackend) UploadLights(lights []lighting.PointLight) error {
	if err := f.record("UploadLights"); err != nil {
		return err
	}
	if err := lighting.Pack(f.staging, lights); err != nil {
		return err
	}
	copy(f.lightBuffer, f.staging)
	return nil
}

func (f *fakeBackend) SubmitDepthPrePass() error {
	return f.record("SubmitDepthPrePass")
}

func (f *fakeBackend) SubmitLightCulling() error {
	return f.record("SubmitLightCulling")
}

func (f *fakeBackend) SubmitMain(imageIndex uint32) error {
	return f.record("SubmitMain")
}

func (f *fakeBackend) Present(imageIndex uint32) (renderer.Status, error) {
	if err := f.record("Present"); err != nil {
		return renderer.StatusSuccess, err
	}

	status := renderer.StatusSuccess
	if len(f.presentStatus) > 0 {
		status, f.presentStatus = f.presentStatus[0], f.presentStatus[1:]
	}
	return status, nil
}

func (f *fakeBackend) Close() {
	f.closed++
	f.record("Close")

	f.visibility.Release()
	for _, list := range [][]*lifetime.Owned[handle]{
		f.commandBuffers, f.framebuffers, f.depthImages[:],
		f.pipelines[:], f.renderPasses[:], f.imageViews,
	} {
		releaseList(list)
	}
	f.swapchain.Release()
}

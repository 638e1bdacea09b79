package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"

	"github.com/ironsmile/vulkan-forwardplus-go/camera"
	"github.com/ironsmile/vulkan-forwardplus-go/lighting"
)

// ErrClosed is returned by operations on a closed renderer.
var ErrClosed = errors.New("renderer is closed")

// Config holds the scene state the renderer starts with.
type Config struct {
	// DebugView is the initial debug view index. It is normalised the same
	// way ChangeDebugViewIndex does it.
	DebugView int

	// Lights is copied by New and animated every frame.
	Lights []lighting.PointLight

	// LightBounds is the box the lights drift inside of.
	LightBounds lighting.Bounds

	// Logger defaults to the standard logrus logger.
	Logger log.FieldLogger
}

// Renderer is a forward-plus renderer for a single window.
type Renderer struct {
	backend Backend
	logger  log.FieldLogger

	requested Extent
	extent    Extent
	debugView int

	lights      []lighting.PointLight
	lightBounds lighting.Bounds

	view     mgl32.Mat4
	position mgl32.Vec3

	frames uint64
	closed bool
}

// New creates all window size dependent GPU state for extent and returns a
// renderer ready to draw.
func New(cfg Config, backend Backend, extent Extent) (*Renderer, error) {
	if backend == nil {
		return nil, errors.New("renderer needs a backend")
	}
	if extent.Empty() {
		return nil, errors.Newf("cannot create a renderer for a %dx%d window",
			extent.Width, extent.Height)
	}
	if len(cfg.Lights) > lighting.MaxPointLightCount {
		return nil, errors.Wrapf(lighting.ErrTooManyLights, "got %d", len(cfg.Lights))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	r := &Renderer{
		backend:     backend,
		logger:      logger,
		requested:   extent,
		debugView:   normaliseDebugView(cfg.DebugView),
		lights:      append([]lighting.PointLight(nil), cfg.Lights...),
		lightBounds: cfg.LightBounds,
		view:        mgl32.Ident4(),
	}

	if err := r.recreate(); err != nil {
		return nil, errors.Wrap(err, "creating swapchain resources")
	}

	return r, nil
}

// Extent returns the size of the current swapchain images.
func (r *Renderer) Extent() Extent {
	return r.extent
}

// Resize rebuilds the swapchain for a window of width x height pixels. A zero
// or negative dimension, as reported for minimized windows, is ignored.
func (r *Renderer) Resize(width, height int) error {
	if r.closed {
		return ErrClosed
	}
	if width <= 0 || height <= 0 {
		return nil
	}

	r.requested = Extent{Width: uint32(width), Height: uint32(height)}
	return r.recreate()
}

// ChangeDebugViewIndex switches to debug view target modulo DebugViewCount.
// Command buffers bake the view index into their push constants so they are
// rebuilt through the swapchain recreation path.
func (r *Renderer) ChangeDebugViewIndex(target int) error {
	if r.closed {
		return ErrClosed
	}

	r.debugView = normaliseDebugView(target)
	r.logger.WithField("view", DebugViewName(r.debugView)).Info("debug view changed")

	return r.recreate()
}

// DebugViewIndex returns the active debug view.
func (r *Renderer) DebugViewIndex() int {
	return r.debugView
}

// SetCamera sets the view matrix and world position used for the next frame.
func (r *Renderer) SetCamera(view mgl32.Mat4, position mgl32.Vec3) {
	r.view = view
	r.position = position
}

// Lights returns the current, animated, point lights. The slice is owned by
// the renderer and is only valid until the next call to RequestDraw.
func (r *Renderer) Lights() []lighting.PointLight {
	return r.lights
}

// Frames returns the number of frames presented so far.
func (r *Renderer) Frames() uint64 {
	return r.frames
}

// RequestDraw animates the lights by dt seconds and renders one frame. A frame
// for which the swapchain turns out to be out of date is skipped after the
// swapchain has been rebuilt.
func (r *Renderer) RequestDraw(dt float32) error {
	if r.closed {
		return ErrClosed
	}

	imageIndex, status, err := r.backend.AcquireNextImage()
	if err != nil {
		return errors.Wrap(err, "acquiring swapchain image")
	}
	if status == StatusOutOfDate {
		r.logger.Debug("swapchain out of date on acquire")
		return r.recreate()
	}

	if err := r.updateUniforms(dt); err != nil {
		return errors.Wrap(err, "updating uniforms")
	}

	if err := r.backend.SubmitDepthPrePass(); err != nil {
		return errors.Wrap(err, "submitting depth pre-pass")
	}
	if err := r.backend.SubmitLightCulling(); err != nil {
		return errors.Wrap(err, "submitting light culling")
	}
	if err := r.backend.SubmitMain(imageIndex); err != nil {
		return errors.Wrap(err, "submitting main pass")
	}

	status, err = r.backend.Present(imageIndex)
	if err != nil {
		return errors.Wrap(err, "presenting")
	}
	r.frames++

	if status == StatusOutOfDate || status == StatusSuboptimal {
		r.logger.WithField("status", status).Debug("swapchain needs rebuilding after present")
		return r.recreate()
	}

	return nil
}

func (r *Renderer) updateUniforms(dt float32) error {
	lighting.Drift(r.lights, dt, r.lightBounds)

	ubo := camera.NewUbo(r.view, r.position, r.extent.Width, r.extent.Height)
	if err := r.backend.UploadCamera(ubo); err != nil {
		return err
	}

	return r.backend.UploadLights(r.lights)
}

// Close waits for the device and releases every backend resource. It is safe
// to call more than once.
func (r *Renderer) Close() {
	if r.closed {
		return
	}
	r.closed = true

	if err := r.backend.WaitIdle(); err != nil {
		r.logger.WithError(err).Warn("waiting for the device before shutdown")
	}
	r.backend.Close()
}

// recreate rebuilds everything which depends on the swapchain extent or the
// debug view. Every step replaces what the previous run of the same step
// created.
func (r *Renderer) recreate() error {
	b := r.backend

	if err := b.WaitIdle(); err != nil {
		return errors.Wrap(err, "waitIdle")
	}

	extent, err := b.CreateSwapchain(r.requested)
	if err != nil {
		return errors.Wrap(err, "createSwapchain")
	}
	if extent.Empty() {
		return errors.Newf("swapchain created with an empty extent %dx%d",
			extent.Width, extent.Height)
	}
	r.extent = extent

	steps := []struct {
		name string
		fn   func() error
	}{
		{"createImageViews", b.CreateImageViews},
		{"createRenderPasses", b.CreateRenderPasses},
		{"createPipelines", b.CreatePipelines},
		{"createDepthResources", b.CreateDepthResources},
		{"createFramebuffers", b.CreateFramebuffers},
		{"createLightVisibilityBuffer", func() error {
			return b.CreateLightVisibilityBuffer(
				lighting.VisibilityBufferSize(extent.Width, extent.Height),
			)
		}},
		{"updateIntermediateDescriptorSet", b.UpdateIntermediateDescriptorSet},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return errors.Wrap(err, step.name)
		}
	}

	pc := NewPushConstants(extent, r.debugView)
	if err := b.RecordGraphicsCommands(pc); err != nil {
		return errors.Wrap(err, "recordGraphicsCommands")
	}
	if err := b.RecordLightCullingCommands(pc); err != nil {
		return errors.Wrap(err, "recordLightCullingCommands")
	}
	if err := b.RecordDepthPrePassCommands(); err != nil {
		return errors.Wrap(err, "recordDepthPrePassCommands")
	}

	r.logger.WithFields(log.Fields{
		"width":  extent.Width,
		"height": extent.Height,
		"tilesX": pc.TileNums[0],
		"tilesY": pc.TileNums[1],
	}).Debug("swapchain resources created")

	return nil
}

func normaliseDebugView(index int) int {
	return ((index % DebugViewCount) + DebugViewCount) % DebugViewCount
}

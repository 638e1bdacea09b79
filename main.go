package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/loov/hrtime"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
	"github.com/xlab/closer"

	"github.com/ironsmile/vulkan-forwardplus-go/camera"
	"github.com/ironsmile/vulkan-forwardplus-go/config"
	"github.com/ironsmile/vulkan-forwardplus-go/renderer"
	"github.com/ironsmile/vulkan-forwardplus-go/scene"
	"github.com/ironsmile/vulkan-forwardplus-go/shaders"
	"github.com/ironsmile/vulkan-forwardplus-go/vkr"
)

func init() {
	// This is needed to arrange that main() runs on main thread.
	// See documentation for functions that are only allowed to be called
	// from the main thread.
	runtime.LockOSThread()
}

func main() {
	cfg := config.Default()
	if err := cfg.LoadEnvironment(".env"); err != nil {
		fail(err)
	}

	var listDevices bool
	cfg.RegisterFlags(flag.CommandLine)
	flag.BoolVar(&listDevices, "list-devices", false, "Print the available GPUs and exit")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	log.SetLevel(cfg.LogLevel())
	logger := log.WithField("session", uuid.New().String())

	app := &forwardPlusApp{cfg: cfg, logger: logger}
	closer.Bind(app.cleanup)

	var err error
	if listDevices {
		err = app.listDevices()
	} else {
		err = app.Run()
	}
	app.cleanup()
	if err != nil {
		fail(err)
	}

	closer.Close()
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
	if hint := errors.FlattenHints(err); hint != "" {
		fmt.Fprintln(os.Stderr, hint)
	}
	closer.Exit(1)
}

// forwardPlusApp owns the window and the renderer of the demo.
type forwardPlusApp struct {
	cfg    config.Configuration
	logger log.FieldLogger

	window   *glfw.Window
	backend  *vkr.Backend
	renderer *renderer.Renderer
	camera   *camera.Camera

	glfwReady bool
	cleaned   bool
}

func (a *forwardPlusApp) initWindow() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "glfw.Init")
	}
	a.glfwReady = true

	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "vk.Init")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	window, err := glfw.CreateWindow(
		a.cfg.Window.Width, a.cfg.Window.Height, a.cfg.Window.Title, nil, nil,
	)
	if err != nil {
		return errors.Wrap(err, "creating window")
	}
	a.window = window

	return nil
}

func (a *forwardPlusApp) listDevices() error {
	if err := a.initWindow(); err != nil {
		return err
	}
	return vkr.DescribeDevices(os.Stdout, a.window)
}

// Run loads the scene, creates the renderer and draws until the window is
// closed.
func (a *forwardPlusApp) Run() error {
	if err := a.initWindow(); err != nil {
		return err
	}

	if err := a.initRenderer(); err != nil {
		return err
	}

	return a.mainLoop()
}

func (a *forwardPlusApp) initRenderer() error {
	sceneCfg, err := a.cfg.ScenePreset()
	if err != nil {
		return err
	}

	ctx := context.Background()

	assets, err := scene.Load(ctx, sceneCfg, os.DirFS(a.cfg.Scene.AssetDir))
	if err != nil {
		return err
	}

	bytecode, err := shaders.LoadAll(ctx, shaders.NewDirLoader(a.cfg.Renderer.ShaderDir), shaders.All...)
	if err != nil {
		return errors.WithHint(
			errors.Wrap(err, "loading shaders"),
			"compile them with `go generate ./shaders` or point -shaders at them",
		)
	}

	lights, err := sceneCfg.Lights(a.cfg.Scene.Seed)
	if err != nil {
		return err
	}

	a.backend, err = vkr.New(a.window, vkr.Assets{
		Mesh:    assets.Mesh,
		Albedo:  assets.Albedo,
		Normal:  assets.Normal,
		Shaders: bytecode,
	}, vkr.Options{
		AppName:    a.cfg.Window.Title,
		Validation: a.cfg.Renderer.Validation,
		Logger:     a.logger,
	})
	if err != nil {
		return errors.Wrap(err, "creating the Vulkan backend")
	}

	width, height := a.window.GetFramebufferSize()
	a.renderer, err = renderer.New(renderer.Config{
		DebugView:   a.cfg.Renderer.DebugView,
		Lights:      lights,
		LightBounds: sceneCfg.LightBounds,
		Logger:      a.logger,
	}, a.backend, renderer.Extent{Width: uint32(width), Height: uint32(height)})
	if err != nil {
		return errors.Wrap(err, "creating the renderer")
	}

	a.camera = sceneCfg.Camera()

	a.window.SetFramebufferSizeCallback(a.onFramebufferSize)
	a.window.SetKeyCallback(a.onKey)

	a.logger.WithFields(log.Fields{
		"scene":  sceneCfg.Name,
		"lights": len(lights),
		"device": a.backend.DeviceName(),
		"view":   renderer.DebugViewName(a.renderer.DebugViewIndex()),
	}).Info("renderer ready")

	return nil
}

func (a *forwardPlusApp) onFramebufferSize(_ *glfw.Window, width, height int) {
	if err := a.renderer.Resize(width, height); err != nil {
		a.logger.WithError(err).Error("resizing")
		a.window.SetShouldClose(true)
	}
}

func (a *forwardPlusApp) onKey(
	w *glfw.Window,
	key glfw.Key,
	_ int,
	action glfw.Action,
	_ glfw.ModifierKey,
) {
	if action != glfw.Press {
		return
	}

	view := -1
	switch key {
	case glfw.KeyEscape:
		w.SetShouldClose(true)
		return
	case glfw.Key0, glfw.Key1, glfw.Key2, glfw.Key3, glfw.Key4:
		view = int(key - glfw.Key0)
	case glfw.KeyTab:
		view = a.renderer.DebugViewIndex() + 1
	default:
		return
	}

	if err := a.renderer.ChangeDebugViewIndex(view); err != nil {
		a.logger.WithError(err).Error("changing debug view")
		w.SetShouldClose(true)
	}
}

var movementKeys = []struct {
	key glfw.Key
	dir mgl32.Vec3
}{
	{glfw.KeyW, mgl32.Vec3{0, 0, -1}},
	{glfw.KeyS, mgl32.Vec3{0, 0, 1}},
	{glfw.KeyA, mgl32.Vec3{-1, 0, 0}},
	{glfw.KeyD, mgl32.Vec3{1, 0, 0}},
	{glfw.KeyE, mgl32.Vec3{0, 1, 0}},
	{glfw.KeyQ, mgl32.Vec3{0, -1, 0}},
}

func (a *forwardPlusApp) updateCamera(dt float32) {
	var dir mgl32.Vec3
	for _, m := range movementKeys {
		if a.window.GetKey(m.key) == glfw.Press {
			dir = dir.Add(m.dir)
		}
	}
	a.camera.Move(dir, dt)

	var yaw, pitch float32
	if a.window.GetKey(glfw.KeyLeft) == glfw.Press {
		yaw++
	}
	if a.window.GetKey(glfw.KeyRight) == glfw.Press {
		yaw--
	}
	if a.window.GetKey(glfw.KeyUp) == glfw.Press {
		pitch++
	}
	if a.window.GetKey(glfw.KeyDown) == glfw.Press {
		pitch--
	}
	if yaw != 0 || pitch != 0 {
		a.camera.Rotate(yaw, pitch, dt)
	}

	a.renderer.SetCamera(a.camera.View(), a.camera.Position)
}

func (a *forwardPlusApp) mainLoop() error {
	start := hrtime.Now()
	last := start

	for !a.window.ShouldClose() {
		glfw.PollEvents()

		if width, height := a.window.GetFramebufferSize(); width == 0 || height == 0 {
			glfw.WaitEvents()
			continue
		}

		now := hrtime.Now()
		dt := float32((now - last).Seconds())
		last = now

		a.updateCamera(dt)
		if err := a.renderer.RequestDraw(dt); err != nil {
			return errors.Wrap(err, "drawing frame")
		}
	}

	elapsed := hrtime.Since(start)
	frames := a.renderer.Frames()
	a.logger.WithFields(log.Fields{
		"frames":  frames,
		"elapsed": elapsed.Round(time.Millisecond),
		"fps":     float64(frames) / max(elapsed.Seconds(), 1e-9),
	}).Info("main loop finished")

	return nil
}

// cleanup releases the renderer, the window and GLFW. It runs on the main
// thread after the loop and again from closer, where it does nothing.
func (a *forwardPlusApp) cleanup() {
	if a.cleaned {
		return
	}
	a.cleaned = true

	if a.renderer != nil {
		a.renderer.Close()
	} else if a.backend != nil {
		a.backend.Close()
	}

	if a.backend != nil {
		if live := a.backend.Ledger().Snapshot(); len(live) > 0 {
			a.logger.WithField("live", live).Warn("vulkan objects left after cleanup")
		}
	}

	if a.window != nil {
		a.window.Destroy()
	}
	if a.glfwReady {
		glfw.Terminate()
	}
}

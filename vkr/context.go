// Package vkr renders forward-plus frames with Vulkan. It implements the
// renderer.Backend interface on top of a window surface.
package vkr

import (
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/vulkan-forwardplus-go/lifetime"
	"github.com/ironsmile/vulkan-forwardplus-go/queues"
)

const engineName = "forwardplus"

var (
	validationLayers = []string{
		"VK_LAYER_KHRONOS_validation\x00",
	}

	deviceExtensions = []string{
		vk.KhrSwapchainExtensionName + "\x00",
	}
)

// Window is the drawing surface provider. *glfw.Window satisfies it.
type Window interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
	GetRequiredInstanceExtensions() []string
}

// ContextOptions configures NewContext.
type ContextOptions struct {
	AppName string

	// Validation enables the Khronos validation layers.
	Validation bool

	// Ledger counts every object created by the context and the backend
	// using it. May be nil.
	Ledger *lifetime.Ledger

	Logger log.FieldLogger
}

// Context is a Vulkan instance, device and the queues the renderer submits
// to.
type Context struct {
	ledger  *lifetime.Ledger
	logger  log.FieldLogger
	release lifetime.Stack

	instance *lifetime.Owned[vk.Instance]
	surface  *lifetime.Owned[vk.Surface]
	device   *lifetime.Owned[vk.Device]

	physicalDevice   vk.PhysicalDevice
	deviceProperties vk.PhysicalDeviceProperties
	memProperties    vk.PhysicalDeviceMemoryProperties

	families queues.FamilyIndices
	layout   queues.Layout

	graphicsQueue vk.Queue
	computeQueue  vk.Queue
	presentQueue  vk.Queue

	graphicsPool *lifetime.Owned[vk.CommandPool]
	computePool  *lifetime.Owned[vk.CommandPool]
}

// NewContext creates the instance, picks the best physical device which can
// render to window and creates the logical device with its queues and
// command pools.
func NewContext(window Window, opts ContextOptions) (*Context, error) {
	c := &Context{
		ledger: opts.Ledger,
		logger: opts.Logger,
	}
	if c.logger == nil {
		c.logger = log.StandardLogger()
	}

	err := c.init(window, opts)
	if err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Context) init(window Window, opts ContextOptions) error {
	instance, err := createInstance(window, opts.AppName, opts.Validation)
	if err != nil {
		return errors.Wrap(err, "createInstance")
	}
	c.instance = lifetime.Track(c.ledger, "instance", instance, func(i vk.Instance) {
		vk.DestroyInstance(i, nil)
	})
	c.release.Push(c.instance)

	surface, err := createSurface(window, instance)
	if err != nil {
		return errors.Wrap(err, "createSurface")
	}
	c.surface = lifetime.Track(c.ledger, "surface", surface, func(s vk.Surface) {
		vk.DestroySurface(instance, s, nil)
	})
	c.release.Push(c.surface)

	if err := c.pickPhysicalDevice(); err != nil {
		return errors.Wrap(err, "pickPhysicalDevice")
	}

	if err := c.createLogicalDevice(opts.Validation); err != nil {
		return errors.Wrap(err, "createLogicalDevice")
	}

	if err := c.createCommandPools(); err != nil {
		return errors.Wrap(err, "createCommandPools")
	}

	return nil
}

// Device returns the logical device.
func (c *Context) Device() vk.Device {
	return c.device.Get()
}

// DeviceName returns the name of the selected physical device.
func (c *Context) DeviceName() string {
	return vk.ToString(c.deviceProperties.DeviceName[:])
}

// QueueLayout returns how queues were assigned to roles.
func (c *Context) QueueLayout() queues.Layout {
	return c.layout
}

// SeparateComputeFamily returns true when light culling runs on a different
// queue family than drawing and buffers have to change owners.
func (c *Context) SeparateComputeFamily() bool {
	return !c.families.SameGraphicsCompute()
}

// WaitIdle blocks until the device has no work left.
func (c *Context) WaitIdle() error {
	if !c.device.Valid() {
		return nil
	}
	if err := vk.Error(vk.DeviceWaitIdle(c.device.Get())); err != nil {
		return errors.Wrap(err, "vkDeviceWaitIdle")
	}
	return nil
}

// Close destroys the command pools, the device, the surface and the instance.
func (c *Context) Close() {
	c.release.Release()
}

func createInstance(window Window, appName string, validation bool) (vk.Instance, error) {
	if validation {
		if missing := missingLayers(validationLayers); len(missing) > 0 {
			return nil, errors.WithHintf(
				errors.Wrapf(ErrMissingLayer, "%s", strings.Join(missing, ", ")),
				"install the Vulkan SDK or run without validation",
			)
		}
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   appName + "\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        engineName + "\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion10,
	}

	extensions := nullTerminated(window.GetRequiredInstanceExtensions())
	if missing := missingInstanceExtensions(extensions); len(missing) > 0 {
		return nil, errors.Wrapf(ErrMissingExtension, "instance: %s", strings.Join(missing, ", "))
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	if validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = validationLayers
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return nil, errors.Wrap(err, "failed to create Vulkan instance")
	}

	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, errors.Wrap(err, "failed to load instance functions")
	}

	return instance, nil
}

func createSurface(window Window, instance vk.Instance) (vk.Surface, error) {
	surfacePtr, err := window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, errors.Wrap(err, "cannot create surface within the window")
	}

	return vk.SurfaceFromPointer(surfacePtr), nil
}

func (c *Context) pickPhysicalDevice() error {
	devices, err := physicalDevices(c.instance.Get())
	if err != nil {
		return err
	}

	var (
		selected vk.PhysicalDevice
		score    uint32
		reasons  []string
	)

	for _, device := range devices {
		deviceScore, reason := deviceScore(device, c.surface.Get())

		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &properties)
		properties.Deref()
		name := vk.ToString(properties.DeviceName[:])

		c.logger.WithFields(log.Fields{
			"device": name,
			"score":  deviceScore,
		}).Debug("available device")

		if reason != "" {
			reasons = append(reasons, name+": "+reason)
		}

		if deviceScore > score {
			selected = device
			score = deviceScore
		}
	}

	if selected == vk.PhysicalDevice(vk.NullHandle) {
		err := errors.Wrapf(ErrNoSuitableDevice, "checked %d devices", len(devices))
		if len(reasons) > 0 {
			err = errors.WithHintf(err, "%s", strings.Join(reasons, "\n"))
		}
		return err
	}

	c.physicalDevice = selected

	vk.GetPhysicalDeviceProperties(selected, &c.deviceProperties)
	c.deviceProperties.Deref()
	c.deviceProperties.Limits.Deref()

	vk.GetPhysicalDeviceMemoryProperties(selected, &c.memProperties)
	c.memProperties.Deref()

	return nil
}

func physicalDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get the number of physical devices")
	}
	if deviceCount == 0 {
		return nil, errors.WithHint(
			errors.Wrap(ErrNoSuitableDevice, "failed to find GPUs with Vulkan support"),
			"check that a Vulkan driver is installed",
		)
	}

	devices := make([]vk.PhysicalDevice, deviceCount)
	err = vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, devices))
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate the physical devices")
	}

	return devices, nil
}

// deviceScore returns how suitable a device is for the renderer. Bigger is
// better and zero means it cannot be used, in which case reason says why.
func deviceScore(device vk.PhysicalDevice, surface vk.Surface) (uint32, string) {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(device, &properties)
	properties.Deref()

	if reason := unsuitableReason(device, surface); reason != "" {
		return 0, reason
	}

	if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
		return 1000, ""
	}
	return 1, ""
}

func unsuitableReason(device vk.PhysicalDevice, surface vk.Surface) string {
	if _, err := queues.Select(deviceQueues{device: device, surface: surface}); err != nil {
		return err.Error()
	}

	if missing := missingDeviceExtensions(device); len(missing) > 0 {
		return "missing extensions " + strings.Join(missing, ", ")
	}

	support, err := querySwapchainSupport(device, surface)
	if err != nil {
		return err.Error()
	}
	if len(support.formats) == 0 || len(support.presentModes) == 0 {
		return "no surface formats or present modes"
	}

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(device, &features)
	features.Deref()
	if !features.SamplerAnisotropy.B() {
		return "no sampler anisotropy"
	}

	return ""
}

// deviceQueues adapts a physical device to queues.Enumerator.
type deviceQueues struct {
	device  vk.PhysicalDevice
	surface vk.Surface
}

func (d deviceQueues) QueueFamilies() []queues.FamilyProperties {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(d.device, &count, nil)

	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(d.device, &count, families)

	props := make([]queues.FamilyProperties, 0, count)
	for _, family := range families {
		family.Deref()
		props = append(props, queues.FamilyProperties{
			Graphics:   family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0,
			Compute:    family.QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0,
			QueueCount: family.QueueCount,
		})
	}

	return props
}

func (d deviceQueues) SupportsPresent(family uint32) (bool, error) {
	var hasPresent vk.Bool32
	err := vk.Error(vk.GetPhysicalDeviceSurfaceSupport(d.device, family, d.surface, &hasPresent))
	if err != nil {
		return false, errors.Wrapf(err, "querying surface support for queue family %d", family)
	}
	return hasPresent.B(), nil
}

func (c *Context) createLogicalDevice(validation bool) error {
	enumerator := deviceQueues{device: c.physicalDevice, surface: c.surface.Get()}

	families, err := queues.Select(enumerator)
	if err != nil {
		return errors.Wrap(err, "selecting queue families")
	}
	layout, err := queues.Plan(families, enumerator.QueueFamilies())
	if err != nil {
		return errors.Wrap(err, "planning queues")
	}
	c.families = families
	c.layout = layout

	c.logger.WithFields(log.Fields{
		"device":   c.DeviceName(),
		"graphics": layout.Graphics,
		"compute":  layout.Compute,
		"present":  layout.Present,
		"queues":   layout.Distinct(),
	}).Debug("queue layout")

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, 0, len(layout.Requests))
	for _, request := range layout.Requests {
		queueCreateInfos = append(queueCreateInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: request.Family,
			QueueCount:       request.Count,
			PQueuePriorities: request.Priorities,
		})
	}

	deviceFeatures := []vk.PhysicalDeviceFeatures{{
		SamplerAnisotropy: vk.True,
	}}

	createInfo := vk.DeviceCreateInfo{
		SType:            vk.StructureTypeDeviceCreateInfo,
		PEnabledFeatures: deviceFeatures,

		PQueueCreateInfos:    queueCreateInfos,
		QueueCreateInfoCount: uint32(len(queueCreateInfos)),

		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,
	}

	if validation {
		createInfo.PpEnabledLayerNames = validationLayers
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
	}

	var device vk.Device
	err = vk.Error(vk.CreateDevice(c.physicalDevice, &createInfo, nil, &device))
	if err != nil {
		return errors.Wrap(err, "failed to create logical device")
	}
	c.device = lifetime.Track(c.ledger, "device", device, func(d vk.Device) {
		vk.DestroyDevice(d, nil)
	})
	c.release.Push(c.device)

	c.graphicsQueue = getQueue(device, layout.Graphics)
	c.computeQueue = getQueue(device, layout.Compute)
	c.presentQueue = getQueue(device, layout.Present)

	return nil
}

func getQueue(device vk.Device, ref queues.QueueRef) vk.Queue {
	var queue vk.Queue
	vk.GetDeviceQueue(device, ref.Family, ref.Index, &queue)
	return queue
}

func (c *Context) createCommandPools() error {
	graphicsPool, err := c.createCommandPool(c.layout.Graphics.Family)
	if err != nil {
		return errors.Wrap(err, "graphics")
	}
	c.graphicsPool = graphicsPool
	c.release.Push(graphicsPool)

	computePool, err := c.createCommandPool(c.layout.Compute.Family)
	if err != nil {
		return errors.Wrap(err, "compute")
	}
	c.computePool = computePool
	c.release.Push(computePool)

	return nil
}

func (c *Context) createCommandPool(family uint32) (*lifetime.Owned[vk.CommandPool], error) {
	poolInfo := vk.CommandPoolCreateInfo{
		SType: vk.StructureTypeCommandPoolCreateInfo,
		Flags: vk.CommandPoolCreateFlags(
			vk.CommandPoolCreateResetCommandBufferBit,
		),
		QueueFamilyIndex: family,
	}

	device := c.device.Get()

	var commandPool vk.CommandPool
	res := vk.CreateCommandPool(device, &poolInfo, nil, &commandPool)
	if err := vk.Error(res); err != nil {
		return nil, errors.Wrap(err, "failed to create command pool")
	}

	return lifetime.Track(c.ledger, "commandPool", commandPool, func(p vk.CommandPool) {
		vk.DestroyCommandPool(device, p, nil)
	}), nil
}

func missingLayers(required []string) []string {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return required
	}
	availableLayers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, availableLayers) != vk.Success {
		return required
	}

	available := make(map[string]struct{}, count)
	for _, layer := range availableLayers {
		layer.Deref()
		available[vk.ToString(layer.LayerName[:])+"\x00"] = struct{}{}
	}

	return missingNames(required, available)
}

func missingInstanceExtensions(required []string) []string {
	var count uint32
	if vk.EnumerateInstanceExtensionProperties("", &count, nil) != vk.Success {
		return required
	}
	extensions := make([]vk.ExtensionProperties, count)
	if vk.EnumerateInstanceExtensionProperties("", &count, extensions) != vk.Success {
		return required
	}

	return missingNames(required, extensionSet(extensions))
}

func missingDeviceExtensions(device vk.PhysicalDevice) []string {
	var count uint32
	res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil)
	if vk.Error(res) != nil {
		return deviceExtensions
	}
	extensions := make([]vk.ExtensionProperties, count)
	res = vk.EnumerateDeviceExtensionProperties(device, "", &count, extensions)
	if vk.Error(res) != nil {
		return deviceExtensions
	}

	return missingNames(deviceExtensions, extensionSet(extensions))
}

func extensionSet(extensions []vk.ExtensionProperties) map[string]struct{} {
	set := make(map[string]struct{}, len(extensions))
	for _, extension := range extensions {
		extension.Deref()
		set[vk.ToString(extension.ExtensionName[:])+"\x00"] = struct{}{}
	}
	return set
}

func nullTerminated(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, "\x00") {
			name += "\x00"
		}
		out = append(out, name)
	}
	return out
}

// missingNames returns the entries of required not in available. Both use
// null terminated names and the result is returned without the terminator.
func missingNames(required []string, available map[string]struct{}) []string {
	var missing []string
	for _, name := range required {
		if _, ok := available[name]; !ok {
			missing = append(missing, strings.TrimSuffix(name, "\x00"))
		}
	}
	return missing
}

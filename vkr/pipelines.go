package vkr

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/vulkan-forwardplus-go/lifetime"
	"github.com/ironsmile/vulkan-forwardplus-go/models"
	"github.com/ironsmile/vulkan-forwardplus-go/shaders"
	"github.com/ironsmile/vulkan-forwardplus-go/unsafer"
)

// CreateRenderPasses creates the main pass and the depth pre-pass for the
// current swapchain format. Pipelines and framebuffers built from the old
// passes are destroyed first.
func (b *Backend) CreateRenderPasses() error {
	b.releasePipelines()
	b.depthFramebuffer.Release()
	for _, fb := range b.framebuffers {
		fb.Release()
	}
	b.framebuffers = nil

	b.mainRenderPass.Release()
	b.depthRenderPass.Release()

	depthFormat, err := b.ctx.findDepthFormat()
	if err != nil {
		return errors.Wrap(err, "cannot find suitable depth image format")
	}

	mainPass, err := b.createMainRenderPass(depthFormat)
	if err != nil {
		return errors.Wrap(err, "main")
	}
	b.mainRenderPass = mainPass

	depthPass, err := b.createDepthRenderPass(depthFormat)
	if err != nil {
		return errors.Wrap(err, "depth pre-pass")
	}
	b.depthRenderPass = depthPass

	return nil
}

func (b *Backend) createMainRenderPass(depthFormat vk.Format) (*lifetime.Owned[vk.RenderPass], error) {
	colorAttachmentRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}

	depthAttachmentRef := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       []vk.AttachmentReference{colorAttachmentRef},
		PDepthStencilAttachment: &depthAttachmentRef,
	}

	dependency := vk.SubpassDependency{
		SrcSubpass: vk.SubpassExternal,
		DstSubpass: 0,
		SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}

	return b.createRenderPass(
		MainAttachments(b.swapchainFormat, depthFormat),
		subpass,
		[]vk.SubpassDependency{dependency},
	)
}

func (b *Backend) createDepthRenderPass(depthFormat vk.Format) (*lifetime.Owned[vk.RenderPass], error) {
	depthAttachmentRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    0,
		PDepthStencilAttachment: &depthAttachmentRef,
	}

	dependencies := []vk.SubpassDependency{
		{
			SrcSubpass:    vk.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			SrcAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
			DstAccessMask: vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
		},
		{
			SrcSubpass:    0,
			DstSubpass:    vk.SubpassExternal,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit),
			SrcAccessMask: vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			DstStageMask: vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) |
				vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
			DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
		},
	}

	return b.createRenderPass(
		[]vk.AttachmentDescription{DepthPrePassAttachment(depthFormat)},
		subpass,
		dependencies,
	)
}

func (b *Backend) createRenderPass(
	attachments []vk.AttachmentDescription,
	subpass vk.SubpassDescription,
	dependencies []vk.SubpassDependency,
) (*lifetime.Owned[vk.RenderPass], error) {
	device := b.ctx.device.Get()

	renderPassInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}

	var renderPass vk.RenderPass
	res := vk.CreateRenderPass(device, &renderPassInfo, nil, &renderPass)
	if err := vk.Error(res); err != nil {
		return nil, errors.Wrap(err, "failed to create render pass")
	}

	return lifetime.Track(b.ledger, "renderPass", renderPass, func(r vk.RenderPass) {
		vk.DestroyRenderPass(device, r, nil)
	}), nil
}

// createPipelineLayouts creates the layouts of the three pipelines from the
// descriptor set layouts.
func (b *Backend) createPipelineLayouts() error {
	layouts := []struct {
		name   string
		order  []SetLayout
		ranges []vk.PushConstantRange
		dst    **lifetime.Owned[vk.PipelineLayout]
	}{
		{"main", MainSetOrder, MainPushConstantRanges(), &b.mainLayout},
		{"depth", DepthSetOrder, nil, &b.depthLayout},
		{"light culling", LightCullingSetOrder, LightCullingPushConstantRanges(), &b.cullingLayout},
	}

	for _, l := range layouts {
		layout, err := b.createPipelineLayout(l.order, l.ranges)
		if err != nil {
			return errors.Wrapf(err, "%s pipeline layout", l.name)
		}
		*l.dst = layout
		b.static.Push(layout)
	}

	return nil
}

func (b *Backend) createPipelineLayout(
	order []SetLayout,
	ranges []vk.PushConstantRange,
) (*lifetime.Owned[vk.PipelineLayout], error) {
	device := b.ctx.device.Get()

	setLayouts := make([]vk.DescriptorSetLayout, 0, len(order))
	for _, set := range order {
		setLayouts = append(setLayouts, b.setLayouts[set].Get())
	}

	pipelineLayoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}

	var pipelineLayout vk.PipelineLayout
	res := vk.CreatePipelineLayout(device, &pipelineLayoutInfo, nil, &pipelineLayout)
	if err := vk.Error(res); err != nil {
		return nil, errors.Wrap(err, "failed to create pipeline layout")
	}

	return lifetime.Track(b.ledger, "pipelineLayout", pipelineLayout, func(l vk.PipelineLayout) {
		vk.DestroyPipelineLayout(device, l, nil)
	}), nil
}

func (b *Backend) createShaderModule(name string) (vk.ShaderModule, error) {
	code, ok := b.shaders[name]
	if !ok {
		return vk.NullShaderModule, errors.Newf("shader %s was not loaded", name)
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    unsafer.SliceBytesToUint32(code),
	}

	var shaderModule vk.ShaderModule
	res := vk.CreateShaderModule(b.ctx.device.Get(), &createInfo, nil, &shaderModule)
	if err := vk.Error(res); err != nil {
		return vk.NullShaderModule, errors.Wrapf(err, "creating %s shader module", name)
	}
	return shaderModule, nil
}

// releasePipelines destroys the derived depth pipeline before its base.
func (b *Backend) releasePipelines() {
	b.cullingPipeline.Release()
	b.depthPipeline.Release()
	b.mainPipeline.Release()
}

// CreatePipelines creates the main graphics pipeline, the depth pipeline
// derived from it and the light culling compute pipeline.
func (b *Backend) CreatePipelines() error {
	b.releasePipelines()

	device := b.ctx.device.Get()
	modules := make(map[string]vk.ShaderModule, len(shaders.All))
	defer func() {
		for _, module := range modules {
			vk.DestroyShaderModule(device, module, nil)
		}
	}()

	for _, name := range shaders.All {
		module, err := b.createShaderModule(name)
		if err != nil {
			return err
		}
		modules[name] = module
	}

	mainPipeline, err := b.createGraphicsPipeline(modules, false)
	if err != nil {
		return errors.Wrap(err, "main pipeline")
	}
	b.mainPipeline = b.trackPipeline(mainPipeline)

	depthPipeline, err := b.createGraphicsPipeline(modules, true)
	if err != nil {
		return errors.Wrap(err, "depth pipeline")
	}
	b.depthPipeline = b.trackPipeline(depthPipeline)

	cullingPipeline, err := b.createComputePipeline(modules[shaders.LightCullingComp])
	if err != nil {
		return errors.Wrap(err, "light culling pipeline")
	}
	b.cullingPipeline = b.trackPipeline(cullingPipeline)

	return nil
}

func (b *Backend) trackPipeline(pipeline vk.Pipeline) *lifetime.Owned[vk.Pipeline] {
	device := b.ctx.device.Get()
	return lifetime.Track(b.ledger, "pipeline", pipeline, func(p vk.Pipeline) {
		vk.DestroyPipeline(device, p, nil)
	})
}

// createGraphicsPipeline creates the main pipeline or, with depthOnly, the
// depth pre-pass pipeline as a derivative of the main one.
func (b *Backend) createGraphicsPipeline(
	modules map[string]vk.ShaderModule,
	depthOnly bool,
) (vk.Pipeline, error) {
	shaderStages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: modules[shaders.ForwardPlusVert],
			PName:  "main\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: modules[shaders.ForwardPlusFrag],
			PName:  "main\x00",
		},
	}

	bindingDescription := models.BindingDescription()
	attributeDescriptions := models.AttributeDescriptions()

	if depthOnly {
		shaderStages = []vk.PipelineShaderStageCreateInfo{{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: modules[shaders.DepthVert],
			PName:  "main\x00",
		}}
		attributeDescriptions = attributeDescriptions[:1]
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,

		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions:    []vk.VertexInputBindingDescription{bindingDescription},

		VertexAttributeDescriptionCount: uint32(len(attributeDescriptions)),
		PVertexAttributeDescriptions:    attributeDescriptions,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}

	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
		PViewports:    []vk.Viewport{b.viewport()},
		PScissors:     []vk.Rect2D{b.scissor()},
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1,
		CullMode:                vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit |
				vk.ColorComponentGBit |
				vk.ColorComponentBBit |
				vk.ColorComponentABit,
		),
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorOne,
		DstColorBlendFactor: vk.BlendFactorZero,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
	}

	colorBlending := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments: []vk.PipelineColorBlendAttachmentState{
			colorBlendAttachment,
		},
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.True,
		DepthWriteEnable:      vk.True,
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		MinDepthBounds:        0,
		MaxDepthBounds:        1,
		StencilTestEnable:     vk.False,
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		Flags:               vk.PipelineCreateFlags(vk.PipelineCreateAllowDerivativesBit),
		StageCount:          uint32(len(shaderStages)),
		PStages:             shaderStages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlending,
		PDynamicState:       &dynamicState,
		Layout:              b.mainLayout.Get(),
		RenderPass:          b.mainRenderPass.Get(),
		Subpass:             0,
		BasePipelineHandle:  vk.Pipeline(vk.NullHandle),
		BasePipelineIndex:   -1,
	}

	if depthOnly {
		colorBlending.AttachmentCount = 0
		colorBlending.PAttachments = nil

		pipelineInfo.Flags = vk.PipelineCreateFlags(vk.PipelineCreateDerivativeBit)
		pipelineInfo.Layout = b.depthLayout.Get()
		pipelineInfo.RenderPass = b.depthRenderPass.Get()
		pipelineInfo.BasePipelineHandle = b.mainPipeline.Get()
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(
		b.ctx.device.Get(),
		vk.PipelineCache(vk.NullHandle),
		1,
		[]vk.GraphicsPipelineCreateInfo{pipelineInfo},
		nil,
		pipelines,
	)
	if err := vk.Error(res); err != nil {
		return vk.Pipeline(vk.NullHandle), errors.Wrap(err, "failed to create graphics pipeline")
	}

	return pipelines[0], nil
}

func (b *Backend) createComputePipeline(module vk.ShaderModule) (vk.Pipeline, error) {
	pipelineInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  "main\x00",
		},
		Layout:             b.cullingLayout.Get(),
		BasePipelineHandle: vk.Pipeline(vk.NullHandle),
		BasePipelineIndex:  -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateComputePipelines(
		b.ctx.device.Get(),
		vk.PipelineCache(vk.NullHandle),
		1,
		[]vk.ComputePipelineCreateInfo{pipelineInfo},
		nil,
		pipelines,
	)
	if err := vk.Error(res); err != nil {
		return vk.Pipeline(vk.NullHandle), errors.Wrap(err, "failed to create compute pipeline")
	}

	return pipelines[0], nil
}

func (b *Backend) viewport() vk.Viewport {
	return vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(b.extent.Width),
		Height:   float32(b.extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

func (b *Backend) scissor() vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: b.extent,
	}
}

package vkr

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/vulkan-forwardplus-go/renderer"
)

// SetLayout identifies one of the descriptor set layouts shared by the
// pipelines.
type SetLayout int

const (
	// ObjectSet holds the model matrix, the albedo map and the normal map.
	ObjectSet SetLayout = iota

	// CameraSet holds the camera uniform buffer.
	CameraSet

	// LightCullingSet holds the per tile light lists and the point lights.
	LightCullingSet

	// IntermediateSet holds the depth written by the depth pre-pass.
	IntermediateSet

	setLayoutCount
)

func (s SetLayout) String() string {
	switch s {
	case ObjectSet:
		return "object"
	case CameraSet:
		return "camera"
	case LightCullingSet:
		return "light_culling"
	case IntermediateSet:
		return "intermediate"
	default:
		return "unknown"
	}
}

var (
	fragmentAndCompute = vk.ShaderStageFlags(vk.ShaderStageFragmentBit) |
		vk.ShaderStageFlags(vk.ShaderStageComputeBit)

	allStages = vk.ShaderStageFlags(vk.ShaderStageVertexBit) | fragmentAndCompute
)

// SetLayoutBindings returns the bindings of a descriptor set layout. They
// mirror the set declarations in the shaders.
func SetLayoutBindings(set SetLayout) []vk.DescriptorSetLayoutBinding {
	switch set {
	case ObjectSet:
		return []vk.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
			},
			{
				Binding:         1,
				DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			},
			{
				Binding:         2,
				DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			},
		}
	case CameraSet:
		return []vk.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,
				StageFlags:      allStages,
			},
		}
	case LightCullingSet:
		return []vk.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  vk.DescriptorTypeStorageBuffer,
				DescriptorCount: 1,
				StageFlags:      fragmentAndCompute,
			},
			{
				Binding:         1,
				DescriptorType:  vk.DescriptorTypeStorageBuffer,
				DescriptorCount: 1,
				StageFlags:      fragmentAndCompute,
			},
		}
	case IntermediateSet:
		return []vk.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,
				StageFlags:      fragmentAndCompute,
			},
		}
	}

	return nil
}

// Set orders of the pipeline layouts. Set numbers in the shaders are indices
// into these.
var (
	MainSetOrder         = []SetLayout{ObjectSet, CameraSet, LightCullingSet, IntermediateSet}
	DepthSetOrder        = []SetLayout{ObjectSet, CameraSet}
	LightCullingSetOrder = []SetLayout{LightCullingSet, CameraSet, IntermediateSet}
)

// MainPushConstantRanges is the push constant range of the main pipeline.
func MainPushConstantRanges() []vk.PushConstantRange {
	return []vk.PushConstantRange{{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		Offset:     0,
		Size:       renderer.PushConstantsSize,
	}}
}

// LightCullingPushConstantRanges is the push constant range of the light
// culling pipeline. Offset and size match MainPushConstantRanges so the
// same PushConstants value serves both.
func LightCullingPushConstantRanges() []vk.PushConstantRange {
	return []vk.PushConstantRange{{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		Offset:     0,
		Size:       renderer.PushConstantsSize,
	}}
}

// DescriptorPoolSizes returns what the descriptor pool has to hold for one
// set of every layout.
func DescriptorPoolSizes() ([]vk.DescriptorPoolSize, uint32) {
	counts := make(map[vk.DescriptorType]uint32)
	var order []vk.DescriptorType

	for set := SetLayout(0); set < setLayoutCount; set++ {
		for _, binding := range SetLayoutBindings(set) {
			if _, ok := counts[binding.DescriptorType]; !ok {
				order = append(order, binding.DescriptorType)
			}
			counts[binding.DescriptorType] += binding.DescriptorCount
		}
	}

	sizes := make([]vk.DescriptorPoolSize, 0, len(order))
	for _, t := range order {
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            t,
			DescriptorCount: counts[t],
		})
	}

	return sizes, uint32(setLayoutCount)
}

// DepthPrePassAttachment describes the only attachment of the depth pre-pass.
// The pass leaves the image ready to be sampled by light culling and the main
// pass.
func DepthPrePassAttachment(depthFormat vk.Format) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         depthFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutShaderReadOnlyOptimal,
	}
}

// MainAttachments describes the colour and depth attachments of the main pass.
func MainAttachments(colorFormat, depthFormat vk.Format) []vk.AttachmentDescription {
	return []vk.AttachmentDescription{
		{
			Format:         colorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
		{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}
}

// transition holds the synchronisation scope of an image layout change.
type transition struct {
	srcAccess vk.AccessFlags
	dstAccess vk.AccessFlags
	srcStage  vk.PipelineStageFlags
	dstStage  vk.PipelineStageFlags
}

// transitionFor returns the access masks and stages for moving an image from
// oldLayout to newLayout.
func transitionFor(oldLayout, newLayout vk.ImageLayout) (transition, error) {
	var t transition

	if oldLayout == vk.ImageLayoutUndefined &&
		newLayout == vk.ImageLayoutTransferDstOptimal {

		t.dstAccess = vk.AccessFlags(vk.AccessTransferWriteBit)
		t.srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		t.dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)

	} else if oldLayout == vk.ImageLayoutTransferDstOptimal &&
		newLayout == vk.ImageLayoutShaderReadOnlyOptimal {

		t.srcAccess = vk.AccessFlags(vk.AccessTransferWriteBit)
		t.dstAccess = vk.AccessFlags(vk.AccessShaderReadBit)
		t.srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		t.dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)

	} else if oldLayout == vk.ImageLayoutUndefined &&
		newLayout == vk.ImageLayoutDepthStencilAttachmentOptimal {

		t.dstAccess = vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) |
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
		t.srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		t.dstStage = vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)

	} else if oldLayout == vk.ImageLayoutShaderReadOnlyOptimal &&
		newLayout == vk.ImageLayoutDepthStencilAttachmentOptimal {

		t.srcAccess = vk.AccessFlags(vk.AccessShaderReadBit)
		t.dstAccess = vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) |
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
		t.srcStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
		t.dstStage = vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)

	} else {
		return t, errors.Wrapf(ErrUnsupportedLayoutTransition, "%d -> %d", oldLayout, newLayout)
	}

	return t, nil
}

// aspectMask returns the image aspects touched by a layout transition of an
// image with the given format.
func aspectMask(format vk.Format, newLayout vk.ImageLayout) vk.ImageAspectFlags {
	if newLayout != vk.ImageLayoutDepthStencilAttachmentOptimal && !isDepthFormat(format) {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}

	mask := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if hasStencilComponent(format) {
		mask |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return mask
}

var depthFormatCandidates = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

func isDepthFormat(format vk.Format) bool {
	for _, f := range depthFormatCandidates {
		if f == format {
			return true
		}
	}
	return format == vk.FormatD16Unorm || format == vk.FormatD16UnormS8Uint
}

func hasStencilComponent(format vk.Format) bool {
	return format == vk.FormatD32SfloatS8Uint || format == vk.FormatD24UnormS8Uint ||
		format == vk.FormatD16UnormS8Uint
}

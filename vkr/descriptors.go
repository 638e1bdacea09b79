package vkr

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
	"github.com/xlab/linmath"

	"github.com/ironsmile/vulkan-forwardplus-go/lifetime"
	"github.com/ironsmile/vulkan-forwardplus-go/unsafer"
)

// objectUbo is the per object uniform buffer of the vertex stage.
type objectUbo struct {
	model linmath.Mat4x4
}

func (b *Backend) createDescriptorSetLayouts() error {
	device := b.ctx.device.Get()

	for set := SetLayout(0); set < setLayoutCount; set++ {
		bindings := SetLayoutBindings(set)

		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}

		var layout vk.DescriptorSetLayout
		res := vk.CreateDescriptorSetLayout(device, &layoutInfo, nil, &layout)
		if err := vk.Error(res); err != nil {
			return errors.Wrapf(err, "failed to create %s descriptor set layout", set)
		}

		b.setLayouts[set] = lifetime.Track(b.ledger, "descriptorSetLayout", layout,
			func(l vk.DescriptorSetLayout) {
				vk.DestroyDescriptorSetLayout(device, l, nil)
			},
		)
		b.static.Push(b.setLayouts[set])
	}

	return nil
}

func (b *Backend) createDescriptorPool() error {
	device := b.ctx.device.Get()
	poolSizes, maxSets := DescriptorPoolSizes()

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		MaxSets:       maxSets,
	}

	var pool vk.DescriptorPool
	res := vk.CreateDescriptorPool(device, &poolInfo, nil, &pool)
	if err := vk.Error(res); err != nil {
		return errors.Wrap(err, "failed to create descriptor pool")
	}

	b.descriptorPool = lifetime.Track(b.ledger, "descriptorPool", pool, func(p vk.DescriptorPool) {
		vk.DestroyDescriptorPool(device, p, nil)
	})
	b.static.Push(b.descriptorPool)

	return nil
}

// createDescriptorSets allocates one set of every layout. The sets live as
// long as the pool.
func (b *Backend) createDescriptorSets() error {
	layouts := make([]vk.DescriptorSetLayout, setLayoutCount)
	for set := range layouts {
		layouts[set] = b.setLayouts[set].Get()
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     b.descriptorPool.Get(),
		DescriptorSetCount: uint32(setLayoutCount),
		PSetLayouts:        layouts,
	}

	res := vk.AllocateDescriptorSets(b.ctx.device.Get(), &allocInfo, &b.sets[0])
	if err := vk.Error(res); err != nil {
		return errors.Wrap(err, "failed to allocate descriptor sets")
	}

	return nil
}

// createObjectUniforms creates the uniform buffer with the model matrix. The
// scene is drawn in world space so the matrix is the identity.
func (b *Backend) createObjectUniforms() error {
	ubo := objectUbo{}
	ubo.model.Identity()

	buffer, err := b.ctx.createDeviceLocalBuffer(
		unsafer.StructToBytes(&ubo),
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
	)
	if err != nil {
		return err
	}
	b.objectUniforms = buffer
	b.static.Push(buffer)

	return nil
}

func (b *Backend) writeObjectSet() {
	bufferInfo := vk.DescriptorBufferInfo{
		Buffer: b.objectUniforms.Handle(),
		Offset: 0,
		Range:  vk.DeviceSize(vk.WholeSize),
	}

	albedoInfo := vk.DescriptorImageInfo{
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		ImageView:   b.albedo.View(),
		Sampler:     b.textureSampler.Get(),
	}

	normalInfo := vk.DescriptorImageInfo{
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		ImageView:   b.normalMap.View(),
		Sampler:     b.textureSampler.Get(),
	}

	set := b.sets[ObjectSet]
	b.updateDescriptorSets(
		vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      0,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfo},
		},
		vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      1,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			PImageInfo:      []vk.DescriptorImageInfo{albedoInfo},
		},
		vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      2,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			PImageInfo:      []vk.DescriptorImageInfo{normalInfo},
		},
	)
}

func (b *Backend) writeCameraSet() {
	b.updateDescriptorSets(vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          b.sets[CameraSet],
		DstBinding:      0,
		DstArrayElement: 0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: b.cameraUniforms.Handle(),
			Offset: 0,
			Range:  vk.DeviceSize(vk.WholeSize),
		}},
	})
}

// CreateLightVisibilityBuffer replaces the storage buffer of per tile light
// lists and points the light culling set at it and at the point lights.
func (b *Backend) CreateLightVisibilityBuffer(size uint64) error {
	b.visibility.Release()
	b.visibility = nil

	buffer, err := b.ctx.createBuffer(
		vk.DeviceSize(size),
		vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	)
	if err != nil {
		return errors.Wrap(err, "creating light visibility buffer")
	}
	b.visibility = buffer

	set := b.sets[LightCullingSet]
	b.updateDescriptorSets(
		vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      0,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: b.visibility.Handle(),
				Offset: 0,
				Range:  vk.DeviceSize(vk.WholeSize),
			}},
		},
		vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      1,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: b.lights.Handle(),
				Offset: 0,
				Range:  vk.DeviceSize(vk.WholeSize),
			}},
		},
	)

	b.logger.WithField("bytes", size).Debug("light visibility buffer created")
	return nil
}

// UpdateIntermediateDescriptorSet points the intermediate set at the current
// pre-pass depth image.
func (b *Backend) UpdateIntermediateDescriptorSet() error {
	if b.prePassDepth == nil {
		return errors.New("depth pre-pass image does not exist")
	}

	b.updateDescriptorSets(vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          b.sets[IntermediateSet],
		DstBinding:      0,
		DstArrayElement: 0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			ImageView:   b.prePassDepth.View(),
			Sampler:     b.depthSampler.Get(),
		}},
	})

	return nil
}

func (b *Backend) updateDescriptorSets(writes ...vk.WriteDescriptorSet) {
	vk.UpdateDescriptorSets(
		b.ctx.device.Get(),
		uint32(len(writes)),
		writes,
		0,
		nil,
	)
}

// createSamplers creates the filtered sampler of the material textures and
// the sampler light culling and the debug views read depth with.
func (b *Backend) createSamplers() error {
	limits := b.ctx.deviceProperties.Limits

	textureSampler, err := b.createSampler(vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           limits.MaxSamplerAnisotropy,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MipLodBias:              0,
		MinLod:                  0,
		MaxLod:                  0,
	})
	if err != nil {
		return errors.Wrap(err, "texture sampler")
	}
	b.textureSampler = textureSampler
	b.static.Push(textureSampler)

	depthSampler, err := b.createSampler(vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterNearest,
		MinFilter:               vk.FilterNearest,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorFloatOpaqueWhite,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeNearest,
	})
	if err != nil {
		return errors.Wrap(err, "depth sampler")
	}
	b.depthSampler = depthSampler
	b.static.Push(depthSampler)

	return nil
}

func (b *Backend) createSampler(info vk.SamplerCreateInfo) (*lifetime.Owned[vk.Sampler], error) {
	device := b.ctx.device.Get()

	var sampler vk.Sampler
	res := vk.CreateSampler(device, &info, nil, &sampler)
	if err := vk.Error(res); err != nil {
		return nil, errors.Wrap(err, "failed to create sampler")
	}

	return lifetime.Track(b.ledger, "sampler", sampler, func(s vk.Sampler) {
		vk.DestroySampler(device, s, nil)
	}), nil
}

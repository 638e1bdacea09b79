package vkr

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
	"github.com/xlab/tablewriter"

	"github.com/ironsmile/vulkan-forwardplus-go/queues"
)

// DescribeDevices writes a table of every GPU visible to the instance and
// whether the renderer could use it with window.
func DescribeDevices(w io.Writer, window Window) error {
	instance, err := createInstance(window, engineName, false)
	if err != nil {
		return errors.Wrap(err, "createInstance")
	}
	defer vk.DestroyInstance(instance, nil)

	surface, err := createSurface(window, instance)
	if err != nil {
		return errors.Wrap(err, "createSurface")
	}
	defer vk.DestroySurface(instance, surface, nil)

	devices, err := physicalDevices(instance)
	if err != nil {
		return err
	}

	table := tablewriter.CreateTable()
	table.UTF8Box()
	table.AddTitle("VULKAN DEVICES")

	for i, device := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &properties)
		properties.Deref()

		if i > 0 {
			table.AddSeparator()
		}

		table.AddRow("Device", vk.ToString(properties.DeviceName[:]))
		table.AddRow("Type", deviceTypeName(properties.DeviceType))
		table.AddRow("API Version", vk.Version(properties.ApiVersion))
		table.AddRow("Driver Version", vk.Version(properties.DriverVersion))

		dq := deviceQueues{device: device, surface: surface}
		table.AddRow("Queue families", len(dq.QueueFamilies()))
		if indices, err := queues.Select(dq); err == nil {
			table.AddRow("Graphics / compute / present", fmt.Sprintf("%d / %d / %d",
				indices.Graphics.Get(), indices.Compute.Get(), indices.Present.Get()))
		}

		score, reason := deviceScore(device, surface)
		if score == 0 {
			table.AddRow("Usable", "no: "+reason)
		} else {
			table.AddRow("Usable", fmt.Sprintf("yes (score %d)", score))
		}
	}

	_, err = fmt.Fprintln(w, table.Render())
	return err
}

func deviceTypeName(gpuType vk.PhysicalDeviceType) string {
	switch gpuType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "Integrated GPU"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "Discrete GPU"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "Virtual GPU"
	case vk.PhysicalDeviceTypeCpu:
		return "CPU"
	default:
		return "Other"
	}
}

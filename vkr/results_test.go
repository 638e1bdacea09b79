package vkr

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
)

// resultCalls are the vulkan-go functions used by the backend which return a
// vk.Result.
var resultCalls = map[string]bool{
	"AcquireNextImage":                     true,
	"AllocateCommandBuffers":               true,
	"AllocateDescriptorSets":               true,
	"AllocateMemory":                       true,
	"BeginCommandBuffer":                   true,
	"BindBufferMemory":                     true,
	"BindImageMemory":                      true,
	"CreateBuffer":                         true,
	"CreateCommandPool":                    true,
	"CreateComputePipelines":               true,
	"CreateDescriptorPool":                 true,
	"CreateDescriptorSetLayout":            true,
	"CreateDevice":                         true,
	"CreateFence":                          true,
	"CreateFramebuffer":                    true,
	"CreateGraphicsPipelines":              true,
	"CreateImage":                          true,
	"CreateImageView":                      true,
	"CreateInstance":                       true,
	"CreatePipelineLayout":                 true,
	"CreateRenderPass":                     true,
	"CreateSampler":                        true,
	"CreateSemaphore":                      true,
	"CreateShaderModule":                   true,
	"CreateSwapchain":                      true,
	"DeviceWaitIdle":                       true,
	"EndCommandBuffer":                     true,
	"EnumerateDeviceExtensionProperties":   true,
	"EnumerateInstanceExtensionProperties": true,
	"EnumerateInstanceLayerProperties":     true,
	"EnumeratePhysicalDevices":             true,
	"GetPhysicalDeviceSurfaceCapabilities": true,
	"GetPhysicalDeviceSurfaceFormats":      true,
	"GetPhysicalDeviceSurfacePresentModes": true,
	"GetPhysicalDeviceSurfaceSupport":      true,
	"GetSwapchainImages":                   true,
	"MapMemory":                            true,
	"QueuePresent":                         true,
	"QueueSubmit":                          true,
	"QueueWaitIdle":                        true,
	"ResetFences":                          true,
	"WaitForFences":                        true,
}

// TestVulkanResultsAreChecked makes sure no vk.Result is dropped on the floor
// either as a bare statement or by assigning it to the blank identifier.
func TestVulkanResultsAreChecked(t *testing.T) {
	g := NewWithT(t)

	files, err := filepath.Glob("*.go")
	g.Expect(err).NotTo(HaveOccurred())

	fset := token.NewFileSet()
	var dropped []string

	isResultCall := func(expr ast.Expr) bool {
		call, ok := expr.(*ast.CallExpr)
		if !ok {
			return false
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return false
		}
		pkg, ok := sel.X.(*ast.Ident)
		return ok && pkg.Name == "vk" && resultCalls[sel.Sel.Name]
	}

	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}

		file, err := parser.ParseFile(fset, name, nil, 0)
		g.Expect(err).NotTo(HaveOccurred())

		ast.Inspect(file, func(n ast.Node) bool {
			switch stmt := n.(type) {
			case *ast.ExprStmt:
				if isResultCall(stmt.X) {
					dropped = append(dropped, fset.Position(stmt.Pos()).String())
				}
			case *ast.AssignStmt:
				for i, lhs := range stmt.Lhs {
					id, ok := lhs.(*ast.Ident)
					if ok && id.Name == "_" && i < len(stmt.Rhs) && isResultCall(stmt.Rhs[i]) {
						dropped = append(dropped, fset.Position(stmt.Pos()).String())
					}
				}
			}
			return true
		})
	}

	g.Expect(files).NotTo(BeEmpty())
	g.Expect(dropped).To(BeEmpty())
}

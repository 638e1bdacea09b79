package renderer_test

import (
	"github.com/go-gl/mathgl/mgl32"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/xlab/linmath"

	"github.com/ironsmile/vulkan-forwardplus-go/lighting"
	"github.com/ironsmile/vulkan-forwardplus-go/renderer"
)

var recreationSequence = []string{
	"WaitIdle",
	"CreateSwapchain",
	"CreateImageViews",
	"CreateRenderPasses",
	"CreatePipelines",
	"CreateDepthResources",
	"CreateFramebuffers",
	"CreateLightVisibilityBuffer",
	"UpdateIntermediateDescriptorSet",
	"RecordGraphicsCommands",
	"RecordLightCullingCommands",
	"RecordDepthPrePassCommands",
}

var frameSequence = []string{
	"AcquireNextImage",
	"UploadCamera",
	"UploadLights",
	"SubmitDepthPrePass",
	"SubmitLightCulling",
	"SubmitMain",
	"Present",
}

func testLights() []lighting.PointLight {
	lights := []lighting.PointLight{
		lighting.NewPointLight(linmath.Vec3{0, 0, 0}),
		lighting.NewPointLight(linmath.Vec3{1, 19.9, -2}),
		lighting.NewPointLight(linmath.Vec3{-14, -4, 4}),
	}
	lights[1].Radius = 2.5
	lights[2].Intensity = linmath.Vec3{0.25, 0.5, 1}
	return lights
}

var _ = Describe("Renderer", func() {
	var (
		backend *fakeBackend
		r       *renderer.Renderer
		logger  *logrus.Logger
	)

	BeforeEach(func() {
		logger, _ = test.NewNullLogger()
		backend = newFakeBackend()

		var err error
		r, err = renderer.New(renderer.Config{
			Lights:      testLights(),
			LightBounds: lighting.DefaultBounds,
			Logger:      logger,
		}, backend, renderer.Extent{Width: 800, Height: 600})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("creation", func() {
		It("builds swapchain resources in order", func() {
			Expect(backend.calls).To(Equal(recreationSequence))
			Expect(r.Extent()).To(Equal(renderer.Extent{Width: 800, Height: 600}))
		})

		It("sizes the light visibility buffer from the tile grid", func() {
			Expect(backend.visibilitySize).To(Equal(uint64(50 * 38 * lighting.TileRecordSize)))
		})

		It("pushes the viewport and tile grid", func() {
			Expect(backend.pushConstants).To(HaveLen(2))
			Expect(backend.pushConstants[0]).To(Equal(renderer.PushConstants{
				ViewportSize: [2]int32{800, 600},
				TileNums:     [2]int32{50, 38},
			}))
			Expect(backend.pushConstants[1]).To(Equal(backend.pushConstants[0]))
		})

		It("refuses an empty window", func() {
			_, err := renderer.New(renderer.Config{}, newFakeBackend(), renderer.Extent{Width: 0, Height: 600})
			Expect(err).To(HaveOccurred())
		})

		It("refuses too many lights", func() {
			lights := make([]lighting.PointLight, lighting.MaxPointLightCount+1)
			_, err := renderer.New(renderer.Config{Lights: lights}, newFakeBackend(),
				renderer.Extent{Width: 10, Height: 10})
			Expect(err).To(MatchError(ContainSubstring("point lights")))
		})

		It("reports the failing step", func() {
			b := newFakeBackend()
			b.failOn = "CreatePipelines"
			_, err := renderer.New(renderer.Config{}, b, renderer.Extent{Width: 10, Height: 10})
			Expect(err).To(MatchError(ContainSubstring("createPipelines")))
		})
	})

	Describe("drawing a frame", func() {
		BeforeEach(func() {
			backend.resetCalls()
		})

		It("submits depth pre-pass, culling and main pass in order", func() {
			for range 3 {
				Expect(r.RequestDraw(0.016)).To(Succeed())
			}

			var expected []string
			for range 3 {
				expected = append(expected, frameSequence...)
			}
			Expect(backend.calls).To(Equal(expected))
			Expect(r.Frames()).To(BeEquivalentTo(3))
		})

		It("uploads lights bit for bit through the staging buffer", func() {
			Expect(r.RequestDraw(0.5)).To(Succeed())

			uploaded, err := lighting.Unpack(backend.lightBuffer)
			Expect(err).NotTo(HaveOccurred())
			Expect(uploaded).To(Equal(r.Lights()))
		})

		It("drifts lights up and wraps them at the top of the bounds", func() {
			Expect(r.RequestDraw(0.5)).To(Succeed())

			lights := r.Lights()
			Expect(lights[0].Pos[1]).To(BeNumerically("~", 1.5, 1e-5))
			Expect(lights[1].Pos[1]).To(BeNumerically("~", 19.9+1.5-25, 1e-4))
			Expect(lights[2].Pos[1]).To(BeNumerically("~", -2.5, 1e-5))
		})

		It("uploads the camera for the current extent", func() {
			view := mgl32.LookAtV(mgl32.Vec3{0, 2, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
			r.SetCamera(view, mgl32.Vec3{0, 2, 5})
			Expect(r.RequestDraw(0)).To(Succeed())

			Expect(backend.camera.View).To(Equal(view))
			Expect(backend.camera.Position).To(Equal(mgl32.Vec3{0, 2, 5}))
			Expect(backend.camera.ProjView).To(Equal(backend.camera.Proj.Mul4(view)))
		})

		It("skips the frame when the swapchain is out of date on acquire", func() {
			backend.acquireStatus = []renderer.Status{renderer.StatusOutOfDate}

			Expect(r.RequestDraw(0.016)).To(Succeed())
			Expect(backend.calls).To(Equal(append([]string{"AcquireNextImage"}, recreationSequence...)))
			Expect(backend.calls).NotTo(ContainElement("SubmitDepthPrePass"))
			Expect(r.Frames()).To(BeZero())
		})

		It("keeps drawing with a suboptimal image", func() {
			backend.acquireStatus = []renderer.Status{renderer.StatusSuboptimal}

			Expect(r.RequestDraw(0.016)).To(Succeed())
			Expect(backend.calls).To(Equal(frameSequence))
		})

		DescribeTable("recreates after presenting",
			func(status renderer.Status) {
				backend.presentStatus = []renderer.Status{status}

				Expect(r.RequestDraw(0.016)).To(Succeed())
				Expect(backend.calls).To(Equal(append(append([]string{}, frameSequence...), recreationSequence...)))
				Expect(r.Frames()).To(BeEquivalentTo(1))
			},
			Entry("out of date", renderer.StatusOutOfDate),
			Entry("suboptimal", renderer.StatusSuboptimal),
		)

		It("wraps backend errors", func() {
			backend.failOn = "SubmitLightCulling"
			Expect(r.RequestDraw(0.016)).To(MatchError(ContainSubstring("submitting light culling")))
		})
	})

	Describe("resizing", func() {
		It("does not leak or duplicate resources", func() {
			before := backend.ledger.Snapshot()

			for range 5 {
				Expect(r.Resize(1024, 768)).To(Succeed())
			}

			Expect(backend.ledger.Snapshot()).To(Equal(before))
			Expect(backend.ledger.Live("swapchain")).To(Equal(1))
			Expect(backend.ledger.Created("swapchain")).To(Equal(6))
			Expect(r.Extent()).To(Equal(renderer.Extent{Width: 1024, Height: 768}))
		})

		It("keeps framebuffers and depth images at the same size across repeated resizes", func() {
			Expect(r.Resize(1024, 768)).To(Succeed())
			firstDepth, firstFramebuffer := backend.depthExtent, backend.framebufferExtent
			firstVisibility := backend.visibilitySize

			Expect(r.Resize(1024, 768)).To(Succeed())

			want := renderer.Extent{Width: 1024, Height: 768}
			Expect(backend.depthExtent).To(Equal(want))
			Expect(backend.framebufferExtent).To(Equal(want))
			Expect(backend.depthExtent).To(Equal(firstDepth))
			Expect(backend.framebufferExtent).To(Equal(firstFramebuffer))
			Expect(backend.visibilitySize).To(Equal(firstVisibility))
			Expect(backend.ledger.Live("framebuffer")).To(Equal(fakeImageCount + 1))
			Expect(backend.ledger.Live("image")).To(Equal(2))
		})

		It("destroys objects only after everything built from them", func() {
			for _, size := range [][2]int{{1024, 768}, {640, 480}, {640, 480}} {
				Expect(r.Resize(size[0], size[1])).To(Succeed())
			}
			r.Close()

			Expect(backend.orderViolations).To(BeEmpty())
		})

		It("passes the previous swapchain as predecessor", func() {
			Expect(r.Resize(640, 480)).To(Succeed())

			Expect(backend.predecessors).To(HaveLen(2))
			Expect(backend.predecessors[0]).To(BeZero())
			Expect(backend.predecessors[1]).NotTo(BeZero())
		})

		It("uses the extent chosen by the swapchain", func() {
			backend.maxExtent = renderer.Extent{Width: 1000, Height: 500}
			Expect(r.Resize(1920, 1080)).To(Succeed())

			Expect(r.Extent()).To(Equal(renderer.Extent{Width: 1000, Height: 500}))
			last := backend.pushConstants[len(backend.pushConstants)-1]
			Expect(last.ViewportSize).To(Equal([2]int32{1000, 500}))
			Expect(last.TileNums).To(Equal([2]int32{63, 32}))
		})

		DescribeTable("ignores empty sizes",
			func(width, height int) {
				backend.resetCalls()
				Expect(r.Resize(width, height)).To(Succeed())
				Expect(backend.calls).To(BeEmpty())
				Expect(r.Extent()).To(Equal(renderer.Extent{Width: 800, Height: 600}))
			},
			Entry("zero width", 0, 600),
			Entry("zero height", 800, 0),
			Entry("negative", -1, -1),
		)
	})

	Describe("debug views", func() {
		DescribeTable("normalises the index",
			func(target, expected int) {
				Expect(r.ChangeDebugViewIndex(target)).To(Succeed())
				Expect(r.DebugViewIndex()).To(Equal(expected))

				last := backend.pushConstants[len(backend.pushConstants)-1]
				Expect(last.DebugViewIndex).To(BeEquivalentTo(expected))
			},
			Entry("in range", 3, 3),
			Entry("wraps forward", 7, 2),
			Entry("count", renderer.DebugViewCount, 0),
			Entry("negative", -1, 4),
			Entry("far negative", -11, 4),
		)

		It("re-records command buffers through recreation", func() {
			backend.resetCalls()
			Expect(r.ChangeDebugViewIndex(1)).To(Succeed())
			Expect(backend.calls).To(Equal(recreationSequence))
		})
	})

	Describe("closing", func() {
		It("releases everything once", func() {
			Expect(r.Resize(300, 200)).To(Succeed())

			r.Close()
			r.Close()

			Expect(backend.closed).To(Equal(1))
			Expect(backend.ledger.LiveTotal()).To(BeZero())
		})

		It("rejects use after close", func() {
			r.Close()
			Expect(r.RequestDraw(0)).To(MatchError(renderer.ErrClosed))
			Expect(r.Resize(10, 10)).To(MatchError(renderer.ErrClosed))
		})
	})
})

var _ = Describe("PushConstants", func() {
	It("covers partial tiles", func() {
		pc := renderer.NewPushConstants(renderer.Extent{Width: 17, Height: 16}, renderer.DebugViewDepth)
		Expect(pc.TileNums).To(Equal([2]int32{2, 1}))
		Expect(pc.DebugViewIndex).To(BeEquivalentTo(3))
	})

	It("names debug views", func() {
		Expect(renderer.DebugViewName(renderer.DebugViewHeatmap)).To(Equal("light heat map"))
		Expect(renderer.DebugViewName(9)).To(Equal("unknown"))
	})
})

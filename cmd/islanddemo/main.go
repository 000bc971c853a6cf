// Command islanddemo is a minimal example binary exercising island's
// frame orchestration against a real window: it clears the swapchain
// and draws one triangle every frame, rebuilding its RenderModule fresh
// each time the way an application is expected to.
package main

import (
	"fmt"
	"os"

	"github.com/neshume/island"
	"github.com/neshume/island/backend"
	"github.com/neshume/island/config"
	"github.com/neshume/island/errs"
	"github.com/neshume/island/internal/rlog"
	"github.com/neshume/island/pipelinecache"
	"github.com/neshume/island/rendergraph"
	"github.com/neshume/island/shadercache"
	"github.com/spf13/cobra"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

type options struct {
	width, height      int
	validation         bool
	hotReload          bool
	pipelineCacheDir   string
	vertPath, fragPath string
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:   "islanddemo",
		Short: "Runs a single window clearing the screen and drawing one triangle per frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	flags := root.Flags()
	flags.IntVar(&opts.width, "width", 1280, "window width in pixels")
	flags.IntVar(&opts.height, "height", 720, "window height in pixels")
	flags.BoolVar(&opts.validation, "validation", true, "enable Vulkan validation layers")
	flags.BoolVar(&opts.hotReload, "hot-reload", false, "watch shader sources and rebuild modified modules")
	flags.StringVar(&opts.pipelineCacheDir, "pipeline-cache-dir", "", "directory to persist the pipeline cache blob between runs")
	flags.StringVar(&opts.vertPath, "vert", "shaders/triangle.vert.spv", "path to the vertex shader module")
	flags.StringVar(&opts.fragPath, "frag", "shaders/triangle.frag.spv", "path to the fragment shader module")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("islanddemo: initializing glfw: %w", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	window, err := glfw.CreateWindow(opts.width, opts.height, "islanddemo", nil, nil)
	if err != nil {
		return fmt.Errorf("islanddemo: creating window: %w", err)
	}

	app, err := backend.NewGraphicsApp("islanddemo", backend.Version{Major: 1, Minor: 0, Patch: 0})
	if err != nil {
		return fmt.Errorf("islanddemo: creating graphics app: %w", err)
	}
	if opts.validation {
		app.EnableLayer("VK_LAYER_KHRONOS_validation")
		app.EnableDebugging()
	}
	if err := app.SetWindow(window); err != nil {
		return fmt.Errorf("islanddemo: binding window: %w", err)
	}
	if err := app.Init(); err != nil {
		return fmt.Errorf("islanddemo: initializing device: %w", err)
	}
	defer app.Destroy()

	swapchain, err := app.Device.CreateSwapchain(app.VKSurface, app.GraphicsQueue, app.PresentQueue, &backend.CreateSwapchainOptions{
		ActualSize:                app.GetScreenExtent(),
		DesiredNumSwapchainImages: app.DefaultNumSwapchainImages,
	})
	if err != nil {
		return fmt.Errorf("islanddemo: creating swapchain: %w", err)
	}
	defer swapchain.Destroy()

	cfg := config.Default().
		WithValidation(opts.validation).
		WithHotReload(opts.hotReload).
		WithPipelineCacheDir(opts.pipelineCacheDir)

	renderer, err := island.NewRenderer(cfg, app.Device, app.GraphicsQueue, app.GraphicsQueue.QueueFamily, swapchain)
	if err != nil {
		return fmt.Errorf("islanddemo: creating renderer: %w", err)
	}
	defer renderer.Destroy()

	pipeline, err := buildTrianglePipeline(app.Device, renderer, swapchain, opts)
	if err != nil {
		return fmt.Errorf("islanddemo: building triangle pipeline: %w", err)
	}

	swapchainHandle := renderer.SwapchainHandle()
	extent := swapchain.Extent

	for !window.ShouldClose() {
		glfw.PollEvents()

		module := island.NewModule(renderer.Registry())
		pass := module.AddPass("triangle", rendergraph.PassDraw).
			SetColorAttachments(island.Attachment{
				Handle: swapchainHandle,
				Format: swapchain.Format,
				Layout: vk.ImageLayoutColorAttachmentOptimal,
			}).
			SetRoot(true)

		pass.SetExecute(func(e island.Encoder) {
			e.BindPipeline(pipeline.Key, true)
			e.SetViewport(0, 0, float32(extent.Width), float32(extent.Height), 0, 1)
			e.SetScissor(0, 0, extent.Width, extent.Height)
			e.Draw(3, 1, 0, 0)
		})

		if err := renderer.RenderFrame(module); err != nil {
			if isRecoverable(err) {
				rlog.Warnf("islanddemo: dropping frame: %v", err)
				continue
			}
			return fmt.Errorf("islanddemo: rendering frame: %w", err)
		}
	}
	return nil
}

func buildTrianglePipeline(device *backend.Device, renderer *island.Renderer, swapchain *backend.Swapchain, opts *options) (*pipelinecache.Pipeline, error) {
	vs, err := renderer.Shaders().Create(opts.vertPath, shadercache.StageVertex, nil)
	if err != nil {
		return nil, fmt.Errorf("compiling vertex stage: %w", err)
	}
	fs, err := renderer.Shaders().Create(opts.fragPath, shadercache.StageFragment, nil)
	if err != nil {
		return nil, fmt.Errorf("compiling fragment stage: %w", err)
	}

	layout, err := device.CreatePipelineLayout()
	if err != nil {
		return nil, fmt.Errorf("creating pipeline layout: %w", err)
	}

	cfg := device.CreateGraphicsPipelineConfig()
	cfg.SetPipelineLayout(layout)
	cfg.ShaderStages = []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vs.Key.Stage.VKShaderStage(),
			Module: vs.VK,
			PName:  "main\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  fs.Key.Stage.VKShaderStage(),
			Module: fs.VK,
			PName:  "main\x00",
		},
	}

	sig := pipelinecache.RenderPassSignature([]pipelinecache.AttachmentSignatureInput{
		{
			Format:      uint32(swapchain.Format),
			Samples:     uint32(vk.SampleCount1Bit),
			LoadOp:      uint32(vk.AttachmentLoadOpClear),
			StoreOp:     uint32(vk.AttachmentStoreOpStore),
			FinalLayout: uint32(vk.ImageLayoutPresentSrc),
		},
	})

	desc := pipelinecache.Description{
		Variant:       pipelinecache.VariantGraphics,
		Stages:        []*shadercache.Module{vs, fs},
		FixedFunction: pipelinecache.FixedFunctionState{Hash: sig, Config: cfg},
		RenderPassSig: sig,
		Extent:        swapchain.Extent,
		Layout:        layout,
	}
	return renderer.Pipelines().GetOrBuild(desc)
}

func isRecoverable(err error) bool {
	fe, ok := err.(*errs.FrameError)
	return ok && fe.Kind == errs.SwapchainOutOfDate
}

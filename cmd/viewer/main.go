package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/vulkan-renderer/internal/assets"
	"github.com/vkngwrapper/vulkan-renderer/internal/config"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu/vkdriver"
	"github.com/vkngwrapper/vulkan-renderer/internal/renderer"
)

func init() {
	// SDL and the presentation engine want the main thread.
	runtime.LockOSThread()
}

type flags struct {
	config          string
	width, height   int
	vertexShader    string
	fragmentShader  string
	model           string
	texture         string
	validation      bool
	presentMode     string
	logLevel        string
	uniformStrategy string
}

func newRootCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "viewer",
		Short:         "Draw a textured, spinning model with Vulkan",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&f.config, "config", "c", "", "TOML config file")
	cmd.Flags().IntVar(&f.width, "width", 0, "window width")
	cmd.Flags().IntVar(&f.height, "height", 0, "window height")
	cmd.Flags().StringVar(&f.vertexShader, "vertex-shader", "", "SPIR-V vertex shader")
	cmd.Flags().StringVar(&f.fragmentShader, "fragment-shader", "", "SPIR-V fragment shader")
	cmd.Flags().StringVar(&f.model, "model", "", "Wavefront OBJ model, a quad is drawn without one")
	cmd.Flags().StringVar(&f.texture, "texture", "", "PNG or JPEG texture")
	cmd.Flags().BoolVar(&f.validation, "validation", false, "enable the Khronos validation layer")
	cmd.Flags().StringVar(&f.presentMode, "present-mode", "", "fifo, mailbox or immediate")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().StringVar(&f.uniformStrategy, "uniform-strategy", "", "staged or host-visible")
	return cmd
}

// resolve loads the config file, if any, and applies the flags the user set.
func (f *flags) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		var err error
		cfg, err = config.Load(f.config)
		if err != nil {
			return cfg, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("width") {
		cfg.Window.Width = f.width
	}
	if changed("height") {
		cfg.Window.Height = f.height
	}
	if changed("vertex-shader") {
		cfg.Assets.VertexShader = f.vertexShader
	}
	if changed("fragment-shader") {
		cfg.Assets.FragmentShader = f.fragmentShader
	}
	if changed("model") {
		cfg.Assets.Model = f.model
	}
	if changed("texture") {
		cfg.Assets.Texture = f.texture
	}
	if changed("validation") {
		cfg.Render.Validation = f.validation
	}
	if changed("present-mode") {
		cfg.Render.PresentMode = f.presentMode
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("uniform-strategy") {
		cfg.Render.UniformStrategy = f.uniformStrategy
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	bundle, err := assets.LoadAll(ctx, assets.Paths{
		VertexShader:   cfg.Assets.VertexShader,
		FragmentShader: cfg.Assets.FragmentShader,
		Model:          cfg.Assets.Model,
		Texture:        cfg.Assets.Texture,
	})
	if err != nil {
		return err
	}

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow(cfg.Window.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Window.Width), int32(cfg.Window.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	defer window.Destroy()

	loader, err := vkdriver.NewLoader()
	if err != nil {
		return err
	}

	instance, err := vkdriver.Open(loader, vkdriver.InstanceOptions{
		ApplicationName: cfg.Window.Title,
		Extensions:      window.VulkanGetInstanceExtensions(),
		Validation:      cfg.Render.Validation,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	surface, err := instance.CreateSDLSurface(window)
	if err != nil {
		instance.Destroy()
		return err
	}

	uniforms := renderer.UniformStaged
	if cfg.HostVisibleUniforms() {
		uniforms = renderer.UniformHostVisible
	}

	r, err := renderer.New(instance, surface, renderer.Options{
		VertexShader:   bundle.VertexShader,
		FragmentShader: bundle.FragmentShader,
		Mesh:           bundle.Mesh,
		Texture:        bundle.Texture,
		PresentMode:    cfg.PresentMode(),
		DrawableSize: func() (int, int) {
			w, h := window.VulkanGetDrawableSize()
			return int(w), int(h)
		},
		Uniforms: uniforms,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer r.Close()

	return mainLoop(r)
}

func mainLoop(r *renderer.Renderer) error {
	rendering := true

appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
				case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
					rendering = true
					r.NotifyResized()
				}
			}
		}
		if rendering {
			err := r.DrawFrame()
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func main() {
	err := newRootCommand(&flags{}).ExecuteContext(context.Background())
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}

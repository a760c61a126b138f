// Package config holds the viewer settings, read from an optional TOML file
// and then overridden from the command line.
package config

import (
	"bufio"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/vkngwrapper/extensions/khr_surface"
)

const (
	UniformStaged      = "staged"
	UniformHostVisible = "host-visible"
)

var presentModes = map[string]khr_surface.PresentMode{
	"fifo":      khr_surface.PresentModeFIFO,
	"mailbox":   khr_surface.PresentModeMailbox,
	"immediate": khr_surface.PresentModeImmediate,
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type Assets struct {
	VertexShader   string `toml:"vertex_shader"`
	FragmentShader string `toml:"fragment_shader"`
	// Model and Texture are optional. Without a model a quad is drawn, without
	// a texture a white texel is sampled.
	Model   string `toml:"model"`
	Texture string `toml:"texture"`
}

type Render struct {
	Validation      bool   `toml:"validation"`
	PresentMode     string `toml:"present_mode"`
	UniformStrategy string `toml:"uniform_strategy"`
}

type Config struct {
	Window   Window `toml:"window"`
	Assets   Assets `toml:"assets"`
	Render   Render `toml:"render"`
	LogLevel string `toml:"log_level"`
}

func Default() Config {
	return Config{
		Window: Window{
			Title:  "Vulkan",
			Width:  800,
			Height: 600,
		},
		Assets: Assets{
			VertexShader:   "shaders/vert.spv",
			FragmentShader: "shaders/frag.spv",
		},
		Render: Render{
			Validation:      false,
			PresentMode:     "mailbox",
			UniformStrategy: UniformStaged,
		},
		LogLevel: "info",
	}
}

// Load reads filename over the defaults. Unknown keys are an error.
func Load(filename string) (Config, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return Config{}, errors.Wrap(err, "open config")
	}
	defer fp.Close()

	cfg, err := Read(bufio.NewReader(fp))
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", filename)
	}
	return cfg, nil
}

func Read(reader io.Reader) (Config, error) {
	cfg := Default()

	d := toml.NewDecoder(reader)
	d.DisallowUnknownFields()
	err := d.Decode(&cfg)
	if err != nil {
		return Config{}, errors.Wrap(err, "decode toml")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Assets.VertexShader == "" || c.Assets.FragmentShader == "" {
		return errors.New("both a vertex and a fragment shader are required")
	}
	if _, ok := presentModes[c.Render.PresentMode]; !ok {
		return errors.Newf("unknown present mode %q", c.Render.PresentMode)
	}
	if c.Render.UniformStrategy != UniformStaged && c.Render.UniformStrategy != UniformHostVisible {
		return errors.Newf("unknown uniform strategy %q", c.Render.UniformStrategy)
	}
	if _, ok := logLevels[c.LogLevel]; !ok {
		return errors.Newf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// PresentMode is the preferred present mode. The surface may not offer it.
func (c Config) PresentMode() khr_surface.PresentMode {
	return presentModes[c.Render.PresentMode]
}

func (c Config) Level() slog.Level {
	return logLevels[c.LogLevel]
}

func (c Config) HostVisibleUniforms() bool {
	return c.Render.UniformStrategy == UniformHostVisible
}

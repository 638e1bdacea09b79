// Package config collects the settings of the forward-plus demo from defaults,
// an optional .env file, FORWARDPLUS_* environment variables and command line
// flags, in increasing order of precedence.
package config

import (
	"flag"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ironsmile/vulkan-forwardplus-go/lighting"
	"github.com/ironsmile/vulkan-forwardplus-go/scene"
)

// EnvPrefix is prepended to the name of every environment variable.
const EnvPrefix = "FORWARDPLUS_"

// Configuration is the complete demo configuration.
type Configuration struct {
	Window   WindowConfiguration
	Renderer RendererConfiguration
	Scene    SceneConfiguration
	Log      LogConfiguration
}

// WindowConfiguration is used to configure the window
type WindowConfiguration struct {
	Width  int
	Height int
	Title  string
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	// Validation enables the Khronos validation layers.
	Validation bool

	// DebugView is the debug view shown at start up.
	DebugView int

	// ShaderDir is the directory with compiled SPIR-V shaders.
	ShaderDir string
}

// SceneConfiguration selects what is rendered
type SceneConfiguration struct {
	Name string

	// AssetDir is the root which model and texture paths are relative to.
	AssetDir string

	// LightCount overrides the light count of the scene when not negative.
	LightCount int

	// Seed makes the random light placement reproducible.
	Seed uint64
}

// LogConfiguration is used to configure logging
type LogConfiguration struct {
	Level string
}

// Default returns the configuration used when nothing is overridden.
func Default() Configuration {
	return Configuration{
		Window: WindowConfiguration{
			Width:  1024,
			Height: 768,
			Title:  "Vulkan Forward Plus",
		},
		Renderer: RendererConfiguration{
			ShaderDir: "shaders",
		},
		Scene: SceneConfiguration{
			Name:       scene.DefaultPreset,
			AssetDir:   ".",
			LightCount: -1,
			Seed:       1,
		},
		Log: LogConfiguration{
			Level: log.InfoLevel.String(),
		},
	}
}

// LoadEnvironment loads the given .env files, if they exist, and applies the
// FORWARDPLUS_* variables found in the environment.
func (c *Configuration) LoadEnvironment(files ...string) error {
	for _, file := range files {
		err := godotenv.Load(file)
		if errors.Is(err, os.ErrNotExist) {
			log.Debugf("no %s file, skipping", file)
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "loading %s", file)
		}
	}
	envy.Reload()

	var err error
	c.Window.Width, err = envInt("WIDTH", c.Window.Width)
	if err != nil {
		return err
	}
	c.Window.Height, err = envInt("HEIGHT", c.Window.Height)
	if err != nil {
		return err
	}
	c.Renderer.DebugView, err = envInt("DEBUG_VIEW", c.Renderer.DebugView)
	if err != nil {
		return err
	}
	c.Scene.LightCount, err = envInt("LIGHT_COUNT", c.Scene.LightCount)
	if err != nil {
		return err
	}

	seed := envy.Get(EnvPrefix+"SEED", strconv.FormatUint(c.Scene.Seed, 10))
	if c.Scene.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return errors.Wrapf(err, "parsing %sSEED", EnvPrefix)
	}

	validation := envy.Get(EnvPrefix+"VALIDATION", strconv.FormatBool(c.Renderer.Validation))
	if c.Renderer.Validation, err = strconv.ParseBool(validation); err != nil {
		return errors.Wrapf(err, "parsing %sVALIDATION", EnvPrefix)
	}

	c.Renderer.ShaderDir = envy.Get(EnvPrefix+"SHADER_DIR", c.Renderer.ShaderDir)
	c.Scene.Name = envy.Get(EnvPrefix+"SCENE", c.Scene.Name)
	c.Scene.AssetDir = envy.Get(EnvPrefix+"ASSET_DIR", c.Scene.AssetDir)
	c.Log.Level = envy.Get(EnvPrefix+"LOG_LEVEL", c.Log.Level)

	return nil
}

func envInt(name string, def int) (int, error) {
	val := envy.Get(EnvPrefix+name, strconv.Itoa(def))
	n, err := strconv.Atoi(val)
	if err != nil {
		return def, errors.Wrapf(err, "parsing %s%s", EnvPrefix, name)
	}
	return n, nil
}

// RegisterFlags binds the configuration to command line flags. The current
// values become the flag defaults so flags only override what they are given.
func (c *Configuration) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Window.Width, "width", c.Window.Width, "Window width in pixels")
	fs.IntVar(&c.Window.Height, "height", c.Window.Height, "Window height in pixels")
	fs.BoolVar(&c.Renderer.Validation, "debug", c.Renderer.Validation,
		"Enable Vulkan validation layers and debug logging")
	fs.IntVar(&c.Renderer.DebugView, "view", c.Renderer.DebugView,
		"Debug view: 0 shaded, 1 heat map over shaded, 2 heat map, 3 depth, 4 normals")
	fs.StringVar(&c.Renderer.ShaderDir, "shaders", c.Renderer.ShaderDir,
		"Directory with compiled SPIR-V shaders")
	fs.StringVar(&c.Scene.Name, "scene", c.Scene.Name, "Test scene to render")
	fs.StringVar(&c.Scene.AssetDir, "assets", c.Scene.AssetDir,
		"Directory which scene model and texture paths are relative to")
	fs.IntVar(&c.Scene.LightCount, "lights", c.Scene.LightCount,
		"Number of point lights, negative uses the scene default")
	fs.Uint64Var(&c.Scene.Seed, "seed", c.Scene.Seed, "Seed for the light placement")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "Log level")
}

// Validate checks that the configuration can be used to start the demo.
func (c *Configuration) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("invalid window size %dx%d", c.Window.Width, c.Window.Height)
	}

	if c.Renderer.DebugView < 0 || c.Renderer.DebugView > 4 {
		return errors.Newf("debug view %d is not in [0, 4]", c.Renderer.DebugView)
	}

	if c.Scene.LightCount > lighting.MaxPointLightCount {
		return errors.Newf(
			"%d lights requested, at most %d are supported",
			c.Scene.LightCount, lighting.MaxPointLightCount,
		)
	}

	if _, err := c.ScenePreset(); err != nil {
		return err
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log level")
	}

	return nil
}

// ScenePreset returns the selected scene with the light count override
// applied.
func (c *Configuration) ScenePreset() (scene.Config, error) {
	preset, ok := scene.Lookup(c.Scene.Name)
	if !ok {
		return scene.Config{}, errors.WithHintf(
			errors.Newf("unknown scene %q", c.Scene.Name),
			"known scenes: %v", scene.PresetNames(),
		)
	}

	if c.Scene.LightCount >= 0 {
		preset.LightCount = c.Scene.LightCount
	}
	return preset, nil
}

// LogLevel returns the configured level. Validation forces debug logs.
func (c *Configuration) LogLevel() log.Level {
	if c.Renderer.Validation {
		return log.DebugLevel
	}

	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

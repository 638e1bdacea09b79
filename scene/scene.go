// Package scene describes the test scenes the demo can render: which mesh and
// textures to load, where the lights live and where the camera starts.
package scene

import (
	"context"
	"io/fs"
	"math/rand/v2"
	"path"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ironsmile/vulkan-forwardplus-go/camera"
	"github.com/ironsmile/vulkan-forwardplus-go/lighting"
	"github.com/ironsmile/vulkan-forwardplus-go/models"
	"github.com/ironsmile/vulkan-forwardplus-go/textures"
)

// DefaultPreset is the scene used when none is selected.
const DefaultPreset = "cubes"

// Config is one test scene.
type Config struct {
	Name string

	// ModelPath is an OBJ file. When empty a procedural grid of boxes with
	// ProceduralSize boxes per side is used instead.
	ModelPath      string
	ProceduralSize int

	// AlbedoPath and NormalPath are optional textures.
	AlbedoPath string
	NormalPath string

	Scale float32

	LightBounds lighting.Bounds
	LightRadius float32
	LightCount  int

	CameraPosition mgl32.Vec3
	CameraRotation mgl32.Quat
}

var presets = map[string]Config{
	"cubes": {
		Name:           "cubes",
		ProceduralSize: 6,
		Scale:          1,
		LightBounds:    lighting.DefaultBounds,
		LightRadius:    lighting.DefaultRadius,
		LightCount:     200,
		CameraPosition: mgl32.Vec3{0, 8, 22},
		CameraRotation: camera.LookRotation(mgl32.Vec3{0, 8, 22}, mgl32.Vec3{0, 0, 0}),
	},
	"dense": {
		Name:           "dense",
		ProceduralSize: 10,
		Scale:          1,
		LightBounds:    lighting.DefaultBounds,
		LightRadius:    2,
		LightCount:     lighting.MaxPointLightCount,
		CameraPosition: mgl32.Vec3{0, 8, 22},
		CameraRotation: camera.LookRotation(mgl32.Vec3{0, 8, 22}, mgl32.Vec3{0, 0, 0}),
	},
	"sponza": {
		Name:        "sponza",
		ModelPath:   "sponza/sponza.obj",
		AlbedoPath:  "sponza/albedo.png",
		NormalPath:  "sponza/normal.png",
		Scale:       0.01,
		LightBounds: lighting.DefaultBounds,
		LightRadius: lighting.DefaultRadius,
		LightCount:  200,

		CameraPosition: mgl32.Vec3{1.5, 1.5, 1.5},
		CameraRotation: mgl32.QuatIdent(),
	},
}

// Lookup returns the preset with the given name.
func Lookup(name string) (Config, bool) {
	cfg, ok := presets[name]
	return cfg, ok
}

// PresetNames returns the sorted names of all presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Camera returns a camera placed at the scene's start position.
func (c Config) Camera() *camera.Camera {
	rot := c.CameraRotation
	if rot.Len() == 0 {
		rot = mgl32.QuatIdent()
	}
	return camera.New(c.CameraPosition, rot)
}

// Lights places the scene's lights at random. The same seed always gives the
// same lights.
func (c Config) Lights(seed uint64) ([]lighting.PointLight, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	lights, err := lighting.RandomLights(rng, c.LightCount, c.LightBounds, c.LightRadius)
	if err != nil {
		return nil, errors.Wrapf(err, "scene %s", c.Name)
	}
	return lights, nil
}

// Assets is everything the renderer uploads for a scene.
type Assets struct {
	Mesh   models.Mesh
	Albedo textures.Image
	Normal textures.Image
}

// fallbackTextureSize is the size of generated textures.
const fallbackTextureSize = 256

// Load reads the scene's mesh and textures from root. The three files are
// loaded concurrently. Empty paths are replaced by generated content.
func Load(ctx context.Context, c Config, root fs.FS) (*Assets, error) {
	assets := &Assets{}
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if c.ModelPath == "" {
			assets.Mesh = models.Cubes(c.ProceduralSize)
			return nil
		}

		fh, err := root.Open(path.Clean(c.ModelPath))
		if err != nil {
			return errors.Wrap(err, "failed to open model file")
		}
		defer fh.Close()

		scale := c.Scale
		if scale == 0 {
			scale = 1
		}

		mesh, err := models.LoadOBJ(fh, scale)
		if err != nil {
			return errors.Wrapf(err, "loading %s", c.ModelPath)
		}
		assets.Mesh = mesh
		return ctx.Err()
	})

	eg.Go(func() error {
		img, err := loadTexture(root, c.AlbedoPath, textures.Checker)
		assets.Albedo = img
		return err
	})

	eg.Go(func() error {
		img, err := loadTexture(root, c.NormalPath, textures.FlatNormal)
		assets.Normal = img
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, errors.Wrapf(err, "loading scene %s", c.Name)
	}

	log.WithFields(log.Fields{
		"scene":    c.Name,
		"vertices": len(assets.Mesh.Vertices),
		"indices":  len(assets.Mesh.Indices),
	}).Debug("scene assets loaded")

	return assets, nil
}

func loadTexture(
	root fs.FS,
	file string,
	fallback func(size int) textures.Image,
) (textures.Image, error) {
	if file == "" {
		return fallback(fallbackTextureSize), nil
	}

	fh, err := root.Open(path.Clean(file))
	if err != nil {
		return textures.Image{}, errors.Wrap(err, "failed to open texture file")
	}
	defer fh.Close()

	img, err := textures.Load(fh)
	if err != nil {
		return textures.Image{}, errors.Wrapf(err, "loading %s", file)
	}
	return img, nil
}

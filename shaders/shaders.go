// Package shaders loads the SPIR-V bytecode of the renderer's shader stages.
//
// The GLSL sources live next to this file. Run `go generate` in order to
// compile them again, glslc from the Vulkan SDK has to be on the PATH.
package shaders

import (
	"context"
	"encoding/binary"
	"io/fs"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

//go:generate glslc depth.vert -o depth.vert.spv
//go:generate glslc forwardplus.vert -o forwardplus.vert.spv
//go:generate glslc forwardplus.frag -o forwardplus.frag.spv
//go:generate glslc light_culling.comp -o light_culling.comp.spv

// Names of the shader stages used by the renderer.
const (
	DepthVert        = "depth.vert"
	ForwardPlusVert  = "forwardplus.vert"
	ForwardPlusFrag  = "forwardplus.frag"
	LightCullingComp = "light_culling.comp"
)

// All lists every stage the renderer needs.
var All = []string{DepthVert, ForwardPlusVert, ForwardPlusFrag, LightCullingComp}

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// ErrInvalidShader is returned for bytecode which is not a SPIR-V module.
var ErrInvalidShader = errors.New("invalid SPIR-V bytecode")

// Loader returns the bytecode of a named shader stage.
type Loader interface {
	Bytecode(name string) ([]byte, error)
}

// FSLoader reads "<name>.spv" files from a file system.
type FSLoader struct {
	FS fs.FS
}

// NewDirLoader returns a loader for compiled shaders in dir.
func NewDirLoader(dir string) FSLoader {
	return FSLoader{FS: os.DirFS(dir)}
}

// Bytecode implements Loader.
func (l FSLoader) Bytecode(name string) ([]byte, error) {
	code, err := fs.ReadFile(l.FS, name+".spv")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s shader bytecode", name)
	}

	if err := Validate(code); err != nil {
		return nil, errors.Wrapf(err, "shader %s", name)
	}

	return code, nil
}

// Validate checks that code looks like a SPIR-V module: a whole number of
// 32bit words starting with the SPIR-V magic number and a full header.
func Validate(code []byte) error {
	if len(code) < 20 {
		return errors.Wrapf(ErrInvalidShader, "%d bytes is shorter than the header", len(code))
	}

	if len(code)%4 != 0 {
		return errors.Wrapf(ErrInvalidShader, "size %d is not a multiple of 4", len(code))
	}

	if magic := binary.LittleEndian.Uint32(code); magic != spirvMagic {
		return errors.Wrapf(ErrInvalidShader, "bad magic number %#08x", magic)
	}

	return nil
}

// LoadAll loads the named stages concurrently.
func LoadAll(ctx context.Context, l Loader, names ...string) (map[string][]byte, error) {
	var (
		mu    sync.Mutex
		codes = make(map[string][]byte, len(names))
	)

	eg, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			code, err := l.Bytecode(name)
			if err != nil {
				return err
			}

			mu.Lock()
			codes[name] = code
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return codes, nil
}

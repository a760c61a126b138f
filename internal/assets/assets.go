// Package assets reads the files a scene is made of: SPIR-V shaders, a
// texture image and an OBJ model.
package assets

import (
	"context"
	"encoding/binary"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/vkngwrapper/vulkan-renderer/internal/mesh"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// LoadShader converts a SPIR-V binary into the words a shader module is
// created from.
func LoadShader(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("spir-v binary of %d bytes is not a whole number of words", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}

	if byteCode[0] != SPIRVMagic {
		return nil, errors.Newf("bad spir-v magic %#08x", byteCode[0])
	}
	return byteCode, nil
}

// Image is decoded texture data, tightly packed RGBA with 8 bits per channel.
type Image struct {
	Width  int
	Height int
	Pixels []byte
}

// DecodeTexture decodes png, jpeg, bmp, tiff or webp data into RGBA.
func DecodeTexture(r io.Reader) (*Image, error) {
	decoded, format, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode texture")
	}

	bounds := decoded.Bounds()
	if bounds.Empty() {
		return nil, errors.Newf("%s texture is empty", format)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), decoded, bounds.Min, draw.Src)

	return &Image{Width: bounds.Dx(), Height: bounds.Dy(), Pixels: rgba.Pix}, nil
}

// Paths names the files of a scene. Empty Model and Texture paths are skipped.
type Paths struct {
	VertexShader   string
	FragmentShader string
	Model          string
	Texture        string
}

// Bundle is everything LoadAll read. Mesh and Texture are nil when their path
// was empty.
type Bundle struct {
	VertexShader   []uint32
	FragmentShader []uint32
	Mesh           *mesh.Mesh
	Texture        *Image
}

// LoadAll reads and decodes every file in paths concurrently and fails with
// the first error.
func LoadAll(ctx context.Context, paths Paths) (*Bundle, error) {
	bundle := &Bundle{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		bundle.VertexShader, err = readShader(ctx, paths.VertexShader)
		return err
	})
	g.Go(func() error {
		var err error
		bundle.FragmentShader, err = readShader(ctx, paths.FragmentShader)
		return err
	})

	if paths.Model != "" {
		g.Go(func() error {
			var err error
			bundle.Mesh, err = readModel(ctx, paths.Model)
			return err
		})
	}

	if paths.Texture != "" {
		g.Go(func() error {
			var err error
			bundle.Texture, err = readTexture(ctx, paths.Texture)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bundle, nil
}

func readShader(ctx context.Context, path string) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", path)
	}
	code, err := LoadShader(b)
	if err != nil {
		return nil, errors.Wrapf(err, "load shader %s", path)
	}
	return code, nil
}

func readTexture(ctx context.Context, path string) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open texture %s", path)
	}
	defer f.Close()

	img, err := DecodeTexture(f)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %s", path)
	}
	return img, nil
}

// readModel loads an OBJ file together with the material library next to it,
// if there is one.
func readModel(ctx context.Context, path string) (*mesh.Mesh, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	meshFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open model %s", path)
	}
	defer meshFile.Close()

	var mtl io.Reader
	matFile, err := os.Open(strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl")
	if err == nil {
		defer matFile.Close()
		mtl = matFile
	}

	m, err := mesh.LoadOBJ(meshFile, mtl)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", path)
	}
	return m, nil
}

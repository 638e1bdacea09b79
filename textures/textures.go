// Package textures decodes the images sampled by the main shading pass.
package textures

import (
	"image"
	"image/color"
	"image/draw"
	"io"

	// Used for decoding textures
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/cockroachdb/errors"
)

// Image is tightly packed 8 bit RGBA pixel data.
type Image struct {
	Width  int
	Height int
	Pixels []byte
}

// Size returns the number of bytes in Pixels.
func (i Image) Size() int {
	return i.Width * i.Height * 4
}

// Load decodes a PNG, JPEG, BMP or TIFF image and converts it to RGBA.
func Load(r io.Reader) (Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return Image{}, errors.Wrap(err, "failed to decode texture image")
	}

	return fromImage(img), nil
}

// fromImage converts the image to RGBA if it is not already
func fromImage(img image.Image) Image {
	b := img.Bounds()
	rgbaImg := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgbaImg, rgbaImg.Bounds(), img, b.Min, draw.Src)

	return Image{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pixels: rgbaImg.Pix,
	}
}

// Checker returns a size x size albedo texture with 8 x 8 light and dark
// squares.
func Checker(size int) Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cell := max(size/8, 1)

	light := color.RGBA{R: 200, G: 200, B: 200, A: 255}
	dark := color.RGBA{R: 120, G: 120, B: 120, A: 255}

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, light)
			} else {
				img.SetRGBA(x, y, dark)
			}
		}
	}

	return fromImage(img)
}

// FlatNormal returns a tangent space normal map where every normal points
// straight out of the surface.
func FlatNormal(size int) Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 128, G: 128, B: 255, A: 255}),
		image.Point{}, draw.Src)

	return fromImage(img)
}

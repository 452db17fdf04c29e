package blur

import (
	"fmt"
	"image"
	"image/color"
)

// Channel selects one color component of an RGB pixel.
type Channel uint8

const (
	Red Channel = iota
	Green
	Blue
)

// Channels lists every channel in pixel byte order.
var Channels = [...]Channel{Red, Green, Blue}

// Valid reports whether c names one of the three RGB channels.
func (c Channel) Valid() bool {
	return c <= Blue
}

func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	default:
		return fmt.Sprintf("Channel(%d)", uint8(c))
	}
}

// Image is a dense 8-bit RGB raster. Pixels are stored row-major, three bytes
// per pixel. The zero value of every pixel is black.
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewImage allocates an all-black image of the given size.
func NewImage(width, height int) *Image {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("blur: invalid image size %dx%d", width, height))
	}
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

func (img *Image) offset(x, y int) int {
	if x < 0 || x >= img.Width || y < 0 || y >= img.Height {
		panic(fmt.Sprintf("blur: pixel (%d,%d) out of bounds %dx%d", x, y, img.Width, img.Height))
	}
	return (y*img.Width + x) * 3
}

// Sample returns the raw channel byte at (x, y). Coordinates outside the
// image panic; callers are expected to respect the border policy.
func (img *Image) Sample(x, y int, c Channel) uint8 {
	if !c.Valid() {
		panic(fmt.Sprintf("blur: invalid channel %d", uint8(c)))
	}
	return img.Pix[img.offset(x, y)+int(c)]
}

// SetRGB writes all three channels of the pixel at (x, y).
func (img *Image) SetRGB(x, y int, r, g, b uint8) {
	i := img.offset(x, y)
	img.Pix[i] = r
	img.Pix[i+1] = g
	img.Pix[i+2] = b
}

// RGB returns all three channels of the pixel at (x, y).
func (img *Image) RGB(x, y int) (r, g, b uint8) {
	i := img.offset(x, y)
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}

// ColorModel, Bounds and At let the standard encoders write an Image
// directly. Every pixel is reported as opaque.
func (img *Image) ColorModel() color.Model { return color.RGBAModel }

func (img *Image) Bounds() image.Rectangle { return image.Rect(0, 0, img.Width, img.Height) }

func (img *Image) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(img.Bounds())) {
		return color.RGBA{}
	}
	r, g, b := img.RGB(x, y)
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

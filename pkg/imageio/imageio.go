// Package imageio decodes raster files into blur.Image values and encodes
// results back to disk.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go-blur/pkg/blur"
)

var (
	// ErrDecode marks failures to read or decode an input image.
	ErrDecode = errors.New("decode image")
	// ErrEncode marks failures to encode or write an output image.
	ErrEncode = errors.New("encode image")
)

// DecodeError reports a decode failure for Path.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// EncodeError reports an encode or write failure for Path.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode image %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() []error { return []error{ErrEncode, e.Err} }

// Decode opens path and converts its content to an RGB image.
func Decode(path string) (*blur.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer file.Close()

	img, err := DecodeReader(file)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return img, nil
}

// DecodeReader decodes any registered format from r. Alpha is discarded
// after conversion to non-premultiplied RGBA.
func DecodeReader(r io.Reader) (*blur.Image, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return FromImage(src)
}

// FromImage converts an arbitrary image.Image to a blur.Image.
func FromImage(src image.Image) (*blur.Image, error) {
	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("empty image bounds %v", bounds)
	}

	nrgba, ok := src.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)
	}

	out := blur.NewImage(bounds.Dx(), bounds.Dy())
	for y := 0; y < out.Height; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < out.Width; x++ {
			out.SetRGB(x, y, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out, nil
}

// Encode writes img to path. The format follows the file extension and
// defaults to PNG.
func Encode(path string, img *blur.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return &EncodeError{Path: path, Err: err}
	}

	if err := EncodeWriter(file, formatFor(path), img); err != nil {
		file.Close()
		return &EncodeError{Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	return nil
}

// EncodeWriter writes img to w in the named format: png, jpeg, gif, bmp or
// tiff.
func EncodeWriter(w io.Writer, format string, img *blur.Image) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	case "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case "gif":
		return gif.Encode(w, img, nil)
	case "bmp":
		return bmp.Encode(w, img)
	case "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func formatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".gif":
		return "gif"
	case ".bmp":
		return "bmp"
	case ".tif", ".tiff":
		return "tiff"
	default:
		return "png"
	}
}

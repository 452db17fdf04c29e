package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-blur/pkg/blur"
)

func gradient(w, h int) *blur.Image {
	img := blur.NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGB(x, y, uint8(x*20), uint8(y*30), uint8(x+y))
		}
	}
	return img
}

func TestEncodeDecodeLossless(t *testing.T) {
	dir := t.TempDir()
	src := gradient(9, 7)

	for _, name := range []string{"out.png", "out.bmp", "out.tiff", "out.tif", "noext"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Encode(path, src), name)

		got, err := Decode(path)
		require.NoError(t, err, name)
		assert.Equal(t, src.Width, got.Width, name)
		assert.Equal(t, src.Height, got.Height, name)
		assert.Equal(t, src.Pix, got.Pix, name)
	}
}

func TestEncodeDecodeLossy(t *testing.T) {
	dir := t.TempDir()
	src := gradient(16, 16)

	for _, name := range []string{"out.jpg", "out.gif"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Encode(path, src), name)

		got, err := Decode(path)
		require.NoError(t, err, name)
		assert.Equal(t, 16, got.Width, name)
		assert.Equal(t, 16, got.Height, name)
	}
}

func TestDecodeErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Decode(filepath.Join(dir, "missing.png"))
	require.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, os.ErrNotExist)

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, filepath.Join(dir, "missing.png"), decErr.Path)

	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, err = Decode(garbage)
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, image.ErrFormat)
}

func TestEncodeErrors(t *testing.T) {
	err := Encode(filepath.Join(t.TempDir(), "no", "such", "dir.png"), gradient(2, 2))
	require.ErrorIs(t, err, ErrEncode)

	var encErr *EncodeError
	assert.True(t, errors.As(err, &encErr))

	var buf bytes.Buffer
	assert.Error(t, EncodeWriter(&buf, "xcf", gradient(2, 2)))
}

func TestFromImageDropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 128})

	img, err := FromImage(src)
	require.NoError(t, err)

	r, g, b := img.RGB(0, 0)
	assert.Equal(t, [3]uint8{200, 100, 50}, [3]uint8{r, g, b})
	r, g, b = img.RGB(1, 0)
	assert.Equal(t, [3]uint8{10, 20, 30}, [3]uint8{r, g, b})
}

func TestFromImageConvertsModelsAndOrigin(t *testing.T) {
	gray := image.NewGray(image.Rect(5, 5, 8, 7))
	gray.SetGray(6, 6, color.Gray{Y: 90})

	img, err := FromImage(gray)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, img.Height)

	r, g, b := img.RGB(1, 1)
	assert.Equal(t, [3]uint8{90, 90, 90}, [3]uint8{r, g, b})

	_, err = FromImage(image.NewRGBA(image.Rectangle{}))
	assert.Error(t, err)
}

func TestDecodeReader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeWriter(&buf, "png", gradient(3, 3)))

	img, err := DecodeReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, gradient(3, 3).Pix, img.Pix)
}

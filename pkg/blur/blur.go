package blur

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ConvolvePixel computes the weighted sum of the N×N window centred on (x, y)
// for one channel. The sum is truncated to a byte without rounding. The whole
// window must lie inside img; reads outside it panic.
func ConvolvePixel(img *Image, x, y int, c Channel, k *Kernel) uint8 {
	n := k.size
	half := n / 2

	var sum float64
	for dx := 0; dx < n; dx++ {
		sx := x + dx - half
		for dy := 0; dy < n; dy++ {
			sy := y + dy - half
			sum += float64(img.Sample(sx, sy, c)) * k.weights[dx*n+dy]
		}
	}

	return uint8(sum)
}

// Interior reports whether the full window of a kernel with the given half
// width fits inside an image of size width×height when centred on (x, y).
func Interior(x, y, half, width, height int) bool {
	return x >= half && x+half < width && y >= half && y+half < height
}

type applyOptions struct {
	workers    int
	rowsPerJob int
}

// Option configures Apply.
type Option func(*applyOptions)

// WithWorkers bounds the number of row bands convolved concurrently.
// Values below 1 select runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(o *applyOptions) { o.workers = n }
}

// WithRowsPerJob sets how many output rows one band covers.
func WithRowsPerJob(n int) Option {
	return func(o *applyOptions) { o.rowsPerJob = n }
}

// Apply convolves every interior pixel of src with k and returns a new image
// of the same size. Border pixels whose window would leave the image are left
// black. Bands of rows are processed concurrently; each writes a disjoint part
// of the output.
func Apply(ctx context.Context, src *Image, k *Kernel, opts ...Option) (*Image, error) {
	if k == nil {
		panic("blur: nil kernel")
	}

	o := applyOptions{rowsPerJob: 16}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	if o.rowsPerJob < 1 {
		o.rowsPerJob = 1
	}

	dst := NewImage(src.Width, src.Height)
	half := k.Half()
	if src.Width <= 2*half || src.Height <= 2*half {
		return dst, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for y0 := half; y0 < src.Height-half; y0 += o.rowsPerJob {
		if gctx.Err() != nil {
			break
		}
		y0 := y0
		y1 := min(y0+o.rowsPerJob, src.Height-half)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			convolveRows(dst, src, k, y0, y1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return dst, nil
}

func convolveRows(dst, src *Image, k *Kernel, y0, y1 int) {
	half := k.Half()
	for y := y0; y < y1; y++ {
		for x := half; x < src.Width-half; x++ {
			dst.SetRGB(x, y,
				ConvolvePixel(src, x, y, Red, k),
				ConvolvePixel(src, x, y, Green, k),
				ConvolvePixel(src, x, y, Blue, k),
			)
		}
	}
}

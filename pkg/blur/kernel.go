package blur

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// normTolerance bounds how far a kernel's weight sum may drift from 1.
const normTolerance = 1e-9

var (
	// ErrInvalidKernelSize is returned for even kernel sizes or sizes below 3.
	ErrInvalidKernelSize = errors.New("invalid kernel size")
	// ErrMalformedKernel is returned by NewKernel for weights that are not a
	// normalized, non-negative, odd square matrix.
	ErrMalformedKernel = errors.New("malformed kernel")
)

// Kernel is an immutable N×N matrix of convolution weights summing to 1.
type Kernel struct {
	size    int
	weights []float64
}

// Size returns N.
func (k *Kernel) Size() int { return k.size }

// Half returns N/2, the distance from the centre to the kernel edge.
func (k *Kernel) Half() int { return k.size / 2 }

// At returns the weight at row i, column j.
func (k *Kernel) At(i, j int) float64 {
	return k.weights[i*k.size+j]
}

// Sum returns the total of all weights.
func (k *Kernel) Sum() float64 {
	var sum float64
	for _, w := range k.weights {
		sum += w
	}
	return sum
}

// Rows returns a copy of the weights as a 2D slice.
func (k *Kernel) Rows() [][]float64 {
	rows := make([][]float64, k.size)
	for i := range rows {
		rows[i] = append([]float64(nil), k.weights[i*k.size:(i+1)*k.size]...)
	}
	return rows
}

func checkSize(size int) error {
	if size < 3 || size%2 == 0 {
		return fmt.Errorf("%w: %d (must be odd and >= 3)", ErrInvalidKernelSize, size)
	}
	return nil
}

// PascalRow returns the n coefficients of row n-1 of Pascal's triangle,
// built bottom-up.
func PascalRow(n int) []float64 {
	if n <= 0 {
		return nil
	}
	row := make([]float64, n)
	row[0] = 1
	for k := 1; k < n; k++ {
		for i := k; i > 0; i-- {
			row[i] += row[i-1]
		}
	}
	return row
}

// BuildKernel returns the normalized binomial approximation of a Gaussian of
// the given odd size: the outer product of a Pascal row with itself divided by
// its total.
func BuildKernel(size int) (*Kernel, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}

	row := PascalRow(size)
	weights := make([]float64, size*size)
	var sum float64
	for i, v := range row {
		for j, h := range row {
			weights[i*size+j] = v * h
			sum += v * h
		}
	}
	for i := range weights {
		weights[i] /= sum
	}

	return &Kernel{size: size, weights: weights}, nil
}

// NewKernel validates caller-supplied weights and wraps them in a Kernel.
func NewKernel(rows [][]float64) (*Kernel, error) {
	size := len(rows)
	if err := checkSize(size); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKernel, err)
	}

	weights := make([]float64, 0, size*size)
	var sum float64
	for i, row := range rows {
		if len(row) != size {
			return nil, fmt.Errorf("%w: row %d has %d weights, want %d", ErrMalformedKernel, i, len(row), size)
		}
		for j, w := range row {
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("%w: weight (%d,%d) = %v", ErrMalformedKernel, i, j, w)
			}
			sum += w
		}
		weights = append(weights, row...)
	}
	if math.Abs(sum-1) > normTolerance {
		return nil, fmt.Errorf("%w: weights sum to %v", ErrMalformedKernel, sum)
	}

	return &Kernel{size: size, weights: weights}, nil
}

// KernelCache memoizes BuildKernel by size. It is safe for concurrent use.
type KernelCache struct {
	mu      sync.RWMutex
	kernels map[int]*Kernel
}

// NewKernelCache returns an empty cache.
func NewKernelCache() *KernelCache {
	return &KernelCache{kernels: make(map[int]*Kernel)}
}

// Get returns the kernel for size, building it on first use.
func (c *KernelCache) Get(size int) (*Kernel, error) {
	c.mu.RLock()
	if k, ok := c.kernels[size]; ok {
		c.mu.RUnlock()
		return k, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if k, ok := c.kernels[size]; ok {
		return k, nil
	}
	k, err := BuildKernel(size)
	if err != nil {
		return nil, err
	}
	c.kernels[size] = k
	return k, nil
}

// Len returns the number of cached kernels.
func (c *KernelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.kernels)
}

package blur

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPascalRow(t *testing.T) {
	tests := []struct {
		n    int
		want []float64
	}{
		{1, []float64{1}},
		{3, []float64{1, 2, 1}},
		{5, []float64{1, 4, 6, 4, 1}},
		{7, []float64{1, 6, 15, 20, 15, 6, 1}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PascalRow(tt.n), "n=%d", tt.n)
	}
	assert.Nil(t, PascalRow(0))
}

func TestBuildKernelNormalized(t *testing.T) {
	for n := 3; n <= 41; n += 2 {
		k, err := BuildKernel(n)
		require.NoError(t, err)
		require.Equal(t, n, k.Size())

		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				assert.GreaterOrEqual(t, k.At(i, j), 0.0)
				assert.Equal(t, k.At(i, j), k.At(j, i))
			}
		}
		assert.InDelta(t, 1.0, k.Sum(), 1e-9, "size %d", n)
	}
}

func TestBuildKernelExact(t *testing.T) {
	tests := []struct {
		size  int
		row   []float64
		denom float64
	}{
		{3, []float64{1, 2, 1}, 16},
		{5, []float64{1, 4, 6, 4, 1}, 256},
		{7, []float64{1, 6, 15, 20, 15, 6, 1}, 4096},
	}
	for _, tt := range tests {
		k, err := BuildKernel(tt.size)
		require.NoError(t, err)
		for i, v := range tt.row {
			for j, h := range tt.row {
				assert.InDelta(t, v*h/tt.denom, k.At(i, j), 1e-15, "size %d at (%d,%d)", tt.size, i, j)
			}
		}
	}

	k, err := BuildKernel(3)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{
		{1.0 / 16, 2.0 / 16, 1.0 / 16},
		{2.0 / 16, 4.0 / 16, 2.0 / 16},
		{1.0 / 16, 2.0 / 16, 1.0 / 16},
	}, k.Rows())
}

func TestBuildKernelInvalidSize(t *testing.T) {
	for _, n := range []int{-3, 0, 1, 2, 4, 30} {
		k, err := BuildKernel(n)
		assert.ErrorIs(t, err, ErrInvalidKernelSize, "size %d", n)
		assert.Nil(t, k)
	}
}

func TestNewKernel(t *testing.T) {
	identity := [][]float64{{0, 0, 0}, {0, 1, 0}, {0, 0, 0}}
	k, err := NewKernel(identity)
	require.NoError(t, err)
	assert.Equal(t, 3, k.Size())
	assert.Equal(t, 1.0, k.At(1, 1))

	identity[1][1] = 0.5
	assert.Equal(t, 1.0, k.At(1, 1), "kernel must not alias caller weights")

	bad := map[string][][]float64{
		"even":           {{0.25, 0.25}, {0.25, 0.25}},
		"too small":      {{1}},
		"ragged":         {{0, 0, 0}, {0, 1}, {0, 0, 0}},
		"negative":       {{0, 0, 0}, {-1, 2, 0}, {0, 0, 0}},
		"not normalized": {{1, 1, 1}, {1, 1, 1}, {1, 1, 1}},
	}
	for name, rows := range bad {
		_, err := NewKernel(rows)
		assert.ErrorIs(t, err, ErrMalformedKernel, name)
	}
}

func TestKernelCache(t *testing.T) {
	cache := NewKernelCache()

	var wg sync.WaitGroup
	got := make([]*Kernel, 8)
	for i := range got {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			k, err := cache.Get(9)
			assert.NoError(t, err)
			got[i] = k
		}()
	}
	wg.Wait()

	for _, k := range got {
		assert.Same(t, got[0], k)
	}
	assert.Equal(t, 1, cache.Len())

	_, err := cache.Get(8)
	assert.ErrorIs(t, err, ErrInvalidKernelSize)
	assert.Equal(t, 1, cache.Len())
}

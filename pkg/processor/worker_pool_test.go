package processor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-blur/pkg/blur"
	"go-blur/pkg/common"
	"go-blur/pkg/imageio"
)

type fakeQueue struct {
	mu      sync.Mutex
	jobs    chan *common.JobMessage
	acked   int
	results []*common.ResultMessage
}

func newFakeQueue(jobs ...*common.JobMessage) *fakeQueue {
	q := &fakeQueue{jobs: make(chan *common.JobMessage, len(jobs))}
	for _, j := range jobs {
		q.jobs <- j
	}
	return q
}

func (q *fakeQueue) ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error) {
	select {
	case j := <-q.jobs:
		return "id", j, nil
	case <-time.After(block):
		return "", nil, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

func (q *fakeQueue) AckJob(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked++
	return nil
}

func (q *fakeQueue) AddResult(ctx context.Context, res *common.ResultMessage) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results = append(q.results, res)
	return "r", nil
}

func (q *fakeQueue) snapshot() (int, []*common.ResultMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked, append([]*common.ResultMessage(nil), q.results...)
}

func kernelJob(input, outDir string, n int) *common.JobMessage {
	return &common.JobMessage{
		Type: common.JobTypeKernel,
		Job: &common.KernelJob{
			BatchID:    "batch",
			InputPath:  input,
			OutputPath: filepath.Join(outDir, OutputName(input, n)),
			KernelSize: n,
		},
	}
}

func TestWorkerPoolProcessesJobs(t *testing.T) {
	input := writeTestImage(t, t.TempDir(), 16, 12)
	outDir := t.TempDir()

	q := newFakeQueue(
		kernelJob(input, outDir, 3),
		kernelJob(input, outDir, 5),
		&common.JobMessage{Type: "tile"},
		kernelJob(input, outDir, 4),
		kernelJob(filepath.Join(outDir, "missing.png"), outDir, 3),
	)
	wp := NewWorkerPool(q, 2, 10*time.Millisecond, "test", zerolog.Nop())

	done := make(chan struct{})
	go func() {
		wp.Start()
		close(done)
	}()

	require.Eventually(t, func() bool {
		acked, _ := q.snapshot()
		return acked == 5
	}, 5*time.Second, 10*time.Millisecond)
	wp.Stop()
	<-done

	_, results := q.snapshot()
	require.Len(t, results, 4)
	assert.EqualValues(t, 4, wp.Processed())

	byOutput := map[int][]string{}
	for _, r := range results {
		byOutput[r.KernelSize] = append(byOutput[r.KernelSize], r.Error)
		assert.Equal(t, "test", r.WorkerID)
	}
	assert.Len(t, byOutput[5], 1)
	assert.Empty(t, byOutput[5][0])
	assert.Contains(t, byOutput[4][0], blur.ErrInvalidKernelSize.Error())
	assert.Len(t, byOutput[3], 2)

	for _, n := range []int{3, 5} {
		out, err := imageio.Decode(filepath.Join(outDir, OutputName(input, n)))
		require.NoError(t, err)
		assert.Equal(t, 16, out.Width)
	}
}

func TestWorkerPoolReportsEncodeFailure(t *testing.T) {
	input := writeTestImage(t, t.TempDir(), 8, 8)
	wp := NewWorkerPool(newFakeQueue(), 1, time.Millisecond, "w", zerolog.Nop())
	wp.encode = func(string, *blur.Image) error {
		return &imageio.EncodeError{Path: "x", Err: errors.New("read-only file system")}
	}

	res := wp.processJob(context.Background(), kernelJob(input, t.TempDir(), 3).Job)
	assert.Equal(t, 3, res.KernelSize)
	assert.Contains(t, res.Error, "read-only file system")
}

func TestImageCache(t *testing.T) {
	var calls int
	c := &imageCache{decode: func(path string) (*blur.Image, error) {
		calls++
		if path == "bad" {
			return nil, errors.New("boom")
		}
		return blur.NewImage(1, 1), nil
	}}

	a, err := c.get("a")
	require.NoError(t, err)
	again, err := c.get("a")
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, 1, calls)

	_, err = c.get("bad")
	assert.Error(t, err)
	again, err = c.get("a")
	require.NoError(t, err)
	assert.Same(t, a, again, "failed decode keeps the previous entry")

	_, err = c.get("b")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

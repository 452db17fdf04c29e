package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"go-blur/pkg/common"
	"go-blur/pkg/config"
	"go-blur/pkg/imageio"
	"go-blur/pkg/processor"
)

// JobQueue is the subset of the Redis client the coordinator needs.
type JobQueue interface {
	StoreBatch(ctx context.Context, info *common.BatchInfo) error
	AddJob(ctx context.Context, job *common.JobMessage) (string, error)
}

type Coordinator struct {
	queue JobQueue
	cfg   config.Config
	log   zerolog.Logger
	newID func() string
}

func NewCoordinator(queue JobQueue, cfg config.Config, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		queue: queue,
		cfg:   cfg,
		log:   log,
		newID: func() string {
			hostname, _ := os.Hostname()
			return fmt.Sprintf("%s-%d", hostname, time.Now().UnixNano())
		},
	}
}

// Submit validates inputPath by decoding it, stores the batch metadata and
// queues one job per kernel size. It returns the batch ID.
func (c *Coordinator) Submit(ctx context.Context, inputPath string) (string, error) {
	sizes, err := c.cfg.KernelSizes()
	if err != nil {
		return "", err
	}

	startTime := time.Now()
	img, err := imageio.Decode(inputPath)
	if err != nil {
		return "", err
	}

	info := &common.BatchInfo{
		ID:          c.newID(),
		InputPath:   inputPath,
		OutputDir:   c.cfg.OutputDir,
		Width:       img.Width,
		Height:      img.Height,
		KernelSizes: sizes,
		StartTime:   startTime,
	}
	if err := c.queue.StoreBatch(ctx, info); err != nil {
		return "", fmt.Errorf("failed to store batch info: %w", err)
	}

	c.log.Info().
		Str("batch", info.ID).
		Str("input", inputPath).
		Int("width", img.Width).
		Int("height", img.Height).
		Int("jobs", len(sizes)).
		Msg("Queuing kernel jobs")

	for _, n := range sizes {
		job := &common.JobMessage{
			Type: common.JobTypeKernel,
			Job: &common.KernelJob{
				BatchID:    info.ID,
				InputPath:  inputPath,
				OutputPath: filepath.Join(c.cfg.OutputDir, processor.OutputName(inputPath, n)),
				KernelSize: n,
			},
		}
		if _, err := c.queue.AddJob(ctx, job); err != nil {
			return "", fmt.Errorf("failed to queue kernel size %d: %w", n, err)
		}
	}

	c.log.Info().
		Str("batch", info.ID).
		Dur("elapsed", time.Since(startTime)).
		Msg("Finished queuing jobs")

	return info.ID, nil
}

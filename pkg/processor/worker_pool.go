package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"go-blur/pkg/blur"
	"go-blur/pkg/common"
	"go-blur/pkg/imageio"
)

// JobSource is the subset of the Redis client the worker pool needs.
type JobSource interface {
	ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error)
	AckJob(ctx context.Context, id string) error
	AddResult(ctx context.Context, res *common.ResultMessage) (string, error)
}

type WorkerPool struct {
	queue         JobSource
	numWorkers    int
	block         time.Duration
	workerID      string
	kernels       *blur.KernelCache
	images        *imageCache
	encode        func(path string, img *blur.Image) error
	log           zerolog.Logger
	jobsProcessed atomic.Int64
	ctx           context.Context
	cancel        context.CancelFunc
}

func NewWorkerPool(queue JobSource, numWorkers int, block time.Duration, workerID string, log zerolog.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	if numWorkers < 1 {
		numWorkers = 1
	}

	return &WorkerPool{
		queue:      queue,
		numWorkers: numWorkers,
		block:      block,
		workerID:   workerID,
		kernels:    blur.NewKernelCache(),
		images:     &imageCache{decode: imageio.Decode},
		encode:     imageio.Encode,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start runs the workers and blocks until Stop is called.
func (wp *WorkerPool) Start() {
	var wg sync.WaitGroup

	for i := 0; i < wp.numWorkers; i++ {
		wg.Add(1)
		go wp.worker(i, &wg)
	}

	wp.log.Info().Int("workers", wp.numWorkers).Msg("WorkerPool started")
	wg.Wait()
}

func (wp *WorkerPool) Stop() {
	wp.log.Info().Msg("WorkerPool shutting down")
	wp.cancel()
}

// Processed returns the number of jobs finished so far, failed ones included.
func (wp *WorkerPool) Processed() int64 {
	return wp.jobsProcessed.Load()
}

func (wp *WorkerPool) worker(id int, wg *sync.WaitGroup) {
	defer wg.Done()

	consumer := fmt.Sprintf("%s-worker-%d", wp.workerID, id)
	log := wp.log.With().Str("consumer", consumer).Logger()
	log.Debug().Msg("Worker started")

	for {
		select {
		case <-wp.ctx.Done():
			log.Debug().Msg("Worker shutting down")
			return
		default:
		}

		msgID, msg, err := wp.queue.ReadJob(wp.ctx, consumer, wp.block)
		if err != nil {
			if wp.ctx.Err() == nil {
				log.Error().Err(err).Msg("Read error")
				if msgID != "" {
					_ = wp.queue.AckJob(wp.ctx, msgID)
				}
				wp.pause()
			}
			continue
		}
		if msg == nil {
			continue
		}

		if msg.Type != common.JobTypeKernel || msg.Job == nil {
			log.Warn().Str("type", msg.Type).Msg("Invalid job type")
			_ = wp.queue.AckJob(wp.ctx, msgID)
			continue
		}

		result := wp.processJob(wp.ctx, msg.Job)
		if _, err := wp.queue.AddResult(wp.ctx, result); err != nil {
			log.Error().Err(err).Int("kernel_size", msg.Job.KernelSize).Msg("Failed to publish result")
		}
		if err := wp.queue.AckJob(wp.ctx, msgID); err != nil {
			log.Error().Err(err).Msg("Failed to ack job")
		}

		if count := wp.jobsProcessed.Add(1); count%10 == 0 {
			wp.log.Info().Int64("jobs", count).Msg("WorkerPool progress")
		}
	}
}

// pause backs off briefly after a transport error so a dead Redis does not
// spin the loop.
func (wp *WorkerPool) pause() {
	select {
	case <-wp.ctx.Done():
	case <-time.After(time.Second):
	}
}

func (wp *WorkerPool) processJob(ctx context.Context, job *common.KernelJob) *common.ResultMessage {
	startTime := time.Now()
	result := &common.ResultMessage{
		BatchID:    job.BatchID,
		KernelSize: job.KernelSize,
		OutputPath: job.OutputPath,
		WorkerID:   wp.workerID,
	}

	err := wp.blurToFile(ctx, job)
	result.ProcessTime = time.Since(startTime).Seconds()
	if err != nil {
		result.Error = err.Error()
		wp.log.Error().Err(err).
			Str("batch", job.BatchID).
			Int("kernel_size", job.KernelSize).
			Msg("Job failed")
		return result
	}

	wp.log.Info().
		Str("batch", job.BatchID).
		Int("kernel_size", job.KernelSize).
		Str("output", job.OutputPath).
		Float64("seconds", result.ProcessTime).
		Msg("Job done")
	return result
}

func (wp *WorkerPool) blurToFile(ctx context.Context, job *common.KernelJob) error {
	k, err := wp.kernels.Get(job.KernelSize)
	if err != nil {
		return err
	}

	img, err := wp.images.get(job.InputPath)
	if err != nil {
		return err
	}

	blurred, err := blur.Apply(ctx, img, k, blur.WithWorkers(1))
	if err != nil {
		return err
	}

	return wp.encode(job.OutputPath, blurred)
}

// imageCache keeps the most recently decoded input. Jobs of one batch share
// an input, so this avoids decoding it once per kernel size.
type imageCache struct {
	mu     sync.Mutex
	decode func(path string) (*blur.Image, error)
	path   string
	img    *blur.Image
}

func (c *imageCache) get(path string) (*blur.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.img != nil && c.path == path {
		return c.img, nil
	}
	img, err := c.decode(path)
	if err != nil {
		return nil, err
	}
	c.path, c.img = path, img
	return img, nil
}

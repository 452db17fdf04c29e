package assembler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go-blur/pkg/common"
	"go-blur/pkg/stats"
)

// ResultSource is the subset of the Redis client the collector needs.
type ResultSource interface {
	ReadResult(ctx context.Context, consumer string, block time.Duration) (string, *common.ResultMessage, error)
	AckResult(ctx context.Context, id string) error
	GetBatch(ctx context.Context, batchID string) (*common.BatchInfo, error)
	MarkSizeDone(ctx context.Context, batchID string, kernelSize int) (bool, error)
	DoneCount(ctx context.Context, batchID string) (int64, error)
	MarkBatchCompleted(ctx context.Context, batchID string) error
}

// Collector gathers kernel results per batch and writes a timing report once
// every kernel size of a batch has reported.
type Collector struct {
	queue       ResultSource
	collectorID string
	block       time.Duration
	reportDir   string
	log         zerolog.Logger
	batches     map[string]*batchProgress
	mutex       sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type batchProgress struct {
	info      *common.BatchInfo
	report    *stats.Report
	completed bool
}

func NewCollector(queue ResultSource, collectorID string, block time.Duration, reportDir string, log zerolog.Logger) *Collector {
	ctx, cancel := context.WithCancel(context.Background())

	return &Collector{
		queue:       queue,
		collectorID: collectorID,
		block:       block,
		reportDir:   reportDir,
		log:         log,
		batches:     make(map[string]*batchProgress),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start consumes results and blocks until Stop is called.
func (c *Collector) Start() {
	var wg sync.WaitGroup

	wg.Add(1)
	go c.resultProcessor(&wg)

	wg.Add(1)
	go c.progressMonitor(&wg)

	c.log.Info().Str("collector", c.collectorID).Msg("Collector started")
	wg.Wait()
}

func (c *Collector) Stop() {
	c.log.Info().Msg("Collector shutting down")
	c.cancel()
}

func (c *Collector) resultProcessor(wg *sync.WaitGroup) {
	defer wg.Done()

	consumer := fmt.Sprintf("collector-%s", c.collectorID)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		msgID, result, err := c.queue.ReadResult(c.ctx, consumer, c.block)
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.Error().Err(err).Msg("Read error")
				if msgID != "" {
					_ = c.queue.AckResult(c.ctx, msgID)
				}
			}
			continue
		}
		if result == nil {
			continue
		}

		if err := c.HandleResult(c.ctx, result); err != nil {
			c.log.Error().Err(err).Str("batch", result.BatchID).Msg("Failed to handle result")
			continue
		}
		_ = c.queue.AckResult(c.ctx, msgID)
	}
}

// HandleResult records one result. Duplicate results for a kernel size are
// ignored. When the last size of a batch arrives the batch is marked
// completed and its report written.
func (c *Collector) HandleResult(ctx context.Context, res *common.ResultMessage) error {
	progress, err := c.getOrCreateProgress(ctx, res.BatchID)
	if err != nil {
		return fmt.Errorf("failed to load batch: %w", err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if progress.completed {
		return nil
	}

	added, err := c.queue.MarkSizeDone(ctx, res.BatchID, res.KernelSize)
	if err != nil {
		return fmt.Errorf("failed to mark kernel size done: %w", err)
	}
	if !added {
		c.log.Debug().Str("batch", res.BatchID).Int("kernel_size", res.KernelSize).Msg("Duplicate result ignored")
		return nil
	}

	progress.report.Add(stats.Record{
		KernelSize: res.KernelSize,
		Duration:   time.Duration(res.ProcessTime * float64(time.Second)),
		OutputPath: res.OutputPath,
		Err:        res.Error,
	})

	// Completion follows the shared done set, not the local records.
	done, err := c.queue.DoneCount(ctx, res.BatchID)
	if err != nil {
		return fmt.Errorf("failed to count finished kernel sizes: %w", err)
	}
	expected := len(progress.info.KernelSizes)
	received := int(done)
	if received < expected {
		c.log.Debug().Str("batch", res.BatchID).Int("received", received).Int("expected", expected).Msg("Batch progress")
		return nil
	}

	progress.completed = true
	if err := c.queue.MarkBatchCompleted(ctx, res.BatchID); err != nil {
		c.log.Warn().Err(err).Str("batch", res.BatchID).Msg("Failed to mark batch completed")
	}

	c.log.Info().
		Str("batch", res.BatchID).
		Int("kernels", received).
		Int("failed", progress.report.Failed()).
		Dur("elapsed", time.Since(progress.info.StartTime)).
		Msg("Batch completed")

	if c.reportDir != "" {
		path, err := stats.WriteReport(c.reportDir, "distributed_", progress.report)
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		c.log.Info().Str("report", path).Msg("Report written")
	}
	return nil
}

// Completed reports whether the collector has seen every result of a batch.
func (c *Collector) Completed(batchID string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	p, ok := c.batches[batchID]
	return ok && p.completed
}

func (c *Collector) getOrCreateProgress(ctx context.Context, batchID string) (*batchProgress, error) {
	c.mutex.Lock()
	if p, ok := c.batches[batchID]; ok {
		c.mutex.Unlock()
		return p, nil
	}
	c.mutex.Unlock()

	info, err := c.queue.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if p, ok := c.batches[batchID]; ok {
		return p, nil
	}
	p := &batchProgress{
		info: info,
		report: &stats.Report{
			Algorithm: "Distributed",
			InputPath: info.InputPath,
			Width:     info.Width,
			Height:    info.Height,
			Timestamp: info.StartTime,
		},
	}
	c.batches[batchID] = p
	return p, nil
}

func (c *Collector) progressMonitor(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mutex.Lock()
			var incomplete int
			for id, p := range c.batches {
				if !p.completed {
					incomplete++
					c.log.Info().
						Str("batch", id).
						Int("received", len(p.report.Records)).
						Int("expected", len(p.info.KernelSizes)).
						Msg("Batch progress")
				}
			}
			active := len(c.batches)
			c.mutex.Unlock()

			if active > 0 {
				c.log.Info().Int("active", active).Int("incomplete", incomplete).Msg("Collector status")
			}
		}
	}
}

package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"go-blur/pkg/blur"
	"go-blur/pkg/config"
	"go-blur/pkg/imageio"
	"go-blur/pkg/stats"
)

// OutputName derives the output file name for a kernel size: the last path
// segment of input, cut at its first '.', plus "_gaussian_kernel<N>.png".
func OutputName(input string, kernelSize int) string {
	base := input
	if i := strings.LastIndexAny(input, "/"+string(filepath.Separator)); i >= 0 {
		base = input[i+1:]
	}
	stem, _, _ := strings.Cut(base, ".")
	return fmt.Sprintf("%s_gaussian_kernel%d.png", stem, kernelSize)
}

// Runner performs the local sweep: decode once, then one full-image pass per
// kernel size, each written to its own file.
type Runner struct {
	cfg    config.Config
	log    zerolog.Logger
	encode func(path string, img *blur.Image) error
}

func NewRunner(cfg config.Config, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		log:    log,
		encode: imageio.Encode,
	}
}

// Run blurs inputPath with every configured kernel size. A decode failure
// aborts before any work. A write failure stops the sweep unless KeepGoing is
// set, in which case all failures are returned joined.
func (r *Runner) Run(ctx context.Context, inputPath string) (*stats.Report, error) {
	sizes, err := r.cfg.KernelSizes()
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	img, err := imageio.Decode(inputPath)
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("input", inputPath).
		Int("width", img.Width).
		Int("height", img.Height).
		Ints("kernel_sizes", sizes).
		Msg("Processing image")

	report := &stats.Report{
		Algorithm: "Local",
		InputPath: inputPath,
		Width:     img.Width,
		Height:    img.Height,
		Workers:   r.cfg.Workers,
		Timestamp: startTime,
	}

	var errs []error
	for _, n := range sizes {
		outputPath := filepath.Join(r.cfg.OutputDir, OutputName(inputPath, n))
		rec, err := r.runSize(ctx, img, n, outputPath)
		report.Add(rec)
		if err == nil {
			continue
		}
		if ctx.Err() != nil || !errors.Is(err, imageio.ErrEncode) || !r.cfg.KeepGoing {
			return report, err
		}
		r.log.Error().Err(err).Int("kernel_size", n).Msg("Skipping kernel size")
		errs = append(errs, err)
	}

	if r.cfg.ReportDir != "" {
		path, err := stats.WriteReport(r.cfg.ReportDir, "local_", report)
		if err != nil {
			r.log.Warn().Err(err).Msg("Failed to write report")
		} else {
			r.log.Info().Str("report", path).Msg("Report written")
		}
	}

	r.log.Info().
		Int("kernels", len(report.Records)).
		Int("failed", report.Failed()).
		Dur("total", time.Since(startTime)).
		Msg("Sweep complete")

	return report, errors.Join(errs...)
}

func (r *Runner) runSize(ctx context.Context, img *blur.Image, n int, outputPath string) (stats.Record, error) {
	rec := stats.Record{KernelSize: n, OutputPath: outputPath}
	start := time.Now()

	k, err := blur.BuildKernel(n)
	if err != nil {
		rec.Err = err.Error()
		return rec, err
	}

	blurred, err := blur.Apply(ctx, img, k, blur.WithWorkers(r.cfg.Workers))
	if err != nil {
		rec.Err = err.Error()
		return rec, err
	}

	if err := r.encode(outputPath, blurred); err != nil {
		rec.Duration = time.Since(start)
		rec.Err = err.Error()
		return rec, err
	}

	rec.Duration = time.Since(start)
	r.log.Info().
		Int("kernel_size", n).
		Str("output", outputPath).
		Dur("duration", rec.Duration).
		Msgf("kernel size = %d x %d", n, n)
	return rec, nil
}

package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Record holds the outcome of one kernel-size pass.
type Record struct {
	KernelSize int
	Duration   time.Duration
	OutputPath string
	Err        string
}

// Report holds timing and metadata for one kernel sweep over an input image.
type Report struct {
	Algorithm string
	InputPath string
	Width     int
	Height    int
	Workers   int
	Timestamp time.Time
	Records   []Record
}

// Add appends a record.
func (r *Report) Add(rec Record) {
	r.Records = append(r.Records, rec)
}

// TotalTime sums the per-size durations.
func (r *Report) TotalTime() time.Duration {
	var total time.Duration
	for _, rec := range r.Records {
		total += rec.Duration
	}
	return total
}

// AverageTime is TotalTime divided by the number of records.
func (r *Report) AverageTime() time.Duration {
	if len(r.Records) == 0 {
		return 0
	}
	return r.TotalTime() / time.Duration(len(r.Records))
}

// Failed counts records carrying an error.
func (r *Report) Failed() int {
	var n int
	for _, rec := range r.Records {
		if rec.Err != "" {
			n++
		}
	}
	return n
}

// WriteReport writes reports to <dir>/<prefix><timestamp>.txt and returns the
// file path. The timestamp is taken from the first report.
func WriteReport(dir, prefix string, reports ...*Report) (string, error) {
	if len(reports) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	timestamp := reports[0].Timestamp.Format("2006-01-02_15-04-05")
	path := filepath.Join(dir, fmt.Sprintf("%s%s.txt", prefix, timestamp))

	var b strings.Builder
	fmt.Fprintf(&b, "=== Gaussian Kernel Sweep Results ===\n")
	fmt.Fprintf(&b, "Timestamp: %s\n\n", reports[0].Timestamp.Format("2006-01-02 15:04:05"))

	for _, r := range reports {
		fmt.Fprintf(&b, "=== %s Results ===\n", r.Algorithm)
		fmt.Fprintf(&b, "Input: %s (%dx%d)\n", r.InputPath, r.Width, r.Height)
		fmt.Fprintf(&b, "Kernel sizes processed: %d\n", len(r.Records))
		if r.Workers > 0 {
			fmt.Fprintf(&b, "Workers: %d\n", r.Workers)
		}
		fmt.Fprintf(&b, "Total blur time: %.2fs\n", r.TotalTime().Seconds())
		fmt.Fprintf(&b, "Average time per kernel: %.2fs\n", r.AverageTime().Seconds())
		if failed := r.Failed(); failed > 0 {
			fmt.Fprintf(&b, "Failed: %d\n", failed)
		}

		fmt.Fprintf(&b, "\nOutput files:\n")
		for i, rec := range r.Records {
			fmt.Fprintf(&b, "  %d. [%dx%d] %s %.3fs", i+1, rec.KernelSize, rec.KernelSize, rec.OutputPath, rec.Duration.Seconds())
			if rec.Err != "" {
				fmt.Fprintf(&b, " FAILED: %s", rec.Err)
			}
			fmt.Fprintf(&b, "\n")
		}
		fmt.Fprintf(&b, "\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

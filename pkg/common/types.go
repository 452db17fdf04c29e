package common

import (
	"time"
)

const (
	JobTypeKernel = "kernel"
)

// BatchInfo describes one submitted sweep: an input image and the kernel
// sizes queued for it.
type BatchInfo struct {
	ID          string    `json:"id"`
	InputPath   string    `json:"input_path"`
	OutputDir   string    `json:"output_dir"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	KernelSizes []int     `json:"kernel_sizes"`
	StartTime   time.Time `json:"start_time"`
}

// KernelJob asks a worker to blur InputPath with one kernel size.
type KernelJob struct {
	BatchID    string `json:"batch_id"`
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
	KernelSize int    `json:"kernel_size"`
}

type JobMessage struct {
	Type string     `json:"type"`
	Job  *KernelJob `json:"job,omitempty"`
}

// ResultMessage reports one finished kernel job. Error is empty on success.
type ResultMessage struct {
	BatchID     string  `json:"batch_id"`
	KernelSize  int     `json:"kernel_size"`
	OutputPath  string  `json:"output_path"`
	WorkerID    string  `json:"worker_id"`
	ProcessTime float64 `json:"process_time"`
	Error       string  `json:"error,omitempty"`
}

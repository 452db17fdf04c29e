// Package config holds the settings shared by every blur command.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// ErrUsage marks invalid command-line input.
var ErrUsage = errors.New("usage error")

// EnvPrefix prefixes the environment variable consulted for each flag.
const EnvPrefix = "BLUR_"

type Config struct {
	MinKernel int
	MaxKernel int
	Step      int
	Workers   int
	OutputDir string
	KeepGoing bool
	ReportDir string

	LogLevel  string
	LogFormat string

	RedisAddr    string
	BlockTimeout time.Duration
	Consumer     string
}

// Default returns the observed defaults: sizes 3, 5, ..., 31 written to the
// current directory.
func Default() Config {
	return Config{
		MinKernel:    3,
		MaxKernel:    31,
		Step:         2,
		OutputDir:    ".",
		LogLevel:     "info",
		LogFormat:    "console",
		RedisAddr:    "localhost:6379",
		BlockTimeout: 5 * time.Second,
	}
}

// Validate checks the kernel range.
func (c Config) Validate() error {
	if c.MinKernel < 3 || c.MinKernel%2 == 0 {
		return fmt.Errorf("%w: min kernel size %d must be odd and >= 3", ErrUsage, c.MinKernel)
	}
	if c.Step < 2 || c.Step%2 != 0 {
		return fmt.Errorf("%w: kernel step %d must be even and >= 2", ErrUsage, c.Step)
	}
	if c.MaxKernel < c.MinKernel {
		return fmt.Errorf("%w: max kernel size %d is below min %d", ErrUsage, c.MaxKernel, c.MinKernel)
	}
	if c.BlockTimeout < 0 {
		return fmt.Errorf("%w: negative block timeout", ErrUsage)
	}
	return nil
}

// KernelSizes expands the configured range in ascending order. The maximum is
// inclusive when it falls on the step.
func (c Config) KernelSizes() ([]int, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var sizes []int
	for n := c.MinKernel; n <= c.MaxKernel; n += c.Step {
		sizes = append(sizes, n)
	}
	return sizes, nil
}

// BindFlags registers every field on fs with its current value as default.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.MinKernel, "min-kernel", c.MinKernel, "Smallest kernel size (odd, >= 3)")
	fs.IntVar(&c.MaxKernel, "max-kernel", c.MaxKernel, "Largest kernel size, inclusive")
	fs.IntVar(&c.Step, "step", c.Step, "Kernel size increment (even)")
	fs.IntVarP(&c.Workers, "workers", "w", c.Workers, "Concurrent workers (0 = GOMAXPROCS)")
	fs.StringVarP(&c.OutputDir, "output", "o", c.OutputDir, "Output directory")
	fs.BoolVar(&c.KeepGoing, "keep-going", c.KeepGoing, "Continue with remaining kernel sizes after a write failure")
	fs.StringVar(&c.ReportDir, "report-dir", c.ReportDir, "Directory for timing reports (empty disables)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: console or json")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis address")
	fs.DurationVar(&c.BlockTimeout, "block-timeout", c.BlockTimeout, "Stream read block timeout")
	fs.StringVar(&c.Consumer, "consumer", c.Consumer, "Consumer name (default hostname-based)")
}

// ApplyEnv sets every flag that was not given on the command line from its
// BLUR_ environment variable, e.g. --redis from BLUR_REDIS.
func ApplyEnv(fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		key := EnvPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		v, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		if err := fs.Set(f.Name, v); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrUsage, key, err))
		}
	})
	return errors.Join(errs...)
}

// ConsumerName returns Consumer or a name derived from the hostname and
// start time.
func (c Config) ConsumerName() string {
	if c.Consumer != "" {
		return c.Consumer
	}
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

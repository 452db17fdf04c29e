package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go-blur/pkg/assembler"
	"go-blur/pkg/config"
	"go-blur/pkg/coordinator"
	"go-blur/pkg/logger"
	"go-blur/pkg/processor"
	"go-blur/pkg/queue"
)

// errNoInput mirrors the message printed when the image argument is missing.
var errNoInput = fmt.Errorf("%w: Input file path is not specified.", config.ErrUsage)

type app struct {
	cfg config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Default()}

	root := &cobra.Command{
		Use:   "blur <image>",
		Short: "Blur an image with binomial Gaussian kernels of increasing size",
		Long: `blur writes one copy of the input image per odd kernel size, named
<stem>_gaussian_kernel<N>.png, each blurred by direct 2D convolution with a
normalized binomial kernel. Pixels closer than N/2 to an edge are left black.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := inputArg(args)
			if err != nil {
				return err
			}
			_, err = processor.NewRunner(a.cfg, logger.Component(a.log, "processor")).Run(cmd.Context(), input)
			return err
		},
	}
	a.cfg.BindFlags(root.PersistentFlags())
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", config.ErrUsage, err)
	})

	root.AddCommand(
		&cobra.Command{
			Use:   "submit <image>",
			Short: "Queue one Redis job per kernel size for the image",
			Args:  cobra.ArbitraryArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				input, err := inputArg(args)
				if err != nil {
					return err
				}
				return a.withRedis(cmd.Context(), func(rc *queue.RedisClient) error {
					id, err := coordinator.NewCoordinator(rc, a.cfg, logger.Component(a.log, "coordinator")).Submit(cmd.Context(), input)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), id)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Consume kernel jobs until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withRedis(cmd.Context(), func(rc *queue.RedisClient) error {
					a.serve(cmd.Context(), rc, true, false)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "collect",
			Short: "Collect kernel results and write batch reports until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withRedis(cmd.Context(), func(rc *queue.RedisClient) error {
					a.serve(cmd.Context(), rc, false, true)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Run a worker pool and a collector in one process",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withRedis(cmd.Context(), func(rc *queue.RedisClient) error {
					a.serve(cmd.Context(), rc, true, true)
					return nil
				})
			},
		},
	)

	return root
}

func inputArg(args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", errNoInput
	}
	if len(args) > 1 {
		return "", fmt.Errorf("%w: expected one image path, got %d arguments", config.ErrUsage, len(args))
	}
	return args[0], nil
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := config.ApplyEnv(cmd.Flags()); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cmd.ErrOrStderr(), a.cfg.LogLevel, a.cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrUsage, err)
	}
	a.log = log

	if err := os.MkdirAll(a.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

func (a *app) withRedis(ctx context.Context, fn func(*queue.RedisClient) error) error {
	rc, err := queue.NewRedisClient(ctx, a.cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer rc.Close()

	if err := rc.EnsureGroups(ctx); err != nil {
		return err
	}
	return fn(rc)
}

// serve runs the requested components until ctx is cancelled.
func (a *app) serve(ctx context.Context, rc *queue.RedisClient, workers, collector bool) {
	serviceID := a.cfg.ConsumerName()
	a.log.Info().
		Str("service", serviceID).
		Str("redis", a.cfg.RedisAddr).
		Int("workers", a.cfg.Workers).
		Msg("Starting blur service")

	var wg sync.WaitGroup
	var stops []func()

	if workers {
		n := a.cfg.Workers
		if n < 1 {
			n = 4
		}
		wp := processor.NewWorkerPool(rc, n, a.cfg.BlockTimeout, serviceID, logger.Component(a.log, "worker"))
		stops = append(stops, wp.Stop)
		wg.Add(1)
		go func() {
			defer wg.Done()
			wp.Start()
		}()
	}

	if collector {
		c := assembler.NewCollector(rc, serviceID, a.cfg.BlockTimeout, a.reportDir(), logger.Component(a.log, "collector"))
		stops = append(stops, c.Stop)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Start()
		}()
	}

	<-ctx.Done()
	a.log.Info().Msg("Shutting down")
	for _, stop := range stops {
		stop()
	}
	wg.Wait()
	a.log.Info().Msg("Service shutdown complete")
}

func (a *app) reportDir() string {
	if a.cfg.ReportDir != "" {
		return a.cfg.ReportDir
	}
	return "logs"
}

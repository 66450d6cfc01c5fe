// Package run implements the acquisition pipeline command.
package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dpscience/ddrs4pals/internal/acquisition"
	"github.com/dpscience/ddrs4pals/internal/buildinfo"
	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
	"github.com/dpscience/ddrs4pals/internal/forward"
	"github.com/dpscience/ddrs4pals/internal/logger"
	"github.com/dpscience/ddrs4pals/internal/monitor"
	"github.com/dpscience/ddrs4pals/internal/observability"
	"github.com/dpscience/ddrs4pals/internal/ringbuffer"
)

// Command creates the run command.
func Command(info *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Acquire, calibrate and forward events",
		Long: "Start the producer and consumer loops over one ring buffer. The simulated DRS4 source " +
			"feeds the producer; the consumer calibrates events and forwards them in frames to the configured sink. " +
			"SIGINT or SIGTERM stops acquisition and drains the buffer, a second signal aborts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Acquisition(cmd.Context(), conf.GetSettings(), info)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

// setupFlags binds the run flags to their configuration keys.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("sink", "", "Forward sink: writer, memory, mqtt or kafka")
	cmd.Flags().StringP("output", "o", "", "Output file of the writer sink, - for stdout")
	cmd.Flags().String("compression", "", "Frame compression: none or zstd")
	cmd.Flags().Uint64P("events", "n", 0, "Stop after this many events, 0 runs until interrupted")
	cmd.Flags().Float64("rate", 0, "Simulated trigger rate in events/s, 0 = as fast as possible")
	cmd.Flags().Bool("telemetry", false, "Enable the Prometheus and status endpoint")
	cmd.Flags().String("listen", "", "Listen address of the telemetry endpoint")

	bindings := map[string]string{
		"sink":        "forward.sink",
		"output":      "forward.path",
		"compression": "forward.compression",
		"events":      "acquisition.maxevents",
		"rate":        "acquisition.eventrate",
		"telemetry":   "telemetry.prometheus.enabled",
		"listen":      "telemetry.prometheus.listen",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// Acquisition runs the pipeline until the event limit is reached, the
// context is cancelled or a shutdown signal arrives.
func Acquisition(ctx context.Context, settings *conf.Settings, info *buildinfo.Context) error {
	if settings == nil {
		return fmt.Errorf("settings not loaded")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Global().Module("run")

	m, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	registry := ringbuffer.NewRegistry(
		ringbuffer.WithMaxBuffers(settings.RingBuffer.MaxBuffers),
		ringbuffer.WithPollInterval(settings.RingBuffer.PollInterval),
		ringbuffer.WithMetrics(m.RingBuffer),
	)
	defer registry.Close()

	source, err := acquisition.NewPulseGenerator(&settings.Acquisition)
	if err != nil {
		return err
	}

	codec, err := forward.NewCodec(settings.Forward.Compression)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	sink, err := forward.New(ctx, settings, forward.Options{
		Codec:   codec,
		Header:  forward.HeaderFromSettings(&settings.Acquisition, codec),
		RunID:   runID,
		Node:    settings.Main.Name,
		Metrics: m.Forward,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Error("failed to close sink", logger.Error(err))
		}
	}()

	worker, err := acquisition.NewWorker(settings, registry, source, sink,
		acquisition.WithRunID(runID),
		acquisition.WithCodec(codec),
		acquisition.WithAcquisitionMetrics(m.Acquisition),
		acquisition.WithForwardMetrics(m.Forward),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := worker.Close(); err != nil {
			log.Warn("failed to delete ring buffer", logger.Error(err))
		}
	}()

	var wg sync.WaitGroup
	quit := make(chan struct{})
	defer func() {
		close(quit)
		wg.Wait()
	}()
	if settings.Telemetry.Prometheus.Enabled {
		endpoint, err := observability.NewEndpoint(settings, m, registry)
		if err != nil {
			return err
		}
		endpoint.Start(&wg, quit)
	}

	mon := monitor.NewSystemMonitor(settings, registry, m.System)

	log.Info("acquisition pipeline ready",
		logger.String("run_id", runID),
		logger.String("system_id", info.SystemID()),
		logger.String("sink", sink.Name()),
		logger.Int("handle", int(worker.Handle())))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		// the worker ends the run, the monitor follows
		defer cancel()
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return mon.Run(gctx)
	})
	g.Go(func() error {
		waitForShutdown(gctx, cancel, log)
		return nil
	})

	err = g.Wait()

	st := worker.Stats()
	log.Info("acquisition pipeline stopped",
		logger.String("run_id", runID),
		logger.Uint64("events", st.Consumed),
		logger.Uint64("frames", st.Frames),
		logger.Uint64("dropped", st.Dropped),
		logger.Uint64("invalid", st.Invalid))

	if errors.Is(err, context.Canceled) {
		// aborted by a second signal
		return nil
	}
	return err
}

// waitForShutdown turns the first SIGINT or SIGTERM into a drain: the
// process-wide switch makes every ring buffer wait return immediately, the
// producer stops and the consumer forwards what is left. A second signal
// cancels the run.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, log logger.Logger) {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case s := <-sig:
		log.Info("shutdown signal received, draining", logger.String("signal", s.String()))
		ringbuffer.SetNonblocking()
	case <-ctx.Done():
		return
	}

	select {
	case s := <-sig:
		log.Warn("second signal received, aborting", logger.String("signal", s.String()))
		cancel()
	case <-ctx.Done():
	}
}

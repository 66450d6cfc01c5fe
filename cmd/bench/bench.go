// Package bench measures ring buffer throughput with one producer and one consumer.
package bench

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dpscience/ddrs4pals/internal/errors"
	"github.com/dpscience/ddrs4pals/internal/ringbuffer"
)

// recordHeader is the per-record prefix: size u32 | seq u64.
const recordHeader = 12

// Options describe one benchmark run.
type Options struct {
	Events   uint64
	Size     int           // record size in bytes, the upper bound when Variable is set
	Capacity int           // buffer capacity in bytes
	Timeout  time.Duration // bounded wait per acquire
	Variable bool          // draw record sizes uniformly from [recordHeader, Size]
	Seed     uint64
}

// Result holds the measured throughput.
type Result struct {
	Events        uint64
	Bytes         uint64
	Elapsed       time.Duration
	WriteTimeouts uint64
	ReadTimeouts  uint64
	WriteWraps    uint64
	ReadWraps     uint64
}

// EventsPerSecond returns the record rate.
func (r Result) EventsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Events) / r.Elapsed.Seconds()
}

// MBPerSecond returns the payload throughput in MB/s.
func (r Result) MBPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bytes) / 1e6 / r.Elapsed.Seconds()
}

// Command creates the bench command.
func Command() *cobra.Command {
	opts := Options{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure ring buffer throughput",
		Long:  "Pass records from one producer goroutine to one consumer goroutine through a single ring buffer and report the transfer rate.",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			Print(cmd.OutOrStdout(), opts, res)
			return nil
		},
	}

	cmd.Flags().Uint64VarP(&opts.Events, "events", "n", 1_000_000, "number of records to transfer")
	cmd.Flags().IntVarP(&opts.Size, "size", "s", 16*1024, "record size in bytes")
	cmd.Flags().IntVar(&opts.Capacity, "capacity", 16*1024*1024, "buffer capacity in bytes")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 100*time.Millisecond, "bounded wait per acquire")
	cmd.Flags().BoolVar(&opts.Variable, "variable", false, "use random record sizes up to --size")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "seed for variable record sizes")

	return cmd
}

// Run transfers opts.Events records and verifies their order on the consumer side.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Events == 0 || opts.Size < recordHeader {
		return Result{}, errors.Newf("bench needs at least one record of %d bytes or more", recordHeader).
			Component("cmd/bench").
			Category(errors.CategoryValidation).
			Build()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// a private switch keeps the benchmark independent of the process-wide one
	registry := ringbuffer.NewRegistry(ringbuffer.WithSwitch(ringbuffer.NewSwitch()))
	defer registry.Close()

	h, err := registry.Create(opts.Capacity, opts.Size)
	if err != nil {
		return Result{}, err
	}
	buf, err := registry.Buffer(h)
	if err != nil {
		return Result{}, err
	}

	var res Result
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed+1))
		for seq := uint64(0); seq < opts.Events; {
			if err := gctx.Err(); err != nil {
				return err
			}
			region, err := buf.AcquireWriteContext(gctx, opts.Timeout)
			if errors.Is(err, ringbuffer.ErrTimeout) {
				res.WriteTimeouts++
				continue
			}
			if err != nil {
				return err
			}
			size := opts.Size
			if opts.Variable {
				size = recordHeader + rng.IntN(opts.Size-recordHeader+1)
			}
			b := buf.Bytes(region)
			binary.LittleEndian.PutUint32(b, uint32(size))
			binary.LittleEndian.PutUint64(b[4:], seq)
			if err := buf.CommitWrite(size); err != nil {
				return err
			}
			seq++
		}
		return nil
	})
	g.Go(func() error {
		for seq := uint64(0); seq < opts.Events; {
			if err := gctx.Err(); err != nil {
				return err
			}
			region, err := buf.AcquireReadContext(gctx, opts.Timeout)
			if errors.Is(err, ringbuffer.ErrTimeout) {
				res.ReadTimeouts++
				continue
			}
			if err != nil {
				return err
			}
			b := buf.Bytes(region)
			size := int(binary.LittleEndian.Uint32(b))
			if got := binary.LittleEndian.Uint64(b[4:]); got != seq {
				return fmt.Errorf("record out of order: got %d, want %d", got, seq)
			}
			if err := buf.CommitRead(size); err != nil {
				return err
			}
			res.Bytes += uint64(size)
			seq++
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res.Elapsed = time.Since(start)
	res.Events = opts.Events
	st := buf.Stats()
	res.WriteWraps = st.WriteWraps
	res.ReadWraps = st.ReadWraps
	return res, nil
}

// Print writes a short report of res.
func Print(w io.Writer, opts Options, res Result) {
	sizing := fmt.Sprintf("%d bytes", opts.Size)
	if opts.Variable {
		sizing = fmt.Sprintf("up to %d bytes", opts.Size)
	}
	fmt.Fprintf(w, "Records:        %d (%s)\n", res.Events, sizing)
	fmt.Fprintf(w, "Capacity:       %d bytes\n", opts.Capacity)
	fmt.Fprintf(w, "Elapsed:        %s\n", res.Elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "Throughput:     %.0f records/s, %.1f MB/s\n", res.EventsPerSecond(), res.MBPerSecond())
	fmt.Fprintf(w, "Timeouts:       %d write, %d read\n", res.WriteTimeouts, res.ReadTimeouts)
	fmt.Fprintf(w, "Wraps:          %d write, %d read\n", res.WriteWraps, res.ReadWraps)
}

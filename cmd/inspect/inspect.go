// Package inspect reads a recorded event stream and summarizes it.
package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dpscience/ddrs4pals/internal/acquisition"
	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
	"github.com/dpscience/ddrs4pals/internal/forward"
)

// Summary describes the content of a stream.
type Summary struct {
	Header       forward.StreamHeader `json:"header"`
	Runs         []string             `json:"runs"`
	Frames       int                  `json:"frames"`
	Events       int                  `json:"events"`
	Valid        int                  `json:"valid"`
	MeanLifetime float64              `json:"mean_lifetime_ns"`
	FirstSeq     uint64               `json:"first_seq"`
	LastSeq      uint64               `json:"last_seq"`
	Gaps         int                  `json:"gaps"` // sequence breaks within a run
}

// Command creates the inspect command.
func Command() *cobra.Command {
	var (
		asJSON bool
		dump   bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <stream>",
		Short: "Summarize a stream written by the writer sink",
		Long:  "Read a stream file, or stdin when the path is -, and report frames, events and the mean lifetime of valid events.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.New(err).
						Component("cmd/inspect").
						Category(errors.CategoryFileIO).
						Context("path", args[0]).
						Build()
				}
				defer f.Close()
				in = f
			}

			var frames io.Writer
			if dump {
				frames = cmd.OutOrStdout()
			}
			s, err := Summarize(in, frames)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			Print(cmd.OutOrStdout(), s)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	cmd.Flags().BoolVar(&dump, "frames", false, "print every decoded frame as one JSON line")

	return cmd
}

// Summarize reads the whole stream. When frames is not nil every decoded
// frame is written to it as one JSON line.
func Summarize(r io.Reader, frames io.Writer) (Summary, error) {
	sr, err := forward.NewStreamReader(r)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{Header: sr.Header()}
	compression := conf.CompressionNone
	if s.Header.Compressed {
		compression = conf.CompressionZstd
	}
	codec, err := forward.NewCodec(compression)
	if err != nil {
		return Summary{}, err
	}

	var (
		payload  []byte
		frame    acquisition.Frame
		lifetime float64
		lastRun  string
	)
	for {
		raw, err := sr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, err
		}
		if payload, err = codec.Decode(payload[:0], raw); err != nil {
			return s, err
		}
		frame = acquisition.Frame{}
		if err := json.Unmarshal(payload, &frame); err != nil {
			return s, errors.New(err).
				Component("cmd/inspect").
				Category(errors.CategoryEncoding).
				Context("frame", s.Frames).
				Build()
		}
		if frames != nil {
			if _, err := frames.Write(append(payload, '\n')); err != nil {
				return s, err
			}
		}

		s.Frames++
		if frame.Run != lastRun {
			s.Runs = append(s.Runs, frame.Run)
			lastRun = frame.Run
		} else if len(frame.Events) > 0 && s.Events > 0 && frame.Events[0].Seq != s.LastSeq+1 {
			s.Gaps++
		}
		for i := range frame.Events {
			ev := &frame.Events[i]
			if s.Events == 0 {
				s.FirstSeq = ev.Seq
			} else if i > 0 && ev.Seq != frame.Events[i-1].Seq+1 {
				s.Gaps++
			}
			s.LastSeq = ev.Seq
			s.Events++
			if ev.Valid {
				s.Valid++
				lifetime += ev.Lifetime
			}
		}
	}
	if s.Valid > 0 {
		s.MeanLifetime = lifetime / float64(s.Valid)
	}
	return s, nil
}

// Print writes a human readable summary.
func Print(w io.Writer, s Summary) {
	h := s.Header
	fmt.Fprintf(w, "Stream version: %d (compressed: %t)\n", h.Version, h.Compressed)
	fmt.Fprintf(w, "Geometry:       %d channels x %d cells at %.3f GHz (%.1f ns sweep)\n",
		h.Channels, h.Samples, h.SampleSpeed, h.Sweep)
	fmt.Fprintf(w, "Runs:           %d\n", len(s.Runs))
	fmt.Fprintf(w, "Frames:         %d\n", s.Frames)
	fmt.Fprintf(w, "Events:         %d (seq %d..%d, %d gaps)\n", s.Events, s.FirstSeq, s.LastSeq, s.Gaps)
	if s.Events > 0 {
		fmt.Fprintf(w, "Valid:          %d (%.1f %%)\n", s.Valid, 100*float64(s.Valid)/float64(s.Events))
	}
	if s.Valid > 0 {
		fmt.Fprintf(w, "Mean lifetime:  %.4f ns\n", s.MeanLifetime)
	}
}

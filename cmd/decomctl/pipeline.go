package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"example.com/tlmdecom/internal/common"
	"example.com/tlmdecom/internal/decom"
	"example.com/tlmdecom/internal/mdb"
	"example.com/tlmdecom/internal/stream"
)

// inputFlags are shared by every command that decodes a recording.
type inputFlags struct {
	schema      string
	container   string
	in          string
	framing     string
	recordSize  int
	skip        int
	concurrency int
	lenient     bool
	noSubtypes  bool
	progress    bool
}

func (f *inputFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.schema, "schema", "s", "", "mission database YAML file")
	fl.StringVarP(&f.container, "container", "c", "", "container every packet starts with")
	fl.StringVarP(&f.in, "in", "i", "", "recording to decode")
	fl.StringVar(&f.framing, "framing", string(stream.FramingCCSDS), "packet framing: ccsds, fixed or none")
	fl.IntVar(&f.recordSize, "record-size", 0, "record size in bytes for fixed framing")
	fl.IntVar(&f.skip, "skip-bytes", 0, "bytes to drop before every packet")
	fl.IntVar(&f.concurrency, "concurrency", runtime.NumCPU(), "decode workers")
	fl.BoolVar(&f.lenient, "lenient", false, "keep decoding past calibration failures")
	fl.BoolVar(&f.noSubtypes, "no-subtypes", false, "do not descend into inheriting containers")
	fl.BoolVar(&f.progress, "progress", term.IsTerminal(int(os.Stderr.Fd())), "display progress on stderr")
	cmd.MarkFlagRequired("schema")
	cmd.MarkFlagRequired("container")
	cmd.MarkFlagRequired("in")
}

// session is a loaded schema bound to one recording.
type session struct {
	flags   *inputFlags
	db      *mdb.Database
	decoder *decom.Decoder
	framing stream.Framing
	schema  common.FileDigest
	input   common.FileDigest
	metrics *common.Metrics
	log     logrus.FieldLogger
}

func (f *inputFlags) open() (*session, error) {
	framing, err := stream.ParseFraming(f.framing)
	if err != nil {
		return nil, err
	}
	db, err := mdb.Load(f.schema)
	if err != nil {
		return nil, err
	}
	if _, ok := db.Container(f.container); !ok {
		return nil, fmt.Errorf("%w: %s", decom.ErrUnknownContainer, f.container)
	}
	schema, err := common.DigestFile(f.schema)
	if err != nil {
		return nil, err
	}
	input, err := common.DigestFile(f.in)
	if err != nil {
		return nil, err
	}
	log := common.Logger().WithFields(logrus.Fields{"schema": f.schema, "input": f.in})
	opts := decom.DefaultOptions()
	opts.ResolveSubtypes = !f.noSubtypes
	opts.ContinueOnCalibrationError = f.lenient
	opts.Logger = log
	return &session{
		flags:   f,
		db:      db,
		decoder: decom.NewDecoder(db, opts),
		framing: framing,
		schema:  schema,
		input:   input,
		metrics: common.NewMetrics(),
		log:     log,
	}, nil
}

// calibrationErrors counts the errors joined into a lenient decode.
func calibrationErrors(err error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}

// run decodes the recording and hands every outcome to fn in stream order.
func (s *session) run(ctx context.Context, fn func(stream.Outcome) error) error {
	s.metrics.SetTotalBytes(s.input.Size)
	s.metrics.Start()
	defer s.metrics.Stop()
	if s.flags.progress {
		stop := common.StartProgressPrinter(os.Stderr, s.metrics, 500*time.Millisecond)
		defer stop()
	}

	count := func(o stream.Outcome) error {
		if o.Result == nil {
			s.metrics.AddFailed()
			s.log.WithField("packet", o.Packet.Index).WithError(o.Err).Debug("packet not decoded")
		} else {
			s.metrics.AddDecoded(int64(o.Result.BitsConsumed), calibrationErrors(o.Err))
		}
		return fn(o)
	}

	var err error
	if s.framing == stream.FramingNone {
		var data []byte
		if data, err = os.ReadFile(s.flags.in); err != nil {
			return err
		}
		err = stream.DecodeConcatenated(ctx, data, s.decoder, s.flags.container, s.metrics, count)
	} else {
		var f *os.File
		if f, err = os.Open(s.flags.in); err != nil {
			return err
		}
		defer f.Close()
		var src stream.Source
		if src, err = stream.NewSource(bufio.NewReaderSize(f, 1<<16), s.framing, s.flags.recordSize, s.flags.skip); err != nil {
			return err
		}
		if ms, ok := src.(interface{ SetMetrics(*common.Metrics) }); ok {
			ms.SetMetrics(s.metrics)
		}
		err = stream.DecodeAll(ctx, src, s.decoder, s.flags.container, s.flags.concurrency, count)
	}
	snap := s.metrics.Snapshot()
	entry := s.log.WithFields(logrus.Fields{
		"packets":  snap.Packets,
		"decoded":  snap.Decoded,
		"failed":   snap.Failed,
		"duration": snap.Duration.Round(time.Millisecond),
	})
	if err != nil && !errors.Is(err, errThreshold) {
		entry.WithError(err).Warn("decode stopped")
		return err
	}
	entry.Info("decode finished")
	return err
}

// Package pipeline drives one capture-to-encode session: warmup,
// a fixed frame budget of pull/adapt/submit/drain cycles, and a final
// flush of the encoder.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-encode/pkg/capture"
	"github.com/video-system/go-camera-encode/pkg/encode"
	"github.com/video-system/go-camera-encode/pkg/format"
	"github.com/video-system/go-camera-encode/pkg/output"
	"github.com/video-system/go-camera-encode/pkg/source"
)

// State is the driver's position in the session lifecycle.
type State int

const (
	StateWarming State = iota
	StateRunning
	StateFlushing
	StateDone
	StateAborted
)

// String returns a human-readable driver state.
func (s State) String() string {
	switch s {
	case StateWarming:
		return "warming"
	case StateRunning:
		return "running"
	case StateFlushing:
		return "flushing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Driver owns one capture session. It is the single thread of control:
// the source, session, and sink are only ever touched from Run, in
// strict pull -> adapt -> submit -> drain-until-empty order, so frame
// N's borrowed memory is fully consumed before frame N+1 invalidates
// it.
type Driver struct {
	cfg     *capture.Config
	src     source.Source
	session encode.Session
	sink    output.Sink

	sessionID string
	state     State
	submitted bool // at least one frame reached the session
	log       *logrus.Entry
}

// New creates a driver over already-opened collaborators. The driver
// takes ownership: Run closes the source, session, and sink on every
// exit path.
func New(cfg *capture.Config, src source.Source, session encode.Session, sink output.Sink) *Driver {
	id := uuid.NewString()
	return &Driver{
		cfg:       cfg,
		src:       src,
		session:   session,
		sink:      sink,
		sessionID: id,
		log: logrus.WithFields(logrus.Fields{
			"component": "pipeline",
			"session":   id,
		}),
	}
}

// State returns the driver's current state.
func (d *Driver) State() State {
	return d.state
}

// Run executes the session to completion and reports the outcome.
// Failures never unwind past the driver; they land in the report.
func (d *Driver) Run(ctx context.Context) *capture.Report {
	rep := &capture.Report{
		SessionID:   d.sessionID,
		FrameBudget: d.cfg.FrameBudget(),
		OutputPath:  d.cfg.OutputPath,
	}

	defer func() {
		if err := d.session.Close(); err != nil {
			d.log.WithError(err).Warn("Encoder close failed")
		}
		if err := d.sink.Close(); err != nil {
			d.log.WithError(err).Warn("Sink close failed")
			if rep.Err == nil {
				rep.Err = fmt.Errorf("close sink: %w", err)
			}
		}
		if err := d.src.Close(); err != nil {
			d.log.WithError(err).Warn("Source close failed")
		}
		rep.FinalState = d.state.String()
	}()

	runErr := d.capture(ctx, rep)

	// Whatever was submitted still gets flushed, even after an abort,
	// so packets buffered inside the encoder reach the sink.
	if d.submitted {
		if runErr == nil {
			d.state = StateFlushing
		}
		if err := d.flush(rep); err != nil && runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		d.state = StateAborted
		rep.Err = runErr
		d.log.WithError(runErr).WithField("frames", rep.FramesProcessed).Error("Pipeline aborted")
		return rep
	}

	d.state = StateDone
	d.log.WithFields(logrus.Fields{
		"frames":  rep.FramesProcessed,
		"packets": rep.PacketsWritten,
		"bytes":   rep.BytesWritten,
	}).Info("Pipeline finished")
	return rep
}

// capture runs the Warming and Running states.
func (d *Driver) capture(ctx context.Context, rep *capture.Report) error {
	d.state = StateWarming
	d.log.WithField("frames", d.cfg.WarmupFrames).Debug("Warming up source")

	// Discard early frames so auto-exposure and white balance settle.
	// A source failure here is not special: it aborts the run.
	for i := 0; i < d.cfg.WarmupFrames; i++ {
		if _, err := d.src.NextFrame(ctx); err != nil {
			return fmt.Errorf("warmup frame %d: %w", i+1, err)
		}
	}

	d.state = StateRunning
	for i := 0; i < rep.FrameBudget; i++ {
		frame, err := d.src.NextFrame(ctx)
		if err != nil {
			return fmt.Errorf("pull frame %d: %w", i+1, err)
		}

		d.log.WithFields(logrus.Fields{
			"number": frame.Number,
			"width":  frame.Width,
			"height": frame.Height,
			"stride": frame.Stride,
		}).Debug("Frame captured")

		in, err := format.Adapt(frame)
		if err != nil {
			return fmt.Errorf("adapt frame %d: %w", i+1, err)
		}

		if err := d.session.Submit(in); err != nil {
			return fmt.Errorf("submit frame %d: %w", i+1, err)
		}
		d.submitted = true

		if err := d.drainToSink(rep); err != nil {
			return fmt.Errorf("drain after frame %d: %w", i+1, err)
		}

		rep.FramesProcessed++
	}
	return nil
}

// flush signals end of stream and drains the remaining packets.
func (d *Driver) flush(rep *capture.Report) error {
	d.log.Debug("Flushing encoder")
	if err := d.session.Submit(nil); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := d.drainToSink(rep); err != nil {
		return fmt.Errorf("final drain: %w", err)
	}
	return nil
}

// drainToSink pulls packets until the session reports empty, appending
// each one to the sink.
func (d *Driver) drainToSink(rep *capture.Report) error {
	for {
		pkt, status := d.session.DrainOne()
		switch status {
		case encode.DrainPacket:
			if err := d.sink.WritePacket(pkt); err != nil {
				return fmt.Errorf("write packet: %w", err)
			}
			rep.PacketsWritten++
			rep.BytesWritten += int64(pkt.Size())
			d.log.WithField("bytes", pkt.Size()).Debug("Packet written")
		case encode.DrainEmpty:
			return nil
		case encode.DrainFailed:
			return encode.ErrSessionFailed
		}
	}
}

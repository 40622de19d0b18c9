// Package logsink implements a sink that prints meter readings
// in human-readable form.
package logsink

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"gopkg.in/errgo.v1"

	"github.com/rogpeppe/p1influx/p1meter"
)

// Sink prints each snapshot as a sequence of "name: value" lines.
// It implements sampleworker.Sink.
type Sink struct {
	w io.Writer
}

// New returns a Sink that writes to w.
func New(w io.Writer) *Sink {
	return &Sink{
		w: w,
	}
}

// WriteSnapshot implements sampleworker.Sink.WriteSnapshot.
func (s *Sink) WriteSnapshot(ctx context.Context, snap *p1meter.Snapshot, slow bool) error {
	var buf bytes.Buffer
	for _, r := range snap.Readings() {
		fmt.Fprintf(&buf, "%s: %v\n", r.Name, r.Value)
	}
	if slow {
		for _, r := range snap.GasReadings() {
			fmt.Fprintf(&buf, "%s: %v\n", r.Name, r.Value)
		}
	}
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return errgo.Notef(err, "cannot print readings")
	}
	return nil
}

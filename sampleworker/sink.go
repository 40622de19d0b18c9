package sampleworker

import (
	"context"
	"strings"

	"gopkg.in/errgo.v1"

	"github.com/rogpeppe/p1influx/p1meter"
)

// MultiSink is a Sink that writes to each of its members in turn.
// All members are written to even if some fail.
type MultiSink []Sink

// WriteSnapshot implements Sink.WriteSnapshot.
func (ms MultiSink) WriteSnapshot(ctx context.Context, s *p1meter.Snapshot, slow bool) error {
	var failed []string
	for _, sink := range ms {
		if err := sink.WriteSnapshot(ctx, s, slow); err != nil {
			failed = append(failed, err.Error())
		}
	}
	if len(failed) > 0 {
		return errgo.Newf("%s", strings.Join(failed, "; "))
	}
	return nil
}

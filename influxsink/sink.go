// Package influxsink writes P1 meter snapshots to InfluxDB.
//
// Each reading is written as a separate measurement named after
// the meter field, with a single field named after its unit, for
// example:
//
//	active_power_w watt=-543
//	total_gas_m3 m3=2569.646
package influxsink

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/juju/loggo"
	"gopkg.in/errgo.v1"

	"github.com/rogpeppe/p1influx/p1meter"
)

var logger = loggo.GetLogger("p1influx.influxsink")

type Params struct {
	// URL holds the URL of the InfluxDB server,
	// for example "http://localhost:8086".
	URL string
	// Token holds the API token used to authenticate.
	Token string
	// Org holds the InfluxDB organization.
	Org string
	// Bucket holds the bucket to write to.
	Bucket string
	// Now is used to timestamp the points. If it's nil, time.Now is used.
	Now func() time.Time
}

// Sink writes snapshots to InfluxDB. It implements sampleworker.Sink.
type Sink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	now    func() time.Time
}

// New returns a new Sink that writes to the given InfluxDB server.
// No connection is made until the first write.
// The returned Sink should be closed after use.
func New(p Params) (*Sink, error) {
	if p.URL == "" {
		return nil, errgo.Newf("no InfluxDB URL set")
	}
	if p.Org == "" || p.Bucket == "" {
		return nil, errgo.Newf("InfluxDB organization and bucket must both be set")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	client := influxdb2.NewClient(p.URL, p.Token)
	return &Sink{
		client: client,
		write:  client.WriteAPIBlocking(p.Org, p.Bucket),
		now:    p.Now,
	}, nil
}

// WriteSnapshot implements sampleworker.Sink.WriteSnapshot.
// All the points are sent in a single request.
func (s *Sink) WriteSnapshot(ctx context.Context, snap *p1meter.Snapshot, slow bool) error {
	if slow && snap.Gas == nil {
		logger.Debugf("no gas reading available")
	}
	points := Points(snap, slow, s.now())
	if err := s.write.WritePoint(ctx, points...); err != nil {
		return errgo.Notef(err, "cannot write %d points to InfluxDB", len(points))
	}
	return nil
}

// Close releases the resources associated with the sink.
func (s *Sink) Close() {
	s.client.Close()
}

// Points returns the points to write for the given snapshot, all
// with the time t. The gas readings are included only if
// slow is true and the snapshot holds a gas reading.
func Points(snap *p1meter.Snapshot, slow bool, t time.Time) []*write.Point {
	readings := snap.Readings()
	if slow {
		readings = append(readings, snap.GasReadings()...)
	}
	points := make([]*write.Point, len(readings))
	for i, r := range readings {
		points[i] = influxdb2.NewPoint(
			r.Name,
			nil,
			map[string]interface{}{
				r.Unit: r.Value,
			},
			t,
		)
	}
	return points
}

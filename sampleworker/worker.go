// Package sampleworker provides a worker that polls a P1 meter at
// a fixed interval and passes each snapshot on to a Sink.
//
// Gas readings change much less often than electricity readings,
// so only every Nth snapshot is marked as a slow-cycle snapshot,
// where N is determined by the cadence plan. The first snapshot is
// always a slow-cycle snapshot.
package sampleworker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/loggo"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/errgo.v1"

	"github.com/rogpeppe/p1influx/cadence"
	"github.com/rogpeppe/p1influx/p1meter"
)

var logger = loggo.GetLogger("p1influx.sampleworker")

// Sink receives the snapshots read by the worker.
type Sink interface {
	// WriteSnapshot writes the readings in s. When slow is true,
	// the gas readings should be written too. The snapshot
	// must not be mutated.
	WriteSnapshot(ctx context.Context, s *p1meter.Snapshot, slow bool) error
}

type Params struct {
	// MeterAddr holds the address of the meter.
	MeterAddr string
	// Plan holds the sampling intervals to use.
	Plan cadence.Plan
	// Sink receives each snapshot.
	Sink Sink
	// Fetch is used to read a snapshot from the meter.
	// If it's nil, p1meter.Get will be used.
	Fetch func(ctx context.Context, addr string) (*p1meter.Snapshot, error)
	// FetchTimeout bounds the time taken to read the meter.
	// If it's zero, DefaultFetchTimeout will be used.
	FetchTimeout time.Duration
	// WriteTimeout bounds the time taken to write to the sink.
	// If it's zero, DefaultWriteTimeout will be used.
	WriteTimeout time.Duration
	// Now is used to query the current time. If it's nil, time.Now will be used.
	Now func() time.Time
	// After is used to wait between samples. If it's nil, time.After will be used.
	After func(time.Duration) <-chan time.Time
	// Registerer is used to register the worker's metrics.
	// If it's nil, the metrics are not registered.
	Registerer prometheus.Registerer
}

const (
	DefaultFetchTimeout = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Status holds information about the progress of a worker.
type Status struct {
	MeterAddr string `json:"meter_addr"`
	// Ticks holds the number of samples attempted.
	Ticks int `json:"ticks"`
	// SlowTicks holds the number of those samples that were
	// slow-cycle samples.
	SlowTicks int `json:"slow_ticks"`
	// Delivered holds the number of snapshots
	// successfully written to the sink.
	Delivered int `json:"delivered"`
	// LastTick holds the time the most recent sample was started.
	LastTick time.Time `json:"last_tick"`
	// LastDelivery holds the time of the most recent
	// successful write to the sink.
	LastDelivery time.Time `json:"last_delivery"`
	// LastError holds the most recent error, if any.
	LastError string `json:"last_error,omitempty"`
}

// New returns a new Worker that reads the meter and writes
// to the sink until it is closed.
func New(p Params) (*Worker, error) {
	if p.MeterAddr == "" {
		return nil, fmt.Errorf("no meter address set")
	}
	if p.Sink == nil {
		return nil, fmt.Errorf("no sink set")
	}
	if p.Plan.Fast <= 0 {
		return nil, fmt.Errorf("invalid sample interval %v", p.Plan.Fast)
	}
	if p.Fetch == nil {
		p.Fetch = p1meter.Get
	}
	if p.FetchTimeout == 0 {
		p.FetchTimeout = DefaultFetchTimeout
	}
	if p.WriteTimeout == 0 {
		p.WriteTimeout = DefaultWriteTimeout
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.After == nil {
		p.After = time.After
	}
	m := newMetrics()
	if p.Registerer != nil {
		if err := m.register(p.Registerer); err != nil {
			return nil, errgo.Notef(err, "cannot register metrics")
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		p:       p,
		ctx:     ctx,
		close:   cancel,
		metrics: m,
		status: Status{
			MeterAddr: p.MeterAddr,
		},
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

type Worker struct {
	p       Params
	ctx     context.Context
	close   func()
	wg      sync.WaitGroup
	metrics *metrics

	// mu guards status.
	mu     sync.Mutex
	status Status
}

// Close stops the worker. If a sample is in progress,
// it waits for it to complete.
func (w *Worker) Close() {
	w.close()
	w.wg.Wait()
}

// Status returns the current status of the worker.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Worker) run() {
	defer w.wg.Done()
	cycle := newSlowCycle(w.p.Plan.SlowEvery())
	logger.Infof("sampling meter at %s (%v, gas every %d samples)", w.p.MeterAddr, w.p.Plan, cycle.every)
	for {
		// Note: the cycle advances even when the sample fails
		// so that the gas readings keep to their schedule.
		w.sample(cycle.next())
		select {
		case <-w.p.After(w.p.Plan.Fast):
		case <-w.ctx.Done():
			return
		}
	}
}

// sample reads the meter once and writes the snapshot to the sink.
// Errors are logged and otherwise ignored.
func (w *Worker) sample(slow bool) {
	now := w.p.Now()
	w.metrics.ticks.Inc()
	if slow {
		w.metrics.slowTicks.Inc()
	}
	w.updateStatus(func(st *Status) {
		st.Ticks++
		if slow {
			st.SlowTicks++
		}
		st.LastTick = now
	})
	s, err := w.fetch()
	if err != nil {
		w.metrics.fetchFailures.Inc()
		logger.Warningf("cannot read p1 meter %s: %v", w.p.MeterAddr, err)
		w.updateStatus(func(st *Status) {
			st.LastError = err.Error()
		})
		return
	}
	if err := w.write(s, slow); err != nil {
		w.metrics.sinkFailures.Inc()
		logger.Warningf("cannot write readings from p1 meter %s: %v", w.p.MeterAddr, err)
		w.updateStatus(func(st *Status) {
			st.LastError = err.Error()
		})
		return
	}
	w.metrics.delivered.Inc()
	w.updateStatus(func(st *Status) {
		st.Delivered++
		st.LastDelivery = now
		st.LastError = ""
	})
}

// fetch reads the meter. The worker's context is deliberately
// not used so that closing the worker doesn't interrupt
// a sample part way through.
func (w *Worker) fetch() (*p1meter.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.p.FetchTimeout)
	defer cancel()
	s, err := w.p.Fetch(ctx, w.p.MeterAddr)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errgo.Notef(err, "timed out after %v", w.p.FetchTimeout)
		}
		return nil, errgo.Mask(err)
	}
	return s, nil
}

func (w *Worker) write(s *p1meter.Snapshot, slow bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.p.WriteTimeout)
	defer cancel()
	if err := w.p.Sink.WriteSnapshot(ctx, s, slow); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errgo.Notef(err, "timed out after %v", w.p.WriteTimeout)
		}
		return errgo.Mask(err)
	}
	return nil
}

func (w *Worker) updateStatus(f func(st *Status)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f(&w.status)
}

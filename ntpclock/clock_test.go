package ntpclock

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beevik/ntp"
	qt "github.com/frankban/quicktest"
)

// fakeNTP serves a sequence of clock offsets.
type fakeNTP struct {
	mu      sync.Mutex
	hosts   []string
	offsets []time.Duration
	err     error
	queried chan struct{}
}

func (f *fakeNTP) query(host string, opts ntp.QueryOptions) (*ntp.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts = append(f.hosts, host)
	defer func() {
		if f.queried != nil {
			select {
			case f.queried <- struct{}{}:
			default:
			}
		}
	}()
	if f.err != nil {
		return nil, f.err
	}
	offset := f.offsets[0]
	if len(f.offsets) > 1 {
		f.offsets = f.offsets[1:]
	}
	return &ntp.Response{
		ClockOffset: offset,
	}, nil
}

func TestNow(t *testing.T) {
	c := qt.New(t)
	f := &fakeNTP{
		offsets: []time.Duration{time.Hour},
	}
	c.Patch(&ntpQuery, f.query)

	clock, err := New(Params{})
	c.Assert(err, qt.IsNil)
	defer clock.Close()
	c.Assert(f.hosts, qt.DeepEquals, []string{DefaultHost})

	t0 := time.Now().Add(time.Hour)
	now := clock.Now()
	t1 := time.Now().Add(time.Hour)
	c.Assert(now.Before(t0), qt.IsFalse)
	c.Assert(now.After(t1), qt.IsFalse)
}

func TestNowDoesNotGoBackwards(t *testing.T) {
	c := qt.New(t)
	f := &fakeNTP{
		offsets: []time.Duration{time.Hour, 0},
		queried: make(chan struct{}, 1),
	}
	c.Patch(&ntpQuery, f.query)

	clock, err := New(Params{
		Host:            "ntp.example",
		RefreshInterval: time.Millisecond,
	})
	c.Assert(err, qt.IsNil)
	defer clock.Close()
	<-f.queried
	before := clock.Now()

	// Wait for the refresh that moves the clock back an hour.
	select {
	case <-f.queried:
	case <-time.After(5 * time.Second):
		c.Fatalf("timed out waiting for refresh")
	}
	after := clock.Now()
	c.Assert(after.Before(before), qt.IsFalse)
}

func TestNewError(t *testing.T) {
	c := qt.New(t)
	f := &fakeNTP{
		err: errors.New("no route to host"),
	}
	c.Patch(&ntpQuery, f.query)

	clock, err := New(Params{
		Host: "ntp.example",
	})
	c.Assert(err, qt.ErrorMatches, `cannot get time from NTP server ntp.example: no route to host`)
	c.Assert(clock, qt.IsNil)
}

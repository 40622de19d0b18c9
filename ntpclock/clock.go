// Package ntpclock provides an NTP-backed source of time values
// for timestamping readings on hosts whose system clock can't be
// relied upon, such as single-board computers without a
// battery-backed clock.
package ntpclock

import (
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/juju/loggo"
	"gopkg.in/errgo.v1"
)

var logger = loggo.GetLogger("p1influx.ntpclock")

// ntpQuery is used to query the current NTP time.
// It's overridden for tests.
var ntpQuery = ntp.QueryWithOptions

const (
	DefaultHost            = "pool.ntp.org"
	DefaultTimeout         = 30 * time.Second
	DefaultRefreshInterval = 30 * time.Minute
)

type Params struct {
	// Host holds the NTP host to use.
	// If it's empty, DefaultHost is used.
	Host string
	// Timeout holds the timeout for each NTP query.
	// If it's zero, DefaultTimeout is used.
	Timeout time.Duration
	// RefreshInterval holds how often the clock offset is
	// updated. If it's zero, DefaultRefreshInterval is used.
	RefreshInterval time.Duration
}

// Clock reports the time according to an NTP server.
type Clock struct {
	p      Params
	closed chan struct{}
	wg     sync.WaitGroup

	// mu guards the fields below it.
	mu sync.Mutex
	// offset holds the difference between NTP time
	// and the system clock.
	offset time.Duration
	// prevTime holds the previous time returned from Now.
	prevTime time.Time
}

// New returns a Clock that queries the given NTP host for time.
// It blocks until the first query has completed, and returns an
// error if that fails. The Clock should be closed after use.
func New(p Params) (*Clock, error) {
	if p.Host == "" {
		p.Host = DefaultHost
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	if p.RefreshInterval == 0 {
		p.RefreshInterval = DefaultRefreshInterval
	}
	c := &Clock{
		p:      p,
		closed: make(chan struct{}),
	}
	if err := c.update(); err != nil {
		return nil, errgo.Mask(err)
	}
	c.wg.Add(1)
	go c.updater()
	return c, nil
}

// Now returns a best-effort representation of the absolute time.
// Successive calls never go backwards, even when the offset
// is adjusted. The returned time does not contain a monotonic
// clock reading.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := time.Now().Add(c.offset).Round(0)
	if t.Before(c.prevTime) {
		return c.prevTime
	}
	c.prevTime = t
	return t
}

// Close stops the clock from updating itself.
// The clock can still be used after closing.
func (c *Clock) Close() {
	close(c.closed)
	c.wg.Wait()
}

func (c *Clock) updater() {
	defer c.wg.Done()
	for {
		select {
		case <-c.closed:
			return
		case <-time.After(c.p.RefreshInterval):
		}
		if err := c.update(); err != nil {
			logger.Warningf("%v", err)
		}
	}
}

func (c *Clock) update() error {
	resp, err := ntpQuery(c.p.Host, ntp.QueryOptions{
		Timeout: c.p.Timeout,
	})
	if err != nil {
		return errgo.Notef(err, "cannot get time from NTP server %s", c.p.Host)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = resp.ClockOffset
	return nil
}

// Package cadence decides how often a P1 meter should be sampled.
//
// Meters built to older versions of the Dutch smart meter
// specification (DSMR 4.x and earlier) update their electricity
// readings every 10 seconds and their gas readings every hour.
// DSMR 5.0 meters update electricity every second and gas every
// 5 minutes. See
// https://helpdesk.homewizard.com/nl/articles/5935311-werkt-de-p1-meter-met-mijn-slimme-meter
package cadence

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/loggo"
	"gopkg.in/errgo.v1"

	"github.com/rogpeppe/p1influx/p1meter"
)

var logger = loggo.GetLogger("p1influx.cadence")

// Plan holds the two sample intervals used for a meter.
type Plan struct {
	// Fast holds the interval between samples of the
	// electricity readings.
	Fast time.Duration
	// Slow holds the interval between samples of the
	// gas readings.
	Slow time.Duration
}

// NewGeneration holds the first protocol generation
// that uses the faster update rates.
const NewGeneration = 50

var (
	// OldPlan is used for meters older than NewGeneration. The
	// fast interval is 15s rather than 10s to leave some margin.
	OldPlan = Plan{
		Fast: 15 * time.Second,
		Slow: 3600 * time.Second,
	}
	// NewPlan is used for meters from NewGeneration onwards.
	NewPlan = Plan{
		Fast: 5 * time.Second,
		Slow: 300 * time.Second,
	}
)

// ForGeneration returns the plan to use for a meter
// reporting the given protocol generation.
func ForGeneration(g p1meter.Generation) Plan {
	if g < NewGeneration {
		return OldPlan
	}
	return NewPlan
}

// SlowEvery returns the number of fast samples per slow sample.
// It's always at least 1.
func (p Plan) SlowEvery() int {
	if p.Fast <= 0 {
		return 1
	}
	n := int(p.Slow / p.Fast)
	if n < 1 {
		return 1
	}
	return n
}

func (p Plan) String() string {
	return fmt.Sprintf("fast %v, slow %v", p.Fast, p.Slow)
}

// Classify asks the meter at the given host for its protocol
// generation and returns the plan to use for it. There is no
// sensible plan to fall back to, so callers should treat an error
// as fatal.
func Classify(ctx context.Context, host string) (Plan, error) {
	g, err := p1meter.GetGeneration(ctx, host)
	if err != nil {
		return Plan{}, errgo.Notef(err, "cannot determine meter generation")
	}
	p := ForGeneration(g)
	logger.Infof("meter at %s reports generation %d; using %v", host, g, p)
	return p, nil
}

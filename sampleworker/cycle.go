package sampleworker

// slowCycle keeps track of which samples are slow-cycle samples.
// Invariant: 0 < count <= every.
type slowCycle struct {
	// every holds the number of samples per slow-cycle sample.
	every int
	// count holds the number of samples since (and including)
	// the most recent slow-cycle sample.
	count int
}

func newSlowCycle(every int) *slowCycle {
	if every < 1 {
		every = 1
	}
	// Starting at the end of a cycle makes the
	// first sample a slow-cycle sample.
	return &slowCycle{
		every: every,
		count: every,
	}
}

// next advances to the next sample and reports
// whether it is a slow-cycle sample.
func (c *slowCycle) next() bool {
	if c.count >= c.every {
		c.count = 1
		return true
	}
	c.count++
	return false
}

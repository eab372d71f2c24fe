package fees

import (
	"github.com/go-faster/errors"
	"go.uber.org/multierr"
)

// branch is a step of the fee cascade. Lower values are evaluated first.
type branch int

const (
	branchBattery branch = iota
	branchGasless
	branchDefault
	branchCount
)

func (b branch) String() string {
	switch b {
	case branchBattery:
		return "battery"
	case branchGasless:
		return "gasless"
	case branchDefault:
		return "default"
	}
	return "unknown"
}

// errNotEligible marks a branch skipped without an attempt.
var errNotEligible = errors.New("not eligible")

// cascade tracks which branches are excluded for one estimate.
type cascade struct {
	excluded [branchCount]bool
	attempts []branch
	err      error
}

// next returns the first branch that was not excluded yet.
func (c *cascade) next() (branch, bool) {
	for b := branchBattery; b < branchCount; b++ {
		if !c.excluded[b] {
			return b, true
		}
	}
	return 0, false
}

// fail excludes b together with every branch evaluated before it.
func (c *cascade) fail(b branch, err error) {
	for x := branchBattery; x <= b; x++ {
		c.excluded[x] = true
	}
	if !errors.Is(err, errNotEligible) {
		c.err = multierr.Append(c.err, errors.Wrap(err, b.String()))
	}
}

func (c *cascade) attempt(b branch) {
	c.attempts = append(c.attempts, b)
}

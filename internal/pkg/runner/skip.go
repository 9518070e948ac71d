package runner

import (
	"fmt"
	"time"
)

// The monthly billing period during which automatic switching to solar
// priority is held off: the meter is read between these days and the
// switch would skew the billed figures.
const (
	billingHoldFirstDay = 23
	billingHoldLastDay  = 26
)

// SkipDecision says whether a command should be skipped for this invocation
type SkipDecision struct {
	Skip   bool
	Reason string
}

// skipDecision applies the billing-period hold. Only set-solar is subject
// to it, and a forced run always proceeds.
func skipDecision(cmd Command, now time.Time, force bool) SkipDecision {
	if cmd != CommandSetSolar || force {
		return SkipDecision{}
	}

	if day := now.Day(); day >= billingHoldFirstDay && day <= billingHoldLastDay {
		return SkipDecision{
			Skip:   true,
			Reason: fmt.Sprintf("billing period hold: day %d is within %d-%d", day, billingHoldFirstDay, billingHoldLastDay),
		}
	}

	return SkipDecision{}
}

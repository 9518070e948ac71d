package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/impet14/inverter-automator/internal/pkg/dessmon"
	"github.com/impet14/inverter-automator/internal/pkg/logging"
	"github.com/impet14/inverter-automator/internal/pkg/notify"
)

const (
	defaultAttempts   = 3
	defaultRetryDelay = time.Second * 5
)

// ExecutionResult records one invocation's outcome
type ExecutionResult struct {
	Command    Command
	Success    bool
	Skipped    bool
	SkipReason string
	Attempts   int
	Status     *dessmon.CtrlValue // read-status reply, if any
}

// Runner executes one command against the control API. Mutating commands
// are retried on failure and their final outcome is pushed through the
// notifier; read-status gets a single attempt and no notification.
type Runner struct {
	api        dessmon.DeviceControl
	notifier   notify.Notifier
	attempts   int
	retryDelay time.Duration
	force      bool
	now        func() time.Time
	sleep      func(time.Duration)
}

func New(api dessmon.DeviceControl, notifier notify.Notifier) *Runner {
	return &Runner{
		api:        api,
		notifier:   notifier,
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// WithForce overrides the billing-period hold
func (r *Runner) WithForce(force bool) *Runner {
	nr := *r
	nr.force = force
	return &nr
}

func (r *Runner) WithAttempts(n int) *Runner {
	nr := *r
	if n > 0 {
		nr.attempts = n
	}
	return &nr
}

func (r *Runner) WithRetryDelay(d time.Duration) *Runner {
	nr := *r
	nr.retryDelay = d
	return &nr
}

// WithLocation evaluates the calendar skip rule in the given timezone, so
// a UTC-hosted scheduler does not shift the billing window
func (r *Runner) WithLocation(loc *time.Location) *Runner {
	nr := *r
	nr.now = func() time.Time { return time.Now().In(loc) }
	return &nr
}

// WithClock replaces the wall clock and the inter-retry sleep
func (r *Runner) WithClock(now func() time.Time, sleep func(time.Duration)) *Runner {
	nr := *r
	nr.now = now
	nr.sleep = sleep
	return &nr
}

// Run executes the command and returns its result. The returned error is
// non-nil when the final outcome is a failure; a skip counts as success.
func (r *Runner) Run(cmd Command) (ExecutionResult, error) {
	ctx := logging.WithTxnID(context.Background(), uuid.New().String())
	log := logging.Logger(ctx)

	spec := commandSpecs[cmd]
	res := ExecutionResult{Command: cmd}

	log.Infof("Executing job: %s", spec.description)

	if d := skipDecision(cmd, r.now(), r.force); d.Skip {
		res.Skipped = true
		res.SkipReason = d.Reason
		res.Success = true
		log.Infof("skipping %s: %s", cmd, d.Reason)
		return res, nil
	}

	if !spec.mutating {
		res.Attempts = 1
		status, err := r.api.OutputPriority()
		if err != nil {
			return res, errors.Wrapf(err, "running %s", cmd)
		}

		res.Success = true
		res.Status = status
		log.Infof("output priority [%s] is %s", status.ID, status.Value)
		return res, nil
	}

	err := r.runMutating(log, cmd, spec, &res)
	r.notifyOutcome(log, cmd, spec, res, err)

	return res, err
}

func (r *Runner) runMutating(log *logrus.Entry, cmd Command, spec commandSpec, res *ExecutionResult) error {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			log.Infof("retrying in %s (attempt %d of %d)", r.retryDelay, attempt, r.attempts)
			r.sleep(r.retryDelay)
		}
		res.Attempts = attempt

		if lastErr = r.api.SetOutputPriority(spec.priority); lastErr == nil {
			res.Success = true
			log.Infof("%s succeeded on attempt %d", cmd, attempt)
			return nil
		}

		log.WithError(lastErr).Warnf("%s failed on attempt %d of %d", cmd, attempt, r.attempts)
	}

	return errors.Wrapf(lastErr, "%s failed after %d attempts", cmd, res.Attempts)
}

func (r *Runner) notifyOutcome(log *logrus.Entry, cmd Command, spec commandSpec, res ExecutionResult, runErr error) {
	msg := notify.Message{Success: res.Success}
	if res.Success {
		msg.Title = fmt.Sprintf("%s succeeded", cmd)
		msg.Body = fmt.Sprintf("%s (attempt %d of %d)", spec.description, res.Attempts, r.attempts)
	} else {
		msg.Title = fmt.Sprintf("%s FAILED", cmd)
		msg.Body = fmt.Sprintf("%s: %v", spec.description, runErr)
	}

	if err := r.notifier.Send(msg); err != nil {
		log.WithError(err).Error("sending outcome notification")
	}
}

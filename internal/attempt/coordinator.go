package attempt

import (
	"context"
	"errors"

	"assessment-attempt-service/internal/domain"
)

// Grader is the external grading backend. Implementations must not be
// called by anything other than a Coordinator.
type Grader interface {
	SubmitAttempt(ctx context.Context, assessmentID string, sub domain.Submission) (domain.Result, error)
}

// Outcome is the result of resolving an in-flight submission.
type Outcome struct {
	Trigger     domain.Trigger
	Status      domain.Status
	Result      *domain.Result
	Err         error
	Recoverable bool
}

// Coordinator gates submissions so at most one grading call is in flight
// and each attempt reaches at most one terminal outcome.
//
//	InProgress -> ConfirmPending -> Submitting -> Submitted
//	InProgress -> Submitting (auto) -> Submitted | Failed
//	Submitting (manual) -> Failed -> InProgress
//
// A submission is split into begin (ConfirmSubmit/AutoSubmit), Send and
// Resolve so the owner can release its lock around the network call.
// It is not safe for concurrent use; the Controller serializes access.
type Coordinator struct {
	grader       Grader
	assessmentID string

	status   domain.Status
	trigger  domain.Trigger
	inFlight bool
	expired  bool
	result   *domain.Result
	failure  error
}

func NewCoordinator(grader Grader, assessmentID string) *Coordinator {
	return &Coordinator{
		grader:       grader,
		assessmentID: assessmentID,
		status:       domain.StatusInProgress,
	}
}

func (c *Coordinator) Status() domain.Status { return c.status }

func (c *Coordinator) Result() *domain.Result { return c.result }

func (c *Coordinator) Failure() error { return c.failure }

// InFlight reports whether a grading call has begun and not been resolved.
func (c *Coordinator) InFlight() bool { return c.inFlight }

// RequestManualSubmit moves InProgress to ConfirmPending.
func (c *Coordinator) RequestManualSubmit() error {
	if err := c.guardClosed(); err != nil {
		return err
	}
	if c.status != domain.StatusInProgress {
		return domain.ErrInvalidTransition
	}
	c.status = domain.StatusConfirmPending
	return nil
}

// CancelConfirm returns ConfirmPending to InProgress with no side effect.
func (c *Coordinator) CancelConfirm() error {
	if err := c.guardClosed(); err != nil {
		return err
	}
	if c.status != domain.StatusConfirmPending {
		return domain.ErrInvalidTransition
	}
	c.status = domain.StatusInProgress
	return nil
}

// ConfirmSubmit moves ConfirmPending to Submitting. The caller must then Send and Resolve.
func (c *Coordinator) ConfirmSubmit() error {
	if err := c.guardClosed(); err != nil {
		return err
	}
	if c.status != domain.StatusConfirmPending {
		return domain.ErrInvalidTransition
	}
	c.begin(domain.TriggerManual)
	return nil
}

// AutoSubmit moves InProgress straight to Submitting, skipping confirmation.
func (c *Coordinator) AutoSubmit() error {
	if err := c.guardClosed(); err != nil {
		return err
	}
	if c.status != domain.StatusInProgress {
		return domain.ErrInvalidTransition
	}
	c.begin(domain.TriggerAuto)
	return nil
}

// Expire records that no time remains, so a failing manual submission can no longer recover.
func (c *Coordinator) Expire() { c.expired = true }

// Send calls the grading backend with the frozen snapshot.
func (c *Coordinator) Send(ctx context.Context, sub domain.Submission) (domain.Result, error) {
	if !c.inFlight {
		return domain.Result{}, domain.ErrInvalidTransition
	}
	return c.grader.SubmitAttempt(ctx, c.assessmentID, sub)
}

// Resolve applies the backend reply to the in-flight submission.
func (c *Coordinator) Resolve(result domain.Result, err error) Outcome {
	c.inFlight = false
	out := Outcome{Trigger: c.trigger}

	if err == nil {
		res := result
		c.result = &res
		c.status = domain.StatusSubmitted
		out.Status = c.status
		out.Result = c.result
		return out
	}

	c.failure = err
	c.status = domain.StatusFailed
	out.Err = err
	if c.trigger == domain.TriggerManual && !c.expired {
		c.status = domain.StatusInProgress
		out.Recoverable = true
	}
	out.Status = c.status
	return out
}

func (c *Coordinator) begin(trigger domain.Trigger) {
	c.status = domain.StatusSubmitting
	c.trigger = trigger
	c.inFlight = true
	c.failure = nil
}

// guardClosed is the exactly-once check: nothing proceeds while a call is
// in flight or after a terminal outcome.
func (c *Coordinator) guardClosed() error {
	if c.inFlight || c.status.Terminal() {
		return domain.ErrSubmitInFlight
	}
	return nil
}

// FailureReason renders the backend failure for display layers.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	var gradingErr *domain.GradingError
	if errors.As(err, &gradingErr) && gradingErr.Message != "" {
		return gradingErr.Message
	}
	return err.Error()
}

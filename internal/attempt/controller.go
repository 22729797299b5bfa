package attempt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"assessment-attempt-service/internal/domain"
)

// Option configures a Controller.
type Option func(*Controller)

// WithNow overrides the wall clock used for startedAt and time spent.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithObserver receives every event. It is called while the controller is
// locked, so it must not block and must not call back into the controller.
func WithObserver(fn func(domain.Event)) Option {
	return func(c *Controller) { c.notify = fn }
}

// WithSubmitTimeout bounds each grading call.
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Controller) { c.submitTimeout = d }
}

// Controller composes the clock, answer store, cursor and coordinator into
// one attempt. All mutation is serialized through mu; the grading call is
// the only step that runs without it.
type Controller struct {
	clock         Clock
	grader        Grader
	now           func() time.Time
	notify        func(domain.Event)
	submitTimeout time.Duration

	mu         sync.Mutex
	assessment domain.Assessment
	questions  map[string]domain.Question
	answers    *AnswerStore
	cursor     *Cursor
	coord      *Coordinator
	remaining  int
	startedAt  time.Time
	started    bool
	armed      bool
	disposed   bool
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewController(clock Clock, grader Grader, opts ...Option) *Controller {
	c := &Controller{
		clock:  clock,
		grader: grader,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start validates the content, arms the clock and enters InProgress.
func (c *Controller) Start(assessment domain.Assessment, questions []domain.Question) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.disposed:
		return domain.ErrAttemptDisposed
	case c.started:
		return domain.ErrAlreadyStarted
	case len(questions) == 0:
		return domain.ErrEmptyAssessment
	case assessment.DurationMinutes <= 0:
		return fmt.Errorf("%w: duration must be positive", domain.ErrInvalidContent)
	}

	cursor, err := NewCursor(len(questions))
	if err != nil {
		return err
	}
	index := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		index[q.ID] = q
	}

	remaining := assessment.DurationMinutes * 60
	if err := c.clock.Arm(remaining, c.onTick); err != nil {
		return err
	}

	c.assessment = assessment
	c.questions = index
	c.cursor = cursor
	c.answers = NewAnswerStore()
	c.coord = NewCoordinator(c.grader, assessment.ID)
	c.remaining = remaining
	c.startedAt = c.now()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.started = true
	c.armed = true

	c.emitLocked(domain.Event{Type: domain.EventStarted})
	return nil
}

// onTick decrements the countdown. Reaching zero disarms the clock and
// starts the auto-submission inside the same locked step, so no user
// mutation can land in between.
func (c *Controller) onTick() {
	c.mu.Lock()
	if !c.armed || c.disposed {
		c.mu.Unlock()
		return
	}

	c.remaining--
	c.emitLocked(domain.Event{Type: domain.EventTick})
	if c.remaining > 0 {
		c.mu.Unlock()
		return
	}

	c.disarmLocked()
	c.coord.Expire()
	if c.coord.Status() == domain.StatusConfirmPending {
		_ = c.coord.CancelConfirm()
	}
	if err := c.coord.AutoSubmit(); err != nil {
		// A manual submission is in flight; its outcome is final now.
		c.mu.Unlock()
		return
	}
	sub := c.freezeLocked()
	c.emitLocked(domain.Event{Type: domain.EventStatusChanged, Trigger: domain.TriggerAuto})
	ctx := c.ctx
	c.mu.Unlock()

	_ = c.submit(ctx, sub)
}

// SelectAnswer delegates to the answer store with the question's declared type.
func (c *Controller) SelectAnswer(questionID, optionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return err
	}
	q, ok := c.questions[questionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	if !q.HasOption(optionID) {
		return fmt.Errorf("%w: %s", domain.ErrOptionNotFound, optionID)
	}
	if err := c.answers.Select(questionID, optionID, q.Type); err != nil {
		if domain.IsPolicyRejection(err) {
			c.rejectLocked(err)
		}
		return err
	}
	c.emitLocked(domain.Event{Type: domain.EventAnswerChanged, QuestionID: questionID})
	return nil
}

// GoNext moves to the next question; a no-op at the last one.
func (c *Controller) GoNext() int {
	return c.navigate(func(cur *Cursor) int { return cur.Next() })
}

// GoPrevious moves to the previous question; a no-op at the first one.
func (c *Controller) GoPrevious() int {
	return c.navigate(func(cur *Cursor) int { return cur.Previous() })
}

func (c *Controller) JumpToQuestion(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return err
	}
	before := c.cursor.Index()
	if err := c.cursor.JumpTo(index); err != nil {
		return err
	}
	if c.cursor.Index() != before {
		c.emitLocked(domain.Event{Type: domain.EventNavigated})
	}
	return nil
}

// RequestSubmit asks for confirmation; answers freeze while it is pending.
func (c *Controller) RequestSubmit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return err
	}
	if err := c.coord.RequestManualSubmit(); err != nil {
		c.rejectLocked(err)
		return err
	}
	c.answers.Freeze()
	c.emitLocked(domain.Event{Type: domain.EventStatusChanged, Trigger: domain.TriggerManual})
	return nil
}

// CancelSubmit returns to InProgress so the user can keep editing.
func (c *Controller) CancelSubmit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return err
	}
	if err := c.coord.CancelConfirm(); err != nil {
		c.rejectLocked(err)
		return err
	}
	c.answers.Unfreeze()
	c.emitLocked(domain.Event{Type: domain.EventStatusChanged})
	return nil
}

// ConfirmSubmit sends the frozen answers to the grading backend and blocks
// until it replies. A second call while the first is in flight is rejected.
func (c *Controller) ConfirmSubmit(ctx context.Context) error {
	c.mu.Lock()
	if err := c.guardLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.coord.ConfirmSubmit(); err != nil {
		c.rejectLocked(err)
		c.mu.Unlock()
		return err
	}
	sub := c.freezeLocked()
	c.emitLocked(domain.Event{Type: domain.EventStatusChanged, Trigger: domain.TriggerManual})
	owner := c.ctx
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(owner, cancel)
	defer stop()

	return c.submit(ctx, sub)
}

// Dispose disarms the clock and abandons any pending auto-submission context.
// Calling it more than once is safe.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	c.disposed = true
	c.disarmLocked()
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) RemainingSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor == nil {
		return 0
	}
	return c.cursor.Index()
}

func (c *Controller) AnsweredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.answers == nil {
		return 0
	}
	return c.answers.AnsweredCount()
}

func (c *Controller) IsAnswered(questionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.answers == nil {
		return false
	}
	return c.answers.IsAnswered(questionID)
}

func (c *Controller) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Result returns the graded result once Submitted.
func (c *Controller) Result() *domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.coord == nil {
		return nil
	}
	return c.coord.Result()
}

// Snapshot returns a consistent copy of the attempt state.
func (c *Controller) Snapshot() domain.AttemptSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := domain.AttemptSnapshot{
		AssessmentID:     c.assessment.ID,
		Status:           c.statusLocked(),
		RemainingSeconds: c.remaining,
		StartedAt:        c.startedAt,
		Answers:          map[string][]string{},
	}
	if !c.started {
		return snap
	}
	snap.CurrentIndex = c.cursor.Index()
	snap.QuestionCount = c.cursor.Count()
	snap.AnsweredCount = c.answers.AnsweredCount()
	snap.Answers = c.answers.Snapshot()
	snap.Result = c.coord.Result()
	snap.FailureReason = FailureReason(c.coord.Failure())
	return snap
}

func (c *Controller) navigate(move func(*Cursor) int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor == nil {
		return 0
	}
	before := c.cursor.Index()
	after := move(c.cursor)
	if after != before && !c.disposed {
		c.emitLocked(domain.Event{Type: domain.EventNavigated})
	}
	return after
}

// submit runs the grading call unlocked, then applies the outcome.
func (c *Controller) submit(ctx context.Context, sub domain.Submission) error {
	if c.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.submitTimeout)
		defer cancel()
	}

	result, err := c.coord.Send(ctx, sub)

	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.coord.Resolve(result, err)
	switch {
	case out.Err == nil:
		c.disarmLocked()
		c.emitLocked(domain.Event{Type: domain.EventSubmitted, Trigger: out.Trigger, Result: out.Result})
		return nil
	case out.Recoverable:
		c.answers.Unfreeze()
		c.emitLocked(domain.Event{
			Type:        domain.EventFailed,
			Status:      domain.StatusFailed,
			Trigger:     out.Trigger,
			Reason:      FailureReason(out.Err),
			Recoverable: true,
			Err:         out.Err,
		})
		c.emitLocked(domain.Event{Type: domain.EventStatusChanged})
	default:
		c.disarmLocked()
		c.emitLocked(domain.Event{
			Type:       domain.EventFailed,
			Trigger:    out.Trigger,
			Reason:     FailureReason(out.Err),
			Submission: &sub,
			Err:        out.Err,
		})
	}
	return &domain.SubmissionError{Trigger: out.Trigger, Recoverable: out.Recoverable, Err: out.Err}
}

func (c *Controller) freezeLocked() domain.Submission {
	c.answers.Freeze()
	spent := int(c.now().Sub(c.startedAt) / time.Second)
	if spent < 0 {
		spent = 0
	}
	return domain.Submission{Answers: c.answers.Snapshot(), TimeSpentSeconds: spent}
}

func (c *Controller) guardLocked() error {
	if c.disposed {
		return domain.ErrAttemptDisposed
	}
	if !c.started {
		return domain.ErrNotStarted
	}
	return nil
}

func (c *Controller) disarmLocked() {
	if !c.armed {
		return
	}
	c.armed = false
	c.clock.Disarm()
}

func (c *Controller) statusLocked() domain.Status {
	if c.coord == nil {
		return domain.StatusLoading
	}
	return c.coord.Status()
}

func (c *Controller) rejectLocked(err error) {
	c.emitLocked(domain.Event{Type: domain.EventRejected, Reason: err.Error(), Err: err})
}

func (c *Controller) emitLocked(ev domain.Event) {
	if c.notify == nil {
		return
	}
	if ev.Status == "" {
		ev.Status = c.statusLocked()
	}
	ev.RemainingSeconds = c.remaining
	if c.cursor != nil {
		ev.CurrentIndex = c.cursor.Index()
	}
	if c.answers != nil {
		ev.AnsweredCount = c.answers.AnsweredCount()
	}
	c.notify(ev)
}

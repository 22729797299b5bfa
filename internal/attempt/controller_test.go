package attempt

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"assessment-attempt-service/internal/domain"
)

func TestTickCountdownAutoSubmitsAtZero(t *testing.T) {
	grader := newScriptedGrader(reply{result: passingResult})
	c, clock := startedController(grader)

	if got := c.RemainingSeconds(); got != 60 {
		t.Fatalf("expected 60 seconds, got %d", got)
	}

	clock.Advance(59)
	if c.Status() != domain.StatusInProgress {
		t.Fatalf("expected in progress after 59 ticks, got %s", c.Status())
	}
	if c.RemainingSeconds() != 1 {
		t.Fatalf("expected 1 second left, got %d", c.RemainingSeconds())
	}
	if !clock.Armed() {
		t.Fatalf("expected clock still armed")
	}

	clock.Advance(1)
	if c.Status() != domain.StatusSubmitted {
		t.Fatalf("expected submitted after 60 ticks, got %s", c.Status())
	}
	if clock.Armed() {
		t.Fatalf("expected clock disarmed")
	}
	if grader.callCount() != 1 {
		t.Fatalf("expected one grading call, got %d", grader.callCount())
	}
	if delivered := clock.Advance(5); delivered != 0 {
		t.Fatalf("expected no ticks after expiry, got %d", delivered)
	}
}

func TestAutoSubmitSkipsConfirmPending(t *testing.T) {
	log := &eventLog{}
	grader := newScriptedGrader(reply{result: passingResult})
	c, clock := startedController(grader, WithObserver(log.record))

	clock.Advance(60)

	want := []domain.Status{domain.StatusInProgress, domain.StatusSubmitting, domain.StatusSubmitted}
	if got := log.statuses(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected statuses %v, got %v", want, got)
	}
	submitted := log.ofType(domain.EventSubmitted)
	if len(submitted) != 1 || submitted[0].Trigger != domain.TriggerAuto {
		t.Fatalf("expected one auto submitted event, got %+v", submitted)
	}
	if c.Result() == nil || *c.Result() != passingResult {
		t.Fatalf("unexpected result %+v", c.Result())
	}
}

func TestExpiryDuringConfirmPendingAutoSubmits(t *testing.T) {
	grader := newScriptedGrader(reply{result: passingResult})
	c, clock := startedController(grader)

	if err := c.SelectAnswer("q1", "b"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := c.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}
	clock.Advance(60)

	if c.Status() != domain.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", c.Status())
	}
	if got := grader.lastCall().Answers["q1"]; !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("expected frozen answer b, got %v", got)
	}
	if err := c.ConfirmSubmit(context.Background()); !errors.Is(err, domain.ErrSubmitInFlight) {
		t.Fatalf("expected late confirm rejected, got %v", err)
	}
}

func TestConfirmSubmitTwiceCallsBackendOnce(t *testing.T) {
	grader := newScriptedGrader(reply{result: passingResult})
	c, _ := startedController(grader)

	if err := c.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}
	if err := c.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	err := c.ConfirmSubmit(context.Background())
	if !errors.Is(err, domain.ErrSubmitInFlight) || !domain.IsPolicyRejection(err) {
		t.Fatalf("expected policy rejection, got %v", err)
	}
	if grader.callCount() != 1 {
		t.Fatalf("expected exactly one grading call, got %d", grader.callCount())
	}
}

func TestConfirmSubmitRejectedWhileInFlight(t *testing.T) {
	grader := newScriptedGrader(reply{result: passingResult}).blocking()
	c, _ := startedController(grader)

	if err := c.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- c.ConfirmSubmit(context.Background()) }()
	<-grader.entered

	if c.Status() != domain.StatusSubmitting {
		t.Fatalf("expected submitting, got %s", c.Status())
	}
	if err := c.ConfirmSubmit(context.Background()); !errors.Is(err, domain.ErrSubmitInFlight) {
		t.Fatalf("expected in-flight rejection, got %v", err)
	}
	if err := c.RequestSubmit(); !errors.Is(err, domain.ErrSubmitInFlight) {
		t.Fatalf("expected request rejected while in flight, got %v", err)
	}

	close(grader.release)
	if err := <-done; err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if grader.callCount() != 1 {
		t.Fatalf("expected one grading call, got %d", grader.callCount())
	}
	if c.Status() != domain.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", c.Status())
	}
}

func TestSelectAfterSubmitIsFrozen(t *testing.T) {
	log := &eventLog{}
	grader := newScriptedGrader(reply{result: passingResult})
	c, _ := startedController(grader, WithObserver(log.record))

	if err := c.SelectAnswer("q1", "a"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := c.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}

	err := c.SelectAnswer("q1", "b")
	if !errors.Is(err, domain.ErrMutationAfterSubmit) || !domain.IsPolicyRejection(err) {
		t.Fatalf("expected frozen rejection, got %v", err)
	}
	if got := c.Snapshot().Answers["q1"]; !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected answers unchanged, got %v", got)
	}
	if len(log.ofType(domain.EventRejected)) != 1 {
		t.Fatalf("expected rejection to be observable")
	}

	if err := c.CancelSubmit(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := c.SelectAnswer("q1", "b"); err != nil {
		t.Fatalf("select after cancel: %v", err)
	}

	if err := c.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}
	if err := c.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := c.SelectAnswer("q3", "a"); !errors.Is(err, domain.ErrMutationAfterSubmit) {
		t.Fatalf("expected frozen after submitted, got %v", err)
	}
	if c.IsAnswered("q3") {
		t.Fatalf("expected q3 unanswered")
	}
}

func TestManualFailureReturnsToInProgress(t *testing.T) {
	log := &eventLog{}
	grader := newScriptedGrader(
		reply{err: errors.New("connection refused")},
		reply{result: passingResult},
	)
	c, clock := startedController(grader, WithObserver(log.record))

	_ = c.SelectAnswer("q1", "b")
	_ = c.SelectAnswer("q2", "a")
	before := c.Snapshot().Answers

	_ = c.RequestSubmit()
	err := c.ConfirmSubmit(context.Background())
	var subErr *domain.SubmissionError
	if !errors.As(err, &subErr) || !subErr.Recoverable || subErr.Trigger != domain.TriggerManual {
		t.Fatalf("expected recoverable manual failure, got %v", err)
	}
	if c.Status() != domain.StatusInProgress {
		t.Fatalf("expected in progress after failure, got %s", c.Status())
	}
	if got := c.Snapshot().Answers; !reflect.DeepEqual(got, before) {
		t.Fatalf("expected answers %v preserved, got %v", before, got)
	}
	if !clock.Armed() {
		t.Fatalf("expected clock to keep running after a recoverable failure")
	}
	failed := log.ofType(domain.EventFailed)
	if len(failed) != 1 || !failed[0].Recoverable || failed[0].Status != domain.StatusFailed {
		t.Fatalf("expected one recoverable failed event, got %+v", failed)
	}

	if err := c.SelectAnswer("q3", "a"); err != nil {
		t.Fatalf("expected edits after recovery: %v", err)
	}
	_ = c.RequestSubmit()
	if err := c.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if c.Status() != domain.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", c.Status())
	}
	if grader.callCount() != 2 {
		t.Fatalf("expected two grading calls, got %d", grader.callCount())
	}
}

func TestAutoSubmitFailureIsTerminal(t *testing.T) {
	log := &eventLog{}
	grader := newScriptedGrader(reply{err: &domain.GradingError{Message: "grader offline"}})
	c, clock := startedController(grader, WithObserver(log.record))

	_ = c.SelectAnswer("q1", "b")
	clock.Advance(60)

	if c.Status() != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", c.Status())
	}
	if clock.Armed() {
		t.Fatalf("expected clock disarmed")
	}
	failed := log.ofType(domain.EventFailed)
	if len(failed) != 1 || failed[0].Recoverable || failed[0].Trigger != domain.TriggerAuto {
		t.Fatalf("expected one unrecoverable auto failure, got %+v", failed)
	}
	if failed[0].Reason != "grader offline" || failed[0].Submission == nil {
		t.Fatalf("expected reason and frozen submission, got %+v", failed[0])
	}
	if err := c.RequestSubmit(); !errors.Is(err, domain.ErrSubmitInFlight) {
		t.Fatalf("expected no retry inside the attempt, got %v", err)
	}
	if err := c.SelectAnswer("q3", "a"); !errors.Is(err, domain.ErrMutationAfterSubmit) {
		t.Fatalf("expected answers frozen, got %v", err)
	}
}

func TestExpiryDuringManualSubmitMakesFailureTerminal(t *testing.T) {
	grader := newScriptedGrader(reply{err: errors.New("timeout")}).blocking()
	c, clock := startedController(grader)

	_ = c.RequestSubmit()
	done := make(chan error, 1)
	go func() { done <- c.ConfirmSubmit(context.Background()) }()
	<-grader.entered

	clock.Advance(60)
	if clock.Armed() {
		t.Fatalf("expected clock disarmed at zero")
	}

	close(grader.release)
	err := <-done
	var subErr *domain.SubmissionError
	if !errors.As(err, &subErr) || subErr.Recoverable {
		t.Fatalf("expected unrecoverable failure, got %v", err)
	}
	if c.Status() != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", c.Status())
	}
	if grader.callCount() != 1 {
		t.Fatalf("expected a single grading call, got %d", grader.callCount())
	}
}

func TestEndToEndManualSubmission(t *testing.T) {
	grader := newScriptedGrader(reply{result: passingResult})
	c, clock := startedController(grader)

	if err := c.SelectAnswer("q1", "b"); err != nil {
		t.Fatalf("select q1: %v", err)
	}
	if c.GoNext() != 1 || c.GoNext() != 2 {
		t.Fatalf("expected to reach the last question")
	}
	if err := c.SelectAnswer("q3", "a"); err != nil {
		t.Fatalf("select q3: %v", err)
	}
	if c.AnsweredCount() != 2 {
		t.Fatalf("expected 2 answered, got %d", c.AnsweredCount())
	}
	if c.IsAnswered("q2") {
		t.Fatalf("expected q2 unanswered")
	}

	if err := c.RequestSubmit(); err != nil {
		t.Fatalf("request submit: %v", err)
	}
	if c.Status() != domain.StatusConfirmPending {
		t.Fatalf("expected confirm pending, got %s", c.Status())
	}
	if err := c.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if c.Status() != domain.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", c.Status())
	}
	if got := c.Result(); got == nil || *got != passingResult {
		t.Fatalf("expected result %+v, got %+v", passingResult, got)
	}
	if clock.Armed() {
		t.Fatalf("expected clock disarmed after submission")
	}
	want := map[string][]string{"q1": {"b"}, "q3": {"a"}}
	if got := grader.lastCall().Answers; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected submitted answers %v, got %v", want, got)
	}
}

func TestTimeSpentMeasuredFromStart(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	now := base
	grader := newScriptedGrader(reply{result: passingResult})
	c, _ := startedController(grader, WithNow(func() time.Time { return now }))

	now = base.Add(42*time.Second + 300*time.Millisecond)
	_ = c.RequestSubmit()
	if err := c.ConfirmSubmit(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got := grader.lastCall().TimeSpentSeconds; got != 42 {
		t.Fatalf("expected 42 seconds spent, got %d", got)
	}
	if !c.Snapshot().StartedAt.Equal(base) {
		t.Fatalf("expected startedAt %v, got %v", base, c.Snapshot().StartedAt)
	}
}

func TestStartValidation(t *testing.T) {
	c := NewController(NewManualClock(), newScriptedGrader())
	a, _ := sampleContent(1)
	if err := c.Start(a, nil); !errors.Is(err, domain.ErrEmptyAssessment) {
		t.Fatalf("expected empty assessment error, got %v", err)
	}
	if c.Status() != domain.StatusLoading {
		t.Fatalf("expected loading before start, got %s", c.Status())
	}
	if err := c.SelectAnswer("q1", "a"); !errors.Is(err, domain.ErrNotStarted) {
		t.Fatalf("expected not started, got %v", err)
	}

	a, qs := sampleContent(1)
	if err := c.Start(a, qs); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(a, qs); !errors.Is(err, domain.ErrAlreadyStarted) {
		t.Fatalf("expected already started, got %v", err)
	}
}

func TestSelectValidatesIDs(t *testing.T) {
	c, _ := startedController(newScriptedGrader())

	if err := c.SelectAnswer("nope", "a"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	if err := c.SelectAnswer("q1", "z"); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected option not found, got %v", err)
	}
	if domain.IsPolicyRejection(domain.ErrOptionNotFound) {
		t.Fatalf("validation errors must not be classified as policy rejections")
	}
}

func TestNavigationBounds(t *testing.T) {
	c, _ := startedController(newScriptedGrader())

	if got := c.GoPrevious(); got != 0 {
		t.Fatalf("expected previous at 0 to stay, got %d", got)
	}
	if err := c.JumpToQuestion(2); err != nil {
		t.Fatalf("jump: %v", err)
	}
	if got := c.GoNext(); got != 2 {
		t.Fatalf("expected next at end to stay, got %d", got)
	}
	if err := c.JumpToQuestion(3); !errors.Is(err, domain.ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if c.CurrentIndex() != 2 {
		t.Fatalf("expected index unchanged, got %d", c.CurrentIndex())
	}
}

func TestDisposeDisarmsClock(t *testing.T) {
	grader := newScriptedGrader(reply{result: passingResult})
	c, clock := startedController(grader)

	clock.Advance(10)
	c.Dispose()
	c.Dispose()

	if clock.Armed() {
		t.Fatalf("expected clock disarmed after dispose")
	}
	if delivered := clock.Advance(60); delivered != 0 {
		t.Fatalf("expected no ticks after dispose, got %d", delivered)
	}
	if c.RemainingSeconds() != 50 {
		t.Fatalf("expected countdown frozen at 50, got %d", c.RemainingSeconds())
	}
	if err := c.SelectAnswer("q1", "a"); !errors.Is(err, domain.ErrAttemptDisposed) {
		t.Fatalf("expected disposed, got %v", err)
	}
	if grader.callCount() != 0 {
		t.Fatalf("expected no grading call after dispose")
	}
}

func TestDisposeCancelsInFlightSubmission(t *testing.T) {
	grader := newScriptedGrader(reply{result: passingResult}).blocking()
	c, _ := startedController(grader)

	_ = c.RequestSubmit()
	done := make(chan error, 1)
	go func() { done <- c.ConfirmSubmit(context.Background()) }()
	<-grader.entered

	c.Dispose()
	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled submission, got %v", err)
	}
}

func TestSubmitTimeoutBoundsGradingCall(t *testing.T) {
	grader := newScriptedGrader(reply{result: passingResult}).blocking()
	c, _ := startedController(grader, WithSubmitTimeout(20*time.Millisecond))

	_ = c.RequestSubmit()
	err := c.ConfirmSubmit(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if c.Status() != domain.StatusInProgress {
		t.Fatalf("expected recovery to in progress, got %s", c.Status())
	}
}

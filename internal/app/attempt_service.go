package app

import (
	"context"
	"time"

	"assessment-attempt-service/internal/attempt"
	"assessment-attempt-service/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContentRepository loads assessment content (from cache/backing store).
type ContentRepository interface {
	GetAssessment(ctx context.Context, assessmentID string) (domain.AssessmentContent, error)
}

// AttemptRepository abstracts where live attempts are kept (in-memory, Redis, etc).
type AttemptRepository interface {
	// PutIfAbsent stores a unless its key already has a live attempt, which is
	// returned instead with created=false.
	PutIfAbsent(a *Attempt) (live *Attempt, created bool)
	Get(attemptID string) (*Attempt, bool)
	FindByKey(key AttemptKey) (*Attempt, bool)
	Delete(attemptID string)
}

// Escalator receives auto-submissions that failed with no time left.
type Escalator interface {
	Escalate(ctx context.Context, e domain.Escalation) error
}

// ClockFactory returns a fresh, unarmed clock for each attempt.
type ClockFactory func() attempt.Clock

// ServiceOption configures an AttemptService.
type ServiceOption func(*AttemptService)

func WithClockFactory(f ClockFactory) ServiceOption {
	return func(s *AttemptService) { s.clocks = f }
}

func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *AttemptService) { s.log = log }
}

// WithServiceClock is test-only for deterministic timestamps.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *AttemptService) { s.now = now }
}

// WithGradingTimeout bounds each grading call made by an attempt.
func WithGradingTimeout(d time.Duration) ServiceOption {
	return func(s *AttemptService) { s.gradingTimeout = d }
}

// AttemptService hosts live attempts and connects them to content, grading
// and escalation.
type AttemptService struct {
	contents  ContentRepository
	attempts  AttemptRepository
	grader    attempt.Grader
	escalator Escalator

	clocks         ClockFactory
	log            zerolog.Logger
	now            func() time.Time
	gradingTimeout time.Duration
}

func NewAttemptService(contents ContentRepository, attempts AttemptRepository, grader attempt.Grader, escalator Escalator, opts ...ServiceOption) *AttemptService {
	s := &AttemptService{
		contents:  contents,
		attempts:  attempts,
		grader:    grader,
		escalator: escalator,
		clocks:    func() attempt.Clock { return attempt.NewTickerClock(time.Second) },
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start returns the user's live attempt on the assessment, creating and
// starting one if none exists.
func (s *AttemptService) Start(ctx context.Context, assessmentID, userID string) (*Attempt, error) {
	if err := validate.Var(assessmentID, "required"); err != nil {
		return nil, domain.ErrAssessmentNotFound
	}
	key := AttemptKey{AssessmentID: assessmentID, UserID: userID}
	if live, ok := s.attempts.FindByKey(key); ok {
		return live, nil
	}

	content, err := s.contents.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	questions, err := ValidateContent(content)
	if err != nil {
		s.log.Warn().Err(err).Str("assessment_id", assessmentID).Msg("rejecting assessment content")
		return nil, err
	}
	content.Questions = questions

	a := newAttempt(uuid.NewString(), key, content, s.now())
	a.onEvent = s.handleEvent
	opts := []attempt.Option{
		attempt.WithNow(s.now),
		attempt.WithObserver(a.observe),
	}
	if s.gradingTimeout > 0 {
		opts = append(opts, attempt.WithSubmitTimeout(s.gradingTimeout))
	}
	a.ctrl = attempt.NewController(s.clocks(), s.grader, opts...)

	// Started before publishing so callers never see an unstarted attempt.
	if err := a.ctrl.Start(content.Assessment, questions); err != nil {
		a.ctrl.Dispose()
		return nil, err
	}
	live, created := s.attempts.PutIfAbsent(a)
	if !created {
		a.ctrl.Dispose()
		return live, nil
	}

	s.log.Info().
		Str("attempt_id", a.ID).
		Str("assessment_id", assessmentID).
		Str("user_id", userID).
		Int("questions", len(questions)).
		Int("duration_minutes", content.Assessment.DurationMinutes).
		Msg("attempt started")
	return a, nil
}

// Connect starts or resumes the user's attempt and registers one connection
// on it. Every Connect must be paired with a Disconnect.
func (s *AttemptService) Connect(ctx context.Context, assessmentID, userID string) (*Attempt, error) {
	for {
		a, err := s.Start(ctx, assessmentID, userID)
		if err != nil {
			return nil, err
		}
		if a.acquire() {
			return a, nil
		}
		// Its last connection left while we resumed it; finish ending it and start over.
		s.End(ctx, a.ID)
	}
}

// Disconnect releases a connection taken by Connect. The attempt ends when
// its last connection leaves.
func (s *AttemptService) Disconnect(ctx context.Context, a *Attempt) {
	if a.release() {
		s.End(ctx, a.ID)
	}
}

// Get returns a live attempt by id.
func (s *AttemptService) Get(_ context.Context, attemptID string) (*Attempt, error) {
	a, ok := s.attempts.Get(attemptID)
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return a, nil
}

// End disposes the attempt and forgets it. Unknown ids are ignored.
func (s *AttemptService) End(_ context.Context, attemptID string) {
	a, ok := s.attempts.Get(attemptID)
	if !ok {
		return
	}
	a.dispose()
	s.attempts.Delete(attemptID)
	s.log.Debug().Str("attempt_id", attemptID).Str("status", string(a.Status())).Msg("attempt ended")
}

// handleEvent runs under the attempt's controller lock.
func (s *AttemptService) handleEvent(a *Attempt, ev domain.Event) {
	switch ev.Type {
	case domain.EventRejected:
		s.log.Debug().Str("attempt_id", a.ID).Str("reason", ev.Reason).Msg("command ignored")
	case domain.EventSubmitted:
		evt := s.log.Info().Str("attempt_id", a.ID).Str("trigger", string(ev.Trigger))
		if ev.Result != nil {
			evt = evt.Float64("percentage", ev.Result.Percentage).Bool("passed", ev.Result.Passed)
		}
		evt.Msg("attempt submitted")
	case domain.EventFailed:
		if ev.Recoverable {
			s.log.Warn().Str("attempt_id", a.ID).Str("reason", ev.Reason).Msg("submission failed, attempt can retry")
			return
		}
		s.log.Error().Str("attempt_id", a.ID).Str("trigger", string(ev.Trigger)).Str("reason", ev.Reason).Msg("submission failed permanently")
		if ev.Submission != nil && s.escalator != nil {
			go s.escalate(a, ev)
		}
	}
}

func (s *AttemptService) escalate(a *Attempt, ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e := domain.Escalation{
		AttemptID:    a.ID,
		AssessmentID: a.Key.AssessmentID,
		UserID:       a.Key.UserID,
		Submission:   *ev.Submission,
		Reason:       ev.Reason,
		FailedAt:     s.now(),
	}
	if err := s.escalator.Escalate(ctx, e); err != nil {
		s.log.Error().Err(err).Str("attempt_id", a.ID).Msg("escalation not recorded")
	}
}

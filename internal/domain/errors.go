package domain

import (
	"errors"
	"fmt"
)

// Validation errors: caller misuse, never retried.
var (
	// ErrEmptyAssessment is returned when an attempt is started without questions.
	ErrEmptyAssessment = errors.New("assessment has no questions")
	// ErrOutOfRange is returned when jumping to a question index that does not exist.
	ErrOutOfRange = errors.New("question index out of range")
	// ErrAlreadyArmed is returned when a clock is armed twice.
	ErrAlreadyArmed = errors.New("clock already armed")
	// ErrAlreadyStarted is returned when Start is called on a running attempt.
	ErrAlreadyStarted = errors.New("attempt already started")
	// ErrNotStarted is returned when a command arrives before Start.
	ErrNotStarted = errors.New("attempt not started")
	// ErrQuestionNotFound indicates a question id outside the assessment.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates an option id outside the question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrUnknownQuestionType indicates a question type the answer store cannot apply.
	ErrUnknownQuestionType = errors.New("unknown question type")
	// ErrInvalidContent wraps content that failed validation after loading.
	ErrInvalidContent = errors.New("invalid assessment content")
)

// Lookup errors.
var (
	// ErrAssessmentNotFound indicates the assessment content could not be loaded.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrAttemptNotFound is returned when an attempt id is not live.
	ErrAttemptNotFound = errors.New("attempt not found")
)

// Policy rejections: expected races between UI events and state transitions.
var (
	// ErrMutationAfterSubmit is returned when answers change after submission began.
	ErrMutationAfterSubmit = errors.New("answers are frozen")
	// ErrSubmitInFlight is returned when a submission is already running or finished.
	ErrSubmitInFlight = errors.New("submission already in flight or finished")
	// ErrInvalidTransition is returned for a submit command that is illegal in the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAttemptDisposed is returned for commands that arrive after teardown.
	ErrAttemptDisposed = errors.New("attempt disposed")
)

// IsPolicyRejection reports whether err is a rejection callers should treat as a no-op.
func IsPolicyRejection(err error) bool {
	return errors.Is(err, ErrMutationAfterSubmit) ||
		errors.Is(err, ErrSubmitInFlight) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAttemptDisposed)
}

// GradingError is a well-formed refusal from the grading backend ({success:false}).
type GradingError struct {
	Message string
}

func (e *GradingError) Error() string {
	if e.Message == "" {
		return "grading rejected submission"
	}
	return "grading rejected submission: " + e.Message
}

// SubmissionError reports a failed backend call and whether the attempt can retry.
type SubmissionError struct {
	Trigger     Trigger
	Recoverable bool
	Err         error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s submission failed: %v", e.Trigger, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

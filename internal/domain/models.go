package domain

import "time"

// QuestionType decides how a selection mutates the answer set.
type QuestionType string

const (
	QuestionSingleSelect QuestionType = "single-select"
	QuestionMultiSelect  QuestionType = "multi-select"
)

// Option represents a possible answer for a question.
type Option struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text"`
	// Correct is only read by the local grader; the attempt engine ignores it.
	Correct bool `json:"correct,omitempty"`
}

// Question is immutable for the duration of an attempt.
type Question struct {
	ID       string       `json:"id" validate:"required"`
	Order    int          `json:"order" validate:"gte=1"`
	Text     string       `json:"text"`
	ImageURL string       `json:"imageUrl,omitempty"`
	Points   int          `json:"points" validate:"gt=0"`
	Type     QuestionType `json:"type" validate:"oneof=single-select multi-select"`
	Options  []Option     `json:"options" validate:"min=1,dive"`
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// Assessment is owned by the content provider and read-only to attempts.
type Assessment struct {
	ID              string   `json:"id" validate:"required"`
	Title           string   `json:"title"`
	DurationMinutes int      `json:"durationMinutes" validate:"gt=0"`
	TotalPoints     int      `json:"totalPoints" validate:"gte=0"`
	QuestionIDs     []string `json:"questionIds"`
	// PassingPercentage is used by the local grader; zero means the default.
	PassingPercentage float64 `json:"passingPercentage,omitempty" validate:"gte=0,lte=100"`
}

// AssessmentContent is what the content provider returns for fetchAssessment.
type AssessmentContent struct {
	Assessment Assessment `json:"assessment" validate:"required"`
	Questions  []Question `json:"questions" validate:"dive"`
}

// Submission is the frozen answer snapshot sent to the grading backend.
type Submission struct {
	Answers          map[string][]string `json:"answers"`
	TimeSpentSeconds int                 `json:"timeSpentSeconds"`
}

// Result is reported by the grading backend; attempts never compute it.
type Result struct {
	Score       float64 `json:"score"`
	TotalPoints int     `json:"totalPoints"`
	Percentage  float64 `json:"percentage"`
	Passed      bool    `json:"passed"`
	Grade       string  `json:"grade"`
}

// Status is the submission state of an attempt.
type Status string

const (
	StatusLoading        Status = "loading"
	StatusInProgress     Status = "in_progress"
	StatusConfirmPending Status = "confirm_pending"
	StatusSubmitting     Status = "submitting"
	StatusSubmitted      Status = "submitted"
	StatusFailed         Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSubmitted || s == StatusFailed
}

// Trigger distinguishes confirmed submissions from time-expiry submissions.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
)

// AttemptSnapshot is the read-only view handed to the hosting screen.
type AttemptSnapshot struct {
	AttemptID        string              `json:"attemptId,omitempty"`
	AssessmentID     string              `json:"assessmentId"`
	Status           Status              `json:"status"`
	CurrentIndex     int                 `json:"currentIndex"`
	QuestionCount    int                 `json:"questionCount"`
	RemainingSeconds int                 `json:"remainingSeconds"`
	AnsweredCount    int                 `json:"answeredCount"`
	Answers          map[string][]string `json:"answers"`
	StartedAt        time.Time           `json:"startedAt"`
	Result           *Result             `json:"result,omitempty"`
	FailureReason    string              `json:"failureReason,omitempty"`
}

// Escalation reports an auto-submission that failed with no time left to retry.
type Escalation struct {
	AttemptID    string     `json:"attemptId"`
	AssessmentID string     `json:"assessmentId"`
	UserID       string     `json:"userId"`
	Submission   Submission `json:"submission"`
	Reason       string     `json:"reason"`
	FailedAt     time.Time  `json:"failedAt"`
}

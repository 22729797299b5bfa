package domain

// EventType names a state change surfaced by an attempt.
type EventType string

const (
	EventStarted       EventType = "started"
	EventTick          EventType = "tick"
	EventAnswerChanged EventType = "answer"
	EventNavigated     EventType = "navigated"
	EventStatusChanged EventType = "status"
	EventRejected      EventType = "rejected"
	EventSubmitted     EventType = "submitted"
	EventFailed        EventType = "failed"
)

// Event is emitted for every accepted command, tick and transition, and for rejections.
type Event struct {
	Type             EventType `json:"type"`
	Status           Status    `json:"status"`
	RemainingSeconds int       `json:"remainingSeconds"`
	CurrentIndex     int       `json:"currentIndex"`
	AnsweredCount    int       `json:"answeredCount"`
	QuestionID       string    `json:"questionId,omitempty"`
	Trigger          Trigger   `json:"trigger,omitempty"`
	Result           *Result   `json:"result,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	Recoverable      bool      `json:"recoverable,omitempty"`
	// Submission is set on auto failures so the host can escalate the frozen answers.
	Submission *Submission `json:"-"`
	Err        error       `json:"-"`
}

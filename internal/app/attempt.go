package app

import (
	"context"
	"sync"
	"time"

	"assessment-attempt-service/internal/attempt"
	"assessment-attempt-service/internal/domain"
)

// AttemptKey identifies the single live attempt a user may hold on an assessment.
type AttemptKey struct {
	AssessmentID string
	UserID       string
}

// Attempt is a live, server-hosted assessment attempt: a controller plus the
// subscribers that receive its events.
type Attempt struct {
	ID        string
	Key       AttemptKey
	CreatedAt time.Time

	content domain.AssessmentContent
	ctrl    *attempt.Controller
	onEvent func(*Attempt, domain.Event)

	mu          sync.Mutex
	subscribers map[chan domain.Event]struct{}
	conns       int
	ended       bool
}

// NewAttempt is exported for infrastructure layers that need to seed attempts.
// The result has no controller; only AttemptService.Start produces a playable attempt.
func NewAttempt(id string, key AttemptKey, content domain.AssessmentContent) *Attempt {
	return newAttempt(id, key, content, time.Now())
}

func newAttempt(id string, key AttemptKey, content domain.AssessmentContent, createdAt time.Time) *Attempt {
	return &Attempt{
		ID:          id,
		Key:         key,
		CreatedAt:   createdAt,
		content:     content,
		subscribers: make(map[chan domain.Event]struct{}),
	}
}

// Content returns the assessment and its ordered questions.
func (a *Attempt) Content() domain.AssessmentContent {
	return a.content
}

func (a *Attempt) Select(questionID, optionID string) error {
	return a.ctrl.SelectAnswer(questionID, optionID)
}

func (a *Attempt) Next() int { return a.ctrl.GoNext() }

func (a *Attempt) Previous() int { return a.ctrl.GoPrevious() }

func (a *Attempt) Jump(index int) error { return a.ctrl.JumpToQuestion(index) }

func (a *Attempt) RequestSubmit() error { return a.ctrl.RequestSubmit() }

func (a *Attempt) CancelSubmit() error { return a.ctrl.CancelSubmit() }

// ConfirmSubmit blocks until the grading backend replies.
func (a *Attempt) ConfirmSubmit(ctx context.Context) error {
	return a.ctrl.ConfirmSubmit(ctx)
}

func (a *Attempt) Status() domain.Status { return a.ctrl.Status() }

func (a *Attempt) Snapshot() domain.AttemptSnapshot {
	snap := a.ctrl.Snapshot()
	snap.AttemptID = a.ID
	return snap
}

// Subscribe returns a channel of attempt events. The caller must invoke the
// returned cancel function to avoid leaks.
func (a *Attempt) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 16)

	a.mu.Lock()
	a.subscribers[ch] = struct{}{}
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subscribers[ch]; ok {
			delete(a.subscribers, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

// acquire registers a connection. It fails once the attempt has ended.
func (a *Attempt) acquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ended {
		return false
	}
	a.conns++
	return true
}

// release drops a connection and reports whether it was the last one.
// The last release ends the attempt so no later acquire can revive it.
func (a *Attempt) release() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ended || a.conns == 0 {
		return false
	}
	a.conns--
	if a.conns > 0 {
		return false
	}
	a.ended = true
	return true
}

func (a *Attempt) dispose() {
	a.ctrl.Dispose()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.ended = true
	for ch := range a.subscribers {
		delete(a.subscribers, ch)
		close(ch)
	}
}

// observe runs under the controller lock, so neither broadcast nor the
// service hook may block.
func (a *Attempt) observe(ev domain.Event) {
	a.broadcast(ev)
	if a.onEvent != nil {
		a.onEvent(a, ev)
	}
}

func (a *Attempt) broadcast(ev domain.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range a.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest event.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

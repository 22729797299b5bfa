package attempt

import (
	"context"
	"errors"
	"sync"

	"assessment-attempt-service/internal/domain"
)

type reply struct {
	result domain.Result
	err    error
}

// scriptedGrader replays replies in order; the last one repeats.
type scriptedGrader struct {
	mu      sync.Mutex
	replies []reply
	calls   []domain.Submission
	entered chan struct{}
	release chan struct{}
}

func newScriptedGrader(replies ...reply) *scriptedGrader {
	return &scriptedGrader{replies: replies}
}

// blocking makes SubmitAttempt wait for release after signalling entered.
func (g *scriptedGrader) blocking() *scriptedGrader {
	g.entered = make(chan struct{}, 4)
	g.release = make(chan struct{})
	return g
}

func (g *scriptedGrader) SubmitAttempt(ctx context.Context, _ string, sub domain.Submission) (domain.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, sub)
	n := len(g.calls)
	g.mu.Unlock()

	if g.entered != nil {
		g.entered <- struct{}{}
		select {
		case <-g.release:
		case <-ctx.Done():
			return domain.Result{}, ctx.Err()
		}
	}

	if len(g.replies) == 0 {
		return domain.Result{}, errors.New("no reply scripted")
	}
	idx := n - 1
	if idx >= len(g.replies) {
		idx = len(g.replies) - 1
	}
	r := g.replies[idx]
	return r.result, r.err
}

func (g *scriptedGrader) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *scriptedGrader) lastCall() domain.Submission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[len(g.calls)-1]
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) record(ev domain.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) statuses() []domain.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Status, 0, len(l.events))
	for _, ev := range l.events {
		if len(out) == 0 || out[len(out)-1] != ev.Status {
			out = append(out, ev.Status)
		}
	}
	return out
}

func (l *eventLog) ofType(t domain.EventType) []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

var passingResult = domain.Result{Score: 7, TotalPoints: 10, Percentage: 70, Passed: true, Grade: "B"}

func sampleContent(minutes int) (domain.Assessment, []domain.Question) {
	questions := []domain.Question{
		{
			ID: "q1", Order: 1, Text: "2 + 2", Points: 4, Type: domain.QuestionSingleSelect,
			Options: []domain.Option{{ID: "a", Text: "3"}, {ID: "b", Text: "4", Correct: true}},
		},
		{
			ID: "q2", Order: 2, Text: "Pick primes", Points: 3, Type: domain.QuestionMultiSelect,
			Options: []domain.Option{{ID: "a", Text: "2", Correct: true}, {ID: "b", Text: "3", Correct: true}, {ID: "c", Text: "4"}},
		},
		{
			ID: "q3", Order: 3, Text: "Capital of France", Points: 3, Type: domain.QuestionSingleSelect,
			Options: []domain.Option{{ID: "a", Text: "Paris", Correct: true}, {ID: "b", Text: "Rome"}},
		},
	}
	assessment := domain.Assessment{
		ID:              "asm-1",
		Title:           "Mixed",
		DurationMinutes: minutes,
		TotalPoints:     10,
		QuestionIDs:     []string{"q1", "q2", "q3"},
	}
	return assessment, questions
}

func startedController(grader Grader, opts ...Option) (*Controller, *ManualClock) {
	clock := NewManualClock()
	c := NewController(clock, grader, opts...)
	a, qs := sampleContent(1)
	if err := c.Start(a, qs); err != nil {
		panic(err)
	}
	return c, clock
}

package memory

import (
	"context"
	"sync"

	"assessment-attempt-service/internal/domain"
)

// EscalationLog keeps escalations in process memory; they are lost on restart.
type EscalationLog struct {
	mu      sync.Mutex
	entries []domain.Escalation
	notify  chan struct{}
}

func NewEscalationLog() *EscalationLog {
	return &EscalationLog{notify: make(chan struct{}, 1)}
}

func (l *EscalationLog) Escalate(_ context.Context, e domain.Escalation) error {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
	return nil
}

// List returns up to limit escalations, oldest first. limit <= 0 returns all.
func (l *EscalationLog) List(_ context.Context, limit int) ([]domain.Escalation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Escalation, n)
	copy(out, l.entries[:n])
	return out, nil
}

// Recorded is signalled after each Escalate.
func (l *EscalationLog) Recorded() <-chan struct{} {
	return l.notify
}

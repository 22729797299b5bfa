package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"assessment-attempt-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// AssessmentLoader fetches assessment content from a backing store (e.g., Postgres).
type AssessmentLoader interface {
	LoadAssessment(ctx context.Context, assessmentID string) (domain.AssessmentContent, error)
}

// AssessmentRepository caches assessment content with TTL to avoid repeated DB hits.
type AssessmentRepository struct {
	loader AssessmentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedAssessment
}

type cachedAssessment struct {
	content   domain.AssessmentContent
	expiresAt time.Time
}

func NewAssessmentRepository(loader AssessmentLoader, ttl time.Duration) *AssessmentRepository {
	return &AssessmentRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedAssessment),
	}
}

func (r *AssessmentRepository) GetAssessment(ctx context.Context, assessmentID string) (domain.AssessmentContent, error) {
	if content, ok := r.lookup(assessmentID); ok {
		return content, nil
	}

	result, err, _ := r.sf.Do(assessmentID, func() (interface{}, error) {
		if content, ok := r.lookup(assessmentID); ok {
			return content, nil
		}

		content, err := r.loader.LoadAssessment(ctx, assessmentID)
		if err != nil {
			return domain.AssessmentContent{}, err
		}

		r.mu.Lock()
		r.cache[assessmentID] = cachedAssessment{
			content:   content,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return domain.AssessmentContent{}, err
	}
	return result.(domain.AssessmentContent), nil
}

func (r *AssessmentRepository) lookup(assessmentID string) (domain.AssessmentContent, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[assessmentID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.AssessmentContent{}, false
	}
	return entry.content, true
}

func (r *AssessmentRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticAssessmentLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticAssessmentLoader struct {
	assessments map[string]domain.AssessmentContent
}

func NewStaticAssessmentLoader(assessments map[string]domain.AssessmentContent) *StaticAssessmentLoader {
	return &StaticAssessmentLoader{assessments: assessments}
}

func (l *StaticAssessmentLoader) LoadAssessment(_ context.Context, assessmentID string) (domain.AssessmentContent, error) {
	if content, ok := l.assessments[assessmentID]; ok {
		return content, nil
	}
	return domain.AssessmentContent{}, domain.ErrAssessmentNotFound
}

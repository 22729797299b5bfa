package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"assessment-attempt-service/internal/domain"
	"assessment-attempt-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// AssessmentRepository caches assessment content in Redis and falls back to a loader on cache miss.
// Content is stored as: SET assessment:{assessmentID}:content {json}
type AssessmentRepository struct {
	client *redis.Client
	loader memory.AssessmentLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewAssessmentRepository(client *redis.Client, loader memory.AssessmentLoader, ttl time.Duration) *AssessmentRepository {
	return &AssessmentRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *AssessmentRepository) GetAssessment(ctx context.Context, assessmentID string) (domain.AssessmentContent, error) {
	key := contentKey(assessmentID)
	if content, ok := r.cached(ctx, key); ok {
		return content, nil
	}

	result, err, _ := r.sf.Do(assessmentID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if content, ok := r.cached(ctx, key); ok {
			return content, nil
		}

		content, err := r.loader.LoadAssessment(ctx, assessmentID)
		if err != nil {
			return domain.AssessmentContent{}, err
		}

		raw, err := json.Marshal(content)
		if err != nil {
			return domain.AssessmentContent{}, err
		}
		// best-effort: a failed write only costs another load
		_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		return content, nil
	})
	if err != nil {
		return domain.AssessmentContent{}, err
	}
	return result.(domain.AssessmentContent), nil
}

// Invalidate drops the cached content so the next read goes to the loader.
func (r *AssessmentRepository) Invalidate(ctx context.Context, assessmentID string) error {
	return r.client.Del(ctx, contentKey(assessmentID)).Err()
}

func (r *AssessmentRepository) cached(ctx context.Context, key string) (domain.AssessmentContent, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.AssessmentContent{}, false
	}
	var content domain.AssessmentContent
	if err := json.Unmarshal(raw, &content); err != nil {
		// Corrupt entry; treat as a miss so the loader overwrites it.
		return domain.AssessmentContent{}, false
	}
	return content, true
}

func contentKey(assessmentID string) string {
	return "assessment:" + assessmentID + ":content"
}

func (r *AssessmentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// isNil reports a missing key.
func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

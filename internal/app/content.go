package app

import (
	"errors"
	"fmt"
	"sort"

	"assessment-attempt-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateContent checks loaded content and returns the questions sorted by
// their 1-based order. Orders must be contiguous and question ids unique.
func ValidateContent(content domain.AssessmentContent) ([]domain.Question, error) {
	if len(content.Questions) == 0 {
		return nil, domain.ErrEmptyAssessment
	}
	if err := validate.Struct(content); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: %s failed %q", domain.ErrInvalidContent, verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidContent, err)
	}

	questions := make([]domain.Question, len(content.Questions))
	copy(questions, content.Questions)
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Order < questions[j].Order
	})

	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if q.Order != i+1 {
			return nil, fmt.Errorf("%w: question %s has order %d, want %d", domain.ErrInvalidContent, q.ID, q.Order, i+1)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question %s", domain.ErrInvalidContent, q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return questions, nil
}

package attempt

import (
	"sort"

	"assessment-attempt-service/internal/domain"
)

// AnswerStore maps question ids to the set of selected option ids.
// Keys exist only for questions with at least one selection.
// It is not safe for concurrent use; the Controller serializes access.
type AnswerStore struct {
	sets   map[string]map[string]struct{}
	frozen bool
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{sets: make(map[string]map[string]struct{})}
}

// Select applies a selection under the question type's rules: multi-select
// toggles membership, single-select replaces the whole set.
func (s *AnswerStore) Select(questionID, optionID string, questionType domain.QuestionType) error {
	if s.frozen {
		return domain.ErrMutationAfterSubmit
	}

	switch questionType {
	case domain.QuestionSingleSelect:
		s.sets[questionID] = map[string]struct{}{optionID: {}}
	case domain.QuestionMultiSelect:
		set, ok := s.sets[questionID]
		if !ok {
			s.sets[questionID] = map[string]struct{}{optionID: {}}
			return nil
		}
		if _, selected := set[optionID]; selected {
			delete(set, optionID)
			if len(set) == 0 {
				delete(s.sets, questionID)
			}
			return nil
		}
		set[optionID] = struct{}{}
	default:
		return domain.ErrUnknownQuestionType
	}
	return nil
}

// AnsweredCount returns the number of questions with a non-empty set.
func (s *AnswerStore) AnsweredCount() int {
	return len(s.sets)
}

func (s *AnswerStore) IsAnswered(questionID string) bool {
	return len(s.sets[questionID]) > 0
}

// Selected returns the sorted option ids chosen for a question.
func (s *AnswerStore) Selected(questionID string) []string {
	return sortedKeys(s.sets[questionID])
}

// Snapshot returns a deep copy of the answers with sorted option ids.
func (s *AnswerStore) Snapshot() map[string][]string {
	out := make(map[string][]string, len(s.sets))
	for questionID, set := range s.sets {
		out[questionID] = sortedKeys(set)
	}
	return out
}

// Freeze rejects further selections until Unfreeze.
func (s *AnswerStore) Freeze() { s.frozen = true }

func (s *AnswerStore) Unfreeze() { s.frozen = false }

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

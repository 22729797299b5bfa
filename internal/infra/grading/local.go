package grading

import (
	"context"
	"math"

	"assessment-attempt-service/internal/domain"
)

// DefaultPassingPercentage applies when neither the assessment nor the config sets one.
const DefaultPassingPercentage = 60.0

// ContentSource is the subset of the content repository the local grader reads.
type ContentSource interface {
	GetAssessment(ctx context.Context, assessmentID string) (domain.AssessmentContent, error)
}

// LocalGrader scores submissions in process against the options' correct
// flags. It stands in for the grading backend in development.
type LocalGrader struct {
	contents ContentSource
	passing  float64
}

func NewLocalGrader(contents ContentSource, passingPercentage float64) *LocalGrader {
	if passingPercentage <= 0 {
		passingPercentage = DefaultPassingPercentage
	}
	return &LocalGrader{contents: contents, passing: passingPercentage}
}

func (g *LocalGrader) SubmitAttempt(ctx context.Context, assessmentID string, sub domain.Submission) (domain.Result, error) {
	content, err := g.contents.GetAssessment(ctx, assessmentID)
	if err != nil {
		return domain.Result{}, err
	}
	passing := g.passing
	if content.Assessment.PassingPercentage > 0 {
		passing = content.Assessment.PassingPercentage
	}
	return Score(content, sub, passing), nil
}

// Score awards a question's points when the selected set equals its correct set.
func Score(content domain.AssessmentContent, sub domain.Submission, passingPercentage float64) domain.Result {
	var score float64
	total := 0
	for _, q := range content.Questions {
		total += q.Points
		if sameSet(sub.Answers[q.ID], correctOptions(q)) {
			score += float64(q.Points)
		}
	}
	if content.Assessment.TotalPoints > 0 {
		total = content.Assessment.TotalPoints
	}

	var percentage float64
	if total > 0 {
		percentage = math.Round(score/float64(total)*10000) / 100
	}
	return domain.Result{
		Score:       score,
		TotalPoints: total,
		Percentage:  percentage,
		Passed:      percentage >= passingPercentage,
		Grade:       letterGrade(percentage),
	}
}

func correctOptions(q domain.Question) []string {
	var ids []string
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

func sameSet(selected, correct []string) bool {
	if len(correct) == 0 || len(selected) != len(correct) {
		return false
	}
	want := make(map[string]struct{}, len(correct))
	for _, id := range correct {
		want[id] = struct{}{}
	}
	for _, id := range selected {
		if _, ok := want[id]; !ok {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}

func letterGrade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}

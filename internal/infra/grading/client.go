package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"assessment-attempt-service/internal/domain"
)

// Client submits attempts to the remote grading backend:
//
//	POST {baseURL}/assessments/{id}/submissions
//	{"answers": {"q1": ["o2"]}, "timeSpentSeconds": 120}
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type gradingReply struct {
	Success     *bool   `json:"success"`
	Message     string  `json:"message"`
	Score       float64 `json:"score"`
	TotalPoints int     `json:"totalPoints"`
	Percentage  float64 `json:"percentage"`
	Passed      bool    `json:"passed"`
	Grade       string  `json:"grade"`
}

// SubmitAttempt sends one submission. A {success:false} reply is returned as
// *domain.GradingError; anything else that is not a result is a transport error.
func (c *Client) SubmitAttempt(ctx context.Context, assessmentID string, sub domain.Submission) (domain.Result, error) {
	if sub.Answers == nil {
		sub.Answers = map[string][]string{}
	}
	body, err := json.Marshal(sub)
	if err != nil {
		return domain.Result{}, fmt.Errorf("marshal submission: %w", err)
	}

	endpoint := c.baseURL + "/assessments/" + url.PathEscape(assessmentID) + "/submissions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Result{}, fmt.Errorf("build grading request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Result{}, fmt.Errorf("grading request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Result{}, fmt.Errorf("read grading reply: %w", err)
	}

	var reply gradingReply
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &reply) != nil {
		return domain.Result{}, fmt.Errorf("grading backend returned %d without a usable body", resp.StatusCode)
	}
	if reply.Success != nil && !*reply.Success {
		return domain.Result{}, &domain.GradingError{Message: reply.Message}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if reply.Message != "" {
			return domain.Result{}, &domain.GradingError{Message: reply.Message}
		}
		return domain.Result{}, fmt.Errorf("grading backend returned %d", resp.StatusCode)
	}
	if reply.Success == nil {
		return domain.Result{}, errors.New("grading reply missing success flag")
	}

	return domain.Result{
		Score:       reply.Score,
		TotalPoints: reply.TotalPoints,
		Percentage:  reply.Percentage,
		Passed:      reply.Passed,
		Grade:       reply.Grade,
	}, nil
}

// Package leetcode talks to the LeetCode GraphQL endpoint.
package leetcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/codeduel/internal/models"
	"github.com/jason-s-yu/codeduel/internal/problems"
	"github.com/sirupsen/logrus"
)

// DefaultEndpoint is the public GraphQL endpoint.
const DefaultEndpoint = "https://leetcode.com/graphql"

// Client implements problems.Service over GraphQL.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *logrus.Entry
}

var _ problems.Service = (*Client)(nil)

// NewClient builds a client. A nil httpClient gets a 10 second timeout.
func NewClient(endpoint string, httpClient *http.Client, logger *logrus.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		endpoint: endpoint,
		http:     httpClient,
		logger:   logger.WithField("component", "leetcode"),
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, op, query string, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return &problems.ServiceError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &problems.ServiceError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", "https://leetcode.com")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &problems.ServiceError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"op":       op,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("graphql request")

	if resp.StatusCode != http.StatusOK {
		return &problems.ServiceError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var envelope graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &problems.ServiceError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(envelope.Errors) > 0 {
		return &problems.ServiceError{Op: op, Err: errors.New(envelope.Errors[0].Message)}
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return &problems.ServiceError{Op: op, Err: errors.New("empty data")}
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &problems.ServiceError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

type questionData struct {
	Question *struct {
		QuestionID string `json:"questionId"`
		Title      string `json:"title"`
		TitleSlug  string `json:"titleSlug"`
		Content    string `json:"content"`
		Difficulty string `json:"difficulty"`
		Stats      string `json:"stats"`
		TopicTags  []struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
		} `json:"topicTags"`
	} `json:"question"`
}

func (c *Client) FetchProblem(ctx context.Context, slug string) (models.Problem, error) {
	var data questionData
	if err := c.do(ctx, "problem", questionQuery, map[string]interface{}{"titleSlug": slug}, &data); err != nil {
		return models.Problem{}, err
	}
	q := data.Question
	if q == nil {
		return models.Problem{}, &problems.ServiceError{Op: "problem", Err: fmt.Errorf("problem %q not found", slug)}
	}

	p := models.Problem{
		ID:             q.QuestionID,
		Title:          q.Title,
		Slug:           q.TitleSlug,
		Difficulty:     strings.ToUpper(q.Difficulty),
		Content:        q.Content,
		AcceptanceRate: parseAcRate(q.Stats),
	}
	for _, tag := range q.TopicTags {
		if tag.Slug != "" {
			p.Tags = append(p.Tags, tag.Slug)
		} else {
			p.Tags = append(p.Tags, tag.Name)
		}
	}
	return p, nil
}

// parseAcRate reads the acceptance rate out of the JSON-encoded stats string.
func parseAcRate(stats string) float64 {
	var s struct {
		AcRate string `json:"acRate"`
	}
	if err := json.Unmarshal([]byte(stats), &s); err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s.AcRate, "%"), 64)
	if err != nil {
		return 0
	}
	return f
}

func (c *Client) FetchRandomProblem(ctx context.Context, filter problems.Filter) (models.Problem, error) {
	filters := map[string]interface{}{
		"filterCombineType": "ALL",
	}
	if len(filter.Difficulties) > 0 {
		filters["difficultyFilter"] = map[string]interface{}{
			"difficulties": filter.Difficulties,
			"operator":     "IS",
		}
	}
	if len(filter.Topics) > 0 {
		filters["topicFilter"] = map[string]interface{}{
			"topicSlugs": filter.Topics,
			"operator":   "IS",
		}
	}
	vars := map[string]interface{}{
		"categorySlug":  "",
		"searchKeyword": "",
		"filtersV2":     filters,
	}

	var data struct {
		RandomQuestion *struct {
			TitleSlug string `json:"titleSlug"`
		} `json:"randomQuestionV2"`
	}
	if err := c.do(ctx, "random problem", randomQuestionQuery, vars, &data); err != nil {
		return models.Problem{}, err
	}
	if data.RandomQuestion == nil || data.RandomQuestion.TitleSlug == "" {
		return models.Problem{}, &problems.ServiceError{Op: "random problem", Err: errors.New("no problem returned")}
	}
	return models.Problem{Slug: data.RandomQuestion.TitleSlug}, nil
}

func (c *Client) FetchRecentSubmission(ctx context.Context, handle string) (*models.Submission, error) {
	var data struct {
		List []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			TitleSlug string `json:"titleSlug"`
			Timestamp string `json:"timestamp"`
			Lang      string `json:"lang"`
			Runtime   string `json:"runtime"`
			Memory    string `json:"memory"`
		} `json:"recentAcSubmissionList"`
	}
	vars := map[string]interface{}{"username": handle, "limit": 1}
	if err := c.do(ctx, "recent submission", recentAcSubmissionsQuery, vars, &data); err != nil {
		return nil, err
	}
	if len(data.List) == 0 {
		return nil, nil
	}

	s := data.List[0]
	sub := &models.Submission{
		ID:          s.ID,
		ProblemSlug: s.TitleSlug,
		Title:       s.Title,
		RuntimeText: s.Runtime,
		MemoryText:  s.Memory,
		Lang:        s.Lang,
	}
	if sec, err := strconv.ParseInt(s.Timestamp, 10, 64); err == nil {
		sub.Timestamp = time.Unix(sec, 0).UTC()
	}
	return sub, nil
}

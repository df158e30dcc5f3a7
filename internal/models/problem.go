package models

import "time"

// Problem is a single catalog entry from the external problem service.
type Problem struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Slug           string   `json:"slug"`
	Difficulty     string   `json:"difficulty"`
	Tags           []string `json:"tags"`
	AcceptanceRate float64  `json:"acceptance_rate"`
	Content        string   `json:"content,omitempty"`
}

// URL is the public page for the problem.
func (p Problem) URL() string {
	return ProblemURL(p.Slug)
}

// ProblemURL builds the public page for a problem slug.
func ProblemURL(slug string) string {
	return "https://leetcode.com/problems/" + slug + "/"
}

// Submission is a player's most recent accepted submission on the external service.
type Submission struct {
	ID          string    `json:"id"`
	ProblemSlug string    `json:"problem_slug"`
	Title       string    `json:"title"`
	RuntimeText string    `json:"runtime"`
	MemoryText  string    `json:"memory"`
	Lang        string    `json:"lang"`
	Timestamp   time.Time `json:"timestamp"`
}

package models

import (
	"errors"
	"strings"
)

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NormalizeRole maps the aliases used by older clients ("human", "ai") onto Role values.
func NormalizeRole(r string) Role {
	switch strings.ToLower(strings.TrimSpace(r)) {
	case "assistant", "ai", "model":
		return RoleAssistant
	default:
		return RoleUser
	}
}

// Turn is one entry of the conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Query is the immutable input of one pipeline run.
type Query struct {
	Text    string `json:"query"`
	History []Turn `json:"history"`
}

// Document is a unit of retrieved evidence.
type Document struct {
	PageContent string   `json:"pageContent"`
	Metadata    Metadata `json:"metadata"`
}

type Metadata struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	ImageSrc  string `json:"imageSrc,omitempty"`
	TotalDocs int    `json:"totalDocs,omitempty"`
}

// SearchResult is the normalized form of a document attached to a plan.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// ToSearchResult drops everything but url, title and content.
func (d Document) ToSearchResult() SearchResult {
	return SearchResult{Title: d.Metadata.Title, URL: d.Metadata.URL, Content: d.PageContent}
}

type PlanStatus string

const (
	PlanPending  PlanStatus = "pending"
	PlanFinished PlanStatus = "finished"
)

// UnknownAnswer is stored when a plan could not be answered.
const UnknownAnswer = "Unknown"

var ErrPlanFinished = errors.New("plan already finished")

// Plan is one independently answerable sub-question.
type Plan struct {
	Name         string         `json:"planName"`
	NeedSearch   bool           `json:"needSearch"`
	SearchKeys   []string       `json:"searchKeys"`
	SearchResult []SearchResult `json:"searchResult,omitempty"`
	Answer       string         `json:"answer,omitempty"`
	Status       PlanStatus     `json:"status"`
}

// AppendAnswer appends a streamed chunk to the answer.
func (p *Plan) AppendAnswer(chunk string) error {
	if p.Status == PlanFinished {
		return ErrPlanFinished
	}
	p.Answer += chunk
	return nil
}

// SetAnswer replaces the answer.
func (p *Plan) SetAnswer(answer string) error {
	if p.Status == PlanFinished {
		return ErrPlanFinished
	}
	p.Answer = answer
	return nil
}

// Finish seals the plan. Subsequent answer mutations fail with ErrPlanFinished.
func (p *Plan) Finish() {
	p.Status = PlanFinished
}

func (p *Plan) Finished() bool { return p.Status == PlanFinished }

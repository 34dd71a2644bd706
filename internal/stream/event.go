// Package stream carries pipeline progress to a single consumer.
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/mohammad-safakhou/mindsearch/models"
)

// Kind names an event on the wire.
type Kind string

const (
	KindPlan             Kind = "plan"
	KindSearchResult     Kind = "searchResult"
	KindPlanAnswerChunk  Kind = "planAnswerChunk"
	KindPlanFinished     Kind = "planFinished"
	KindOutlineChunk     Kind = "outlineChunk"
	KindOutlineFinished  Kind = "outlineFinished"
	KindSourcesFinal     Kind = "sourcesFinal"
	KindResponseChunk    Kind = "responseChunk"
	KindResponseFinished Kind = "responseFinished"
	KindError            Kind = "error"
)

// Terminal reports whether no event may follow one of this kind.
func (k Kind) Terminal() bool {
	return k == KindResponseFinished || k == KindError
}

// Payload is implemented only by the data types in this file.
type Payload interface {
	Kind() Kind
	sealed()
}

// Plans is emitted once after planning.
type Plans struct {
	Plans []models.Plan `json:"plans"`
}

type SearchResult struct {
	PlanName string                `json:"planName"`
	Results  []models.SearchResult `json:"searchResult"`
}

type PlanAnswerChunk struct {
	PlanName string `json:"planName"`
	Chunk    string `json:"answer"`
}

type PlanFinished struct {
	PlanName string `json:"planName"`
	Answer   string `json:"answer"`
	Status   string `json:"status"`
}

type OutlineChunk struct {
	Chunk string `json:"chunk"`
}

type OutlineFinished struct {
	Outline string `json:"outline"`
}

// Source is one numbered entry of the final source list.
type Source struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type SourcesFinal struct {
	Sources []Source `json:"sources"`
}

type ResponseChunk struct {
	Chunk string `json:"chunk"`
}

type ResponseFinished struct {
	Response string `json:"response"`
}

type Error struct {
	Message string `json:"message"`
}

func (Plans) Kind() Kind            { return KindPlan }
func (SearchResult) Kind() Kind     { return KindSearchResult }
func (PlanAnswerChunk) Kind() Kind  { return KindPlanAnswerChunk }
func (PlanFinished) Kind() Kind     { return KindPlanFinished }
func (OutlineChunk) Kind() Kind     { return KindOutlineChunk }
func (OutlineFinished) Kind() Kind  { return KindOutlineFinished }
func (SourcesFinal) Kind() Kind     { return KindSourcesFinal }
func (ResponseChunk) Kind() Kind    { return KindResponseChunk }
func (ResponseFinished) Kind() Kind { return KindResponseFinished }
func (Error) Kind() Kind            { return KindError }

func (Plans) sealed()            {}
func (SearchResult) sealed()     {}
func (PlanAnswerChunk) sealed()  {}
func (PlanFinished) sealed()     {}
func (OutlineChunk) sealed()     {}
func (OutlineFinished) sealed()  {}
func (SourcesFinal) sealed()     {}
func (ResponseChunk) sealed()    {}
func (ResponseFinished) sealed() {}
func (Error) sealed()            {}

// Event wraps one payload.
type Event struct {
	Data Payload
}

func (e Event) Kind() Kind { return e.Data.Kind() }

type envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON renders the {type, data} envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Data == nil {
		return nil, fmt.Errorf("event without payload")
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: e.Data.Kind(), Data: data})
}

// UnmarshalJSON decodes an envelope back into the matching payload type.
func (e *Event) UnmarshalJSON(b []byte) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	var (
		p   Payload
		err error
	)
	switch env.Type {
	case KindPlan:
		p, err = decode[Plans](env.Data)
	case KindSearchResult:
		p, err = decode[SearchResult](env.Data)
	case KindPlanAnswerChunk:
		p, err = decode[PlanAnswerChunk](env.Data)
	case KindPlanFinished:
		p, err = decode[PlanFinished](env.Data)
	case KindOutlineChunk:
		p, err = decode[OutlineChunk](env.Data)
	case KindOutlineFinished:
		p, err = decode[OutlineFinished](env.Data)
	case KindSourcesFinal:
		p, err = decode[SourcesFinal](env.Data)
	case KindResponseChunk:
		p, err = decode[ResponseChunk](env.Data)
	case KindResponseFinished:
		p, err = decode[ResponseFinished](env.Data)
	case KindError:
		p, err = decode[Error](env.Data)
	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", env.Type, err)
	}
	e.Data = p
	return nil
}

func decode[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

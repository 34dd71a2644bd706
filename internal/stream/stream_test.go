package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mohammad-safakhou/mindsearch/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	events []Event
	onSend func(Event)
	err    error
}

func (r *recorder) Send(ev Event) error {
	r.events = append(r.events, ev)
	if r.onSend != nil {
		r.onSend(ev)
	}
	return r.err
}

func TestForwardPreservesOrder(t *testing.T) {
	s := New(2)
	go func() {
		defer s.Close()
		ctx := context.Background()
		s.Emit(ctx, PlanAnswerChunk{PlanName: "p", Chunk: "a"})
		s.Emit(ctx, PlanAnswerChunk{PlanName: "p", Chunk: "b"})
		s.Emit(ctx, PlanFinished{PlanName: "p", Answer: "ab", Status: "finished"})
		s.Emit(ctx, ResponseFinished{Response: "done"})
	}()

	rec := &recorder{}
	if err := s.Forward(context.Background(), rec); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if len(rec.events) != 4 {
		t.Fatalf("got %d events", len(rec.events))
	}
	if rec.events[0].Data.(PlanAnswerChunk).Chunk != "a" || rec.events[1].Data.(PlanAnswerChunk).Chunk != "b" {
		t.Fatalf("chunks out of order")
	}
	if rec.events[3].Kind() != KindResponseFinished {
		t.Fatalf("last event %s", rec.events[3].Kind())
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	s := New(8)
	produced := make(chan struct{})
	go func() {
		defer close(produced)
		defer s.Close()
		for i := 0; i < 100; i++ {
			if !s.Emit(context.Background(), ResponseChunk{Chunk: "x"}) {
				return
			}
		}
	}()

	rec := &recorder{}
	rec.onSend = func(Event) {
		if len(rec.events) == 3 {
			s.Cancel()
		}
	}
	err := s.Forward(context.Background(), rec)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if len(rec.events) != 3 {
		t.Fatalf("events delivered after cancel: %d", len(rec.events))
	}
	<-produced
	if s.Emit(context.Background(), ResponseChunk{Chunk: "late"}) {
		t.Fatalf("emit after cancel should be refused")
	}
}

func TestSinkErrorCancels(t *testing.T) {
	s := New(0)
	go func() {
		defer s.Close()
		for s.Emit(context.Background(), OutlineChunk{Chunk: "x"}) {
		}
	}()
	boom := errors.New("socket closed")
	err := s.Forward(context.Background(), &recorder{err: boom})
	if !errors.Is(err, boom) || !s.Cancelled() {
		t.Fatalf("err=%v cancelled=%v", err, s.Cancelled())
	}
}

func TestForwardContextDone(t *testing.T) {
	s := New(0)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		defer s.Close()
		for s.Emit(context.Background(), OutlineChunk{Chunk: "x"}) {
			time.Sleep(time.Millisecond)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Forward(ctx, &recorder{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
	<-stopped
}

func TestEventEnvelope(t *testing.T) {
	ev := Event{Data: SearchResult{PlanName: "p", Results: []models.SearchResult{{Title: "t", URL: "u", Content: "c"}}}}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw["type"]) != `"searchResult"` {
		t.Fatalf("type=%s", raw["type"])
	}
	var back Event
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	sr, ok := back.Data.(SearchResult)
	if !ok || sr.PlanName != "p" || sr.Results[0].URL != "u" {
		t.Fatalf("decoded %+v", back.Data)
	}
	if err := json.Unmarshal([]byte(`{"type":"bogus","data":{}}`), &back); err == nil {
		t.Fatalf("expected unknown type error")
	}
	if !KindError.Terminal() || KindResponseChunk.Terminal() {
		t.Fatalf("terminal kinds wrong")
	}
}

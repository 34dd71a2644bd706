package rank

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/mohammad-safakhou/mindsearch/models"
)

// vecEmbedder returns fixed vectors keyed by text.
type vecEmbedder struct {
	vecs  map[string][]float32
	err   error
	calls int
}

func (v *vecEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = v.vecs[t]
	}
	return out, nil
}

func (v *vecEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.vecs[text], nil
}

func doc(content string) models.Document {
	return models.Document{PageContent: content, Metadata: models.Metadata{URL: "https://" + content}}
}

func angle(deg float64) []float32 {
	r := deg * math.Pi / 180
	return []float32{float32(math.Cos(r)), float32(math.Sin(r))}
}

func fixture() *vecEmbedder {
	return &vecEmbedder{vecs: map[string][]float32{
		"q":    angle(0),
		"near": angle(10),
		"mid":  angle(45),
		"far":  angle(80),
		"opp":  angle(180),
		"mid2": angle(30),
		"mid3": angle(40),
		"mid4": angle(20),
		"mid5": angle(5),
	}}
}

func TestRerankBoundFloorOrder(t *testing.T) {
	r := New(fixture(), Cosine, nil)
	docs := []models.Document{doc("far"), doc("mid"), doc("opp"), doc("near"), doc("mid2"), doc("mid3"), doc("mid4"), doc("mid5")}

	scored, err := r.Score(context.Background(), "q", docs, 5, 0.5)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(scored) != 5 {
		t.Fatalf("expected 5 results, got %d", len(scored))
	}
	for i, s := range scored {
		if s.Score <= 0.5 {
			t.Fatalf("score %f not above floor", s.Score)
		}
		if i > 0 && s.Score > scored[i-1].Score {
			t.Fatalf("not sorted descending at %d", i)
		}
	}
	if scored[0].Doc.PageContent != "mid5" || scored[1].Doc.PageContent != "near" {
		t.Fatalf("unexpected order: %v, %v", scored[0].Doc.PageContent, scored[1].Doc.PageContent)
	}

	all := r.Rerank(context.Background(), "q", docs, Unbounded, 0.5)
	// far (cos 80 ~ 0.17) and opp drop below the floor
	if len(all) != 6 {
		t.Fatalf("expected 6 above floor, got %d", len(all))
	}
}

func TestRerankSentinelAndEmpty(t *testing.T) {
	emb := fixture()
	r := New(emb, Cosine, nil)
	docs := []models.Document{doc("opp"), doc("far"), doc("")}
	got := r.Rerank(context.Background(), SummarizeQuery, docs, 1, 0.99)
	if len(got) != 3 || got[0].PageContent != "opp" || got[2].PageContent != "" {
		t.Fatalf("sentinel must return input unchanged: %+v", got)
	}
	if got := r.Rerank(context.Background(), "q", nil, 5, 0.5); got != nil {
		t.Fatalf("empty input: %+v", got)
	}
	if emb.calls != 0 {
		t.Fatalf("embedder should not be called")
	}
}

func TestRerankSkipsBlankContentAndSwallowsErrors(t *testing.T) {
	r := New(fixture(), Cosine, nil)
	got := r.Rerank(context.Background(), "q", []models.Document{doc("  "), doc("near")}, 0, 0.5)
	if len(got) != 1 || got[0].PageContent != "near" {
		t.Fatalf("got %+v", got)
	}

	failing := New(&vecEmbedder{err: errors.New("quota")}, Cosine, nil)
	if got := failing.Rerank(context.Background(), "q", []models.Document{doc("near")}, 5, 0.5); len(got) != 0 {
		t.Fatalf("embedding failure should yield nothing, got %+v", got)
	}
	if _, err := failing.Score(context.Background(), "q", []models.Document{doc("near")}, 5, 0.5); err == nil {
		t.Fatalf("Score should surface the error")
	}
}

func TestDotMeasure(t *testing.T) {
	emb := &vecEmbedder{vecs: map[string][]float32{"q": {2, 0}, "a": {1, 0}, "b": {0.2, 0}}}
	scored, err := New(emb, Dot, nil).Score(context.Background(), "q", []models.Document{doc("b"), doc("a")}, 0, 0.5)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(scored) != 1 || scored[0].Doc.PageContent != "a" || scored[0].Score != 2 {
		t.Fatalf("got %+v", scored)
	}
}

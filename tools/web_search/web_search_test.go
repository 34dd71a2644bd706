package web_search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/mindsearch/config"
	"github.com/mohammad-safakhou/mindsearch/tools/web_search/brave"
	"github.com/mohammad-safakhou/mindsearch/tools/web_search/models"
	"github.com/mohammad-safakhou/mindsearch/tools/web_search/searxng"
	"github.com/mohammad-safakhou/mindsearch/tools/web_search/serper"
)

func TestSearxNGSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.URL.Query().Get("q") != "paris olympics" || r.URL.Query().Get("language") != "en" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"results":[
			{"title":"A","url":"https://a.com","content":"first","img_src":"https://a.com/i.png"},
			{"title":"B","url":"https://b.com","content":"second"},
			{"title":"C","url":"https://c.com","content":"third"}]}`)
	}))
	defer srv.Close()

	s := searxng.Search{BaseURL: srv.URL + "/"}
	res, err := s.Search(context.Background(), "paris olympics", models.Options{MaxResults: 2, Language: "en"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 || res[0].ImageSrc != "https://a.com/i.png" || res[1].Content != "second" {
		t.Fatalf("unexpected results: %+v", res)
	}
}

func TestBraveAndSerperMapping(t *testing.T) {
	braveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "bk" {
			t.Errorf("missing brave token")
		}
		fmt.Fprint(w, `{"web":{"results":[{"title":"T","url":"https://t.com","description":"d"}]}}`)
	}))
	defer braveSrv.Close()
	serperSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "sk" || r.Method != http.MethodPost {
			t.Errorf("unexpected serper request")
		}
		fmt.Fprint(w, `{"organic":[{"title":"S","link":"https://s.com","snippet":"snip"}]}`)
	}))
	defer serperSrv.Close()

	b, err := brave.Search{ApiKey: "bk", Endpoint: braveSrv.URL}.Search(context.Background(), "q", models.Options{})
	if err != nil || len(b) != 1 || b[0].Content != "d" {
		t.Fatalf("brave: %+v %v", b, err)
	}
	s, err := serper.Search{ApiKey: "sk", Endpoint: serperSrv.URL}.Search(context.Background(), "q", models.Options{})
	if err != nil || len(s) != 1 || s[0].URL != "https://s.com" {
		t.Fatalf("serper: %+v %v", s, err)
	}
}

type stubSearcher struct {
	results []models.Result
	err     error
	opts    models.Options
}

func (s *stubSearcher) Search(_ context.Context, _ string, opts models.Options) ([]models.Result, error) {
	s.opts = opts
	return s.results, s.err
}

func TestWrapSanitisesAndAppliesDefaults(t *testing.T) {
	stub := &stubSearcher{results: []models.Result{
		{Title: "<b>Opening</b>", URL: "https://x.com", Content: "The &quot;ceremony&quot;"},
		{Title: "no url"},
	}}
	w := Wrap(stub, 0, models.Options{MaxResults: 7, Language: "fr"})
	res, err := w.Search(context.Background(), " ceremony ", models.Options{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].Title != "Opening" || res[0].Content != `The "ceremony"` {
		t.Fatalf("not sanitised: %+v", res)
	}
	if stub.opts.MaxResults != 7 || stub.opts.Language != "fr" {
		t.Fatalf("defaults not applied: %+v", stub.opts)
	}
	if _, err := w.Search(context.Background(), "  ", models.Options{}); err == nil {
		t.Fatalf("expected empty keyword error")
	}
}

func TestWrapRateLimitHonoursContext(t *testing.T) {
	w := Wrap(&stubSearcher{}, 0.001, models.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := w.Search(ctx, "a", models.Options{}); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}
	cancel()
	if _, err := w.Search(ctx, "b", models.Options{}); err == nil {
		t.Fatalf("expected limiter wait to fail on cancelled context")
	}
}

func TestNewWebSearcherUnsupported(t *testing.T) {
	_, err := NewWebSearcher(config.SearchConfig{Provider: "altavista"})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("err=%v", err)
	}
}

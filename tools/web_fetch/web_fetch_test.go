package web_fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mohammad-safakhou/mindsearch/tools/web_fetch/models"
)

func TestSplitterRespectsChunkSize(t *testing.T) {
	s := NewSplitter(WithChunkSize(50), WithOverlap(10))
	text := strings.Repeat("alpha beta gamma delta ", 20)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 50 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
	// consecutive chunks share their boundary words
	first := strings.Fields(chunks[0])
	if !strings.Contains(chunks[1], first[len(first)-1]) {
		t.Fatalf("no overlap between %q and %q", chunks[0], chunks[1])
	}
}

func TestSplitterParagraphs(t *testing.T) {
	s := NewSplitter(WithChunkSize(30), WithOverlap(0))
	chunks := s.Split("first paragraph here\n\nsecond paragraph here")
	if len(chunks) != 2 || chunks[0] != "first paragraph here" || chunks[1] != "second paragraph here" {
		t.Fatalf("chunks=%q", chunks)
	}
	if got := s.Split("   "); got != nil {
		t.Fatalf("blank input should give no chunks, got %q", got)
	}
}

func TestSplitterHardSplitsLongWord(t *testing.T) {
	s := NewSplitter(WithChunkSize(10), WithOverlap(0))
	chunks := s.Split(strings.Repeat("x", 35))
	if len(chunks) != 4 {
		t.Fatalf("chunks=%q", chunks)
	}
}

func TestIsPDF(t *testing.T) {
	cases := map[string]bool{
		"application/pdf":                 true,
		"Application/PDF; charset=binary": true,
		"text/html; charset=utf-8":        false,
		"":                                false,
	}
	for ct, want := range cases {
		if got := IsPDF(ct); got != want {
			t.Fatalf("IsPDF(%q)=%v", ct, got)
		}
	}
}

func TestExtractHTML(t *testing.T) {
	page := &models.Page{
		URL:         "https://example.com/a",
		ContentType: "text/html",
		Body: []byte(`<html><head><title> Olympic  Games </title><style>p{}</style></head>
<body><script>var x = 1;</script><p>The opening ceremony was held on the Seine.</p></body></html>`),
	}
	title, text, err := Extract(page)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if title != "Olympic  Games" && title != "Olympic Games" {
		t.Fatalf("title=%q", title)
	}
	if !strings.Contains(text, "opening ceremony") || strings.Contains(text, "var x") {
		t.Fatalf("text=%q", text)
	}
}

func TestExtractUntitledAndEmpty(t *testing.T) {
	title, _, err := Extract(&models.Page{URL: "https://x.com", Body: []byte("<p>hello world</p>")})
	if err != nil || title != "https://x.com" {
		t.Fatalf("title=%q err=%v", title, err)
	}
	_, _, err = Extract(&models.Page{URL: "https://x.com", Body: []byte("<script>only()</script>")})
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestStoreFetchAndExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><head><title>Ok</title></head><body><p>"+strings.Repeat("word ", 60)+"</p></body></html>")
		case "/second":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><head><title>Second</title></head><body><p>short text</p></body></html>")
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store := NewStore(HTTPFetcher{Client: srv.Client()}, NewSplitter(WithChunkSize(100), WithOverlap(20)))
	docs := store.FetchAndExtract(context.Background(), []string{srv.URL + "/ok", srv.URL + "/missing", srv.URL + "/second"})
	if len(docs) < 3 {
		t.Fatalf("expected chunked docs from two pages, got %d", len(docs))
	}
	for _, d := range docs {
		if strings.HasSuffix(d.Metadata.URL, "/missing") {
			t.Fatalf("failed url should be dropped")
		}
	}
	last := docs[len(docs)-1]
	if last.Metadata.Title != "Second" || last.PageContent != "short text" {
		t.Fatalf("docs out of link order: %+v", last)
	}
	if docs[0].Metadata.Title != "Ok" || docs[0].Metadata.URL != srv.URL+"/ok" {
		t.Fatalf("unexpected first doc %+v", docs[0])
	}
}

type stubFetcher struct{ page *models.Page }

func (s stubFetcher) Fetch(_ context.Context, url string) (*models.Page, error) {
	p := *s.page
	p.URL = url
	return &p, nil
}

type failingRenderer struct{ calls *int }

func (f failingRenderer) Render(context.Context, string) (*models.Page, error) {
	*f.calls++
	return nil, errors.New("no browser")
}

func TestRenderingFetcherFallsBackAndSkipsPDF(t *testing.T) {
	calls := 0
	html := RenderingFetcher{
		HTTP:     stubFetcher{page: &models.Page{ContentType: "text/html", Body: []byte("<p>raw</p>")}},
		Renderer: failingRenderer{calls: &calls},
	}
	page, err := html.Fetch(context.Background(), "https://x.com")
	if err != nil || string(page.Body) != "<p>raw</p>" || calls != 1 {
		t.Fatalf("page=%+v err=%v calls=%d", page, err, calls)
	}

	pdf := RenderingFetcher{
		HTTP:     stubFetcher{page: &models.Page{ContentType: "application/pdf", Body: []byte("%PDF")}},
		Renderer: failingRenderer{calls: &calls},
	}
	if _, err := pdf.Fetch(context.Background(), "https://x.com/a.pdf"); err != nil || calls != 1 {
		t.Fatalf("pdf should skip rendering: err=%v calls=%d", err, calls)
	}
}

func TestStoreAddsScheme(t *testing.T) {
	var seen string
	store := NewStore(fetchFunc(func(_ context.Context, url string) (*models.Page, error) {
		seen = url
		return &models.Page{URL: url, ContentType: "text/html", Body: []byte("<p>content</p>")}, nil
	}), nil)
	docs := store.FetchAndExtract(context.Background(), []string{"example.com/page"})
	if seen != "https://example.com/page" || len(docs) != 1 || docs[0].Metadata.URL != seen {
		t.Fatalf("seen=%q docs=%+v", seen, docs)
	}
}

type fetchFunc func(ctx context.Context, url string) (*models.Page, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) (*models.Page, error) { return f(ctx, url) }

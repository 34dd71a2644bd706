package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/mindsearch/tools/web_search/models"
)

// Search queries a SearxNG instance through its JSON API.
type Search struct {
	BaseURL string
	Client  *http.Client
}

type response struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		ImgSrc  string `json:"img_src"`
	} `json:"results"`
}

func (s Search) Search(ctx context.Context, q string, opts models.Options) ([]models.Result, error) {
	u, err := url.Parse(strings.TrimRight(s.BaseURL, "/") + "/search")
	if err != nil {
		return nil, fmt.Errorf("searxng url: %w", err)
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("searxng returned %d: %s", resp.StatusCode, string(b))
	}

	var raw response
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("searxng decode: %w", err)
	}
	out := make([]models.Result, 0, len(raw.Results))
	for _, r := range raw.Results {
		if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Content: r.Content, ImageSrc: r.ImgSrc})
	}
	return out, nil
}

package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mohammad-safakhou/mindsearch/tools/web_search/models"
)

const endpoint = "https://api.search.brave.com/res/v1/web/search"

type Search struct {
	ApiKey   string
	Client   *http.Client
	Endpoint string
}

func (s Search) Search(ctx context.Context, q string, opts models.Options) ([]models.Result, error) {
	// https://api.search.brave.com/app/documentation/web-search
	params := url.Values{}
	params.Set("q", q)
	if opts.MaxResults > 0 {
		params.Set("count", strconv.Itoa(opts.MaxResults))
	}
	if opts.Language != "" {
		params.Set("search_lang", opts.Language)
	}
	base := s.Endpoint
	if base == "" {
		base = endpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.ApiKey)

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
		return nil, fmt.Errorf("brave returned %d: %s", resp.StatusCode, string(b))
	}
	var raw struct {
		Web struct {
			Results []struct {
				Title     string `json:"title"`
				URL       string `json:"url"`
				Snippet   string `json:"description"`
				Thumbnail struct {
					Src string `json:"src"`
				} `json:"thumbnail"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var out []models.Result
	for _, r := range raw.Web.Results {
		if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Content: r.Snippet, ImageSrc: r.Thumbnail.Src})
	}
	return out, nil
}

package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mohammad-safakhou/mindsearch/tools/web_search/models"
)

const endpoint = "https://google.serper.dev/search"

type Search struct {
	ApiKey   string
	Client   *http.Client
	Endpoint string
}

func (s Search) Search(ctx context.Context, q string, opts models.Options) ([]models.Result, error) {
	// https://serper.dev/ docs
	payload := map[string]any{"q": q}
	if opts.MaxResults > 0 {
		payload["num"] = opts.MaxResults
	}
	if opts.Language != "" {
		payload["hl"] = opts.Language
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	base := s.Endpoint
	if base == "" {
		base = endpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.ApiKey)
	req.Header.Set("Content-Type", "application/json")

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
		return nil, fmt.Errorf("serper returned %d: %s", resp.StatusCode, string(b))
	}
	var raw struct {
		Organic []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			ImageURL string `json:"imageUrl"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var out []models.Result
	for _, r := range raw.Organic {
		if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.Link, Content: r.Snippet, ImageSrc: r.ImageURL})
	}
	return out, nil
}

package chromedp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/mohammad-safakhou/mindsearch/tools/web_fetch/models"
)

// Renderer loads a page in headless Chrome so script-built content is present
// in the returned HTML.
type Renderer struct {
	Timeout   time.Duration
	UserAgent string
}

func (r Renderer) Render(ctx context.Context, url string) (*models.Page, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("invalid url")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	t0 := time.Now()

	html, err := r.fetchHTML(ctx, url)
	if err != nil {
		return nil, err
	}
	return &models.Page{
		URL:         url,
		ContentType: "text/html; charset=utf-8",
		Status:      200,
		Body:        []byte(html),
		RenderMS:    int(time.Since(t0) / time.Millisecond),
	}, nil
}

func (r Renderer) fetchHTML(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
	)
	if r.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.UserAgent))
	}
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

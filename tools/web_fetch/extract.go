package web_fetch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/mohammad-safakhou/mindsearch/internal/helpers"
	"github.com/mohammad-safakhou/mindsearch/tools/web_fetch/models"
)

// PDFTitle is the title given to every PDF document.
const PDFTitle = "PDF Document"

var ErrEmptyContent = errors.New("no text extracted")

// IsPDF reports whether the content type names a PDF, ignoring parameters.
func IsPDF(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.EqualFold(mt, "application/pdf")
}

// Extract turns a fetched page into a title and whitespace-collapsed text.
func Extract(page *models.Page) (title, text string, err error) {
	if IsPDF(page.ContentType) {
		text, err = extractPDF(page.Body)
		if err != nil {
			return "", "", err
		}
		title = PDFTitle
	} else {
		title, text = extractHTML(page.Body, page.URL)
	}
	text = helpers.CollapseWhitespace(text)
	if text == "" {
		return "", "", ErrEmptyContent
	}
	return title, text, nil
}

func extractPDF(body []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(b), nil
}

// extractHTML prefers readability's main-content text and falls back to a full
// DOM text walk when readability finds nothing.
func extractHTML(body []byte, link string) (string, string) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return link, string(body)
	}
	title := strings.TrimSpace(findTitle(doc))
	if title == "" {
		title = link
	}

	u, _ := url.Parse(link)
	if u == nil {
		u = &url.URL{}
	}
	if article, err := readability.FromReader(bytes.NewReader(body), u); err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return title, text
		}
	}

	var sb strings.Builder
	walkText(doc, &sb)
	return title, sb.String()
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return sb.String()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

var skipElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "head": true,
	"svg": true, "iframe": true, "template": true,
}

// walkText collects visible text; link targets are ignored, link text kept.
func walkText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && skipElements[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, sb)
	}
}

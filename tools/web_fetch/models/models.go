package models

// Page is the raw response of a fetch.
type Page struct {
	URL         string
	ContentType string
	Status      int
	Body        []byte
	RenderMS    int
}

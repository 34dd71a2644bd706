package models

// Result is one raw search hit.
type Result struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Content  string `json:"content"`
	ImageSrc string `json:"img_src,omitempty"`
}

// Options narrows a single search call.
type Options struct {
	MaxResults int
	Language   string
}

package pipeline

import "github.com/mohammad-safakhou/mindsearch/models"

// DefaultGroupCap is the number of chunks after which a group is sealed.
const DefaultGroupCap = 10

// GroupDocuments merges chunks of the same URL into groups of at most limit
// chunks, joined by a blank line. Metadata.TotalDocs counts the chunks in a
// group; once it reaches limit the next chunk for that URL opens a new group.
// Groups keep the order of their first chunk.
func GroupDocuments(docs []models.Document, limit int) []models.Document {
	if limit <= 0 {
		limit = DefaultGroupCap
	}
	var groups []models.Document
	open := make(map[string]int)
	for _, d := range docs {
		url := d.Metadata.URL
		if i, ok := open[url]; ok {
			g := &groups[i]
			g.PageContent += "\n\n" + d.PageContent
			g.Metadata.TotalDocs++
			if g.Metadata.TotalDocs >= limit {
				delete(open, url)
			}
			continue
		}
		g := d
		g.Metadata.TotalDocs = 1
		groups = append(groups, g)
		if limit > 1 {
			open[url] = len(groups) - 1
		}
	}
	return groups
}

package web_fetch

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter recursively splits text on a list of separators, coarsest first,
// and merges the pieces back into chunks of at most chunkSize characters that
// overlap by up to overlap characters. Lengths are counted in runes.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// SplitterOption configures the Splitter.
type SplitterOption func(*Splitter)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) SplitterOption {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) SplitterOption {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

func NewSplitter(opts ...SplitterOption) *Splitter {
	s := &Splitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: defaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

// Split returns the chunks of text. Empty input yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range strings.Split(text, separator) {
		if piece == "" {
			continue
		}
		if utf8.RuneCountInString(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good, separator)...)
	}
	return final
}

// merge packs pieces into chunks, keeping a tail of the previous chunk as overlap.
func (s *Splitter) merge(pieces []string, separator string) []string {
	sepLen := utf8.RuneCountInString(separator)
	var (
		docs    []string
		current []string
		total   int
	)
	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n+joinLen() > s.chunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+n+joinLen() > s.chunkSize && total > 0) {
				drop := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}
	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

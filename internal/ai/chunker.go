package ai

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	disallowedRe = regexp.MustCompile(`[^\w\s.,?!:;\-()]`)
	defaultSeps  = []string{"\n\n", "\n", ". ", " ", ""}
)

// TextChunker splits text into overlapping chunks, preferring paragraph,
// line, sentence and word boundaries in that order. Sizes count runes.
type TextChunker struct {
	size       int
	overlap    int
	separators []string
}

func NewTextChunker(size, overlap int) (*TextChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d)", size)
	}
	return &TextChunker{size: size, overlap: overlap, separators: defaultSeps}, nil
}

// Chunk returns no chunks for empty or whitespace-only input.
func (c *TextChunker) Chunk(raw string) []string {
	text := NormalizeText(raw)
	if text == "" {
		return nil
	}
	return c.split(text, c.separators)
}

func NormalizeText(raw string) string {
	text := whitespaceRe.ReplaceAllString(raw, " ")
	text = disallowedRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func (c *TextChunker) split(text string, separators []string) []string {
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

	var (
		final []string
		good  []string
	)
	for _, piece := range splitKeepSeparator(text, separator) {
		if utf8.RuneCountInString(piece) < c.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
			continue
		}
		final = append(final, c.split(piece, rest)...)
	}
	if len(good) > 0 {
		final = append(final, c.merge(good)...)
	}
	return final
}

// merge packs small pieces into chunks up to size, carrying trailing pieces
// totalling at most overlap runes into the next chunk.
func (c *TextChunker) merge(pieces []string) []string {
	var (
		docs  []string
		cur   []string
		total int
	)
	for _, piece := range pieces {
		l := utf8.RuneCountInString(piece)
		if total+l > c.size && len(cur) > 0 {
			if doc := strings.TrimSpace(strings.Join(cur, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > c.overlap || (total+l > c.size && total > 0) {
				total -= utf8.RuneCountInString(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, piece)
		total += l
	}
	if doc := strings.TrimSpace(strings.Join(cur, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepSeparator cuts text before every occurrence of sep, so each piece
// after the first starts with sep. An empty sep splits into runes.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i > 0 {
			part = sep + part
		}
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

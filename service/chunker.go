package service

import (
	"fmt"
	"strings"

	"github.com/lawyeralthomali/legatoo-backend-sub004/models"

	"github.com/google/uuid"
)

const (
	// DefaultChunkSize is the target chunk size in runes
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the shared region between consecutive chunks
	DefaultChunkOverlap = 100
)

// Chunker splits text into overlapping windows sized for embedding. It
// attempts the largest separator (paragraph break, then sentence break,
// then raw rune boundary) that still respects MaxSize, and prefixes each
// chunk after the first with the trailing Overlap runes of its predecessor.
type Chunker struct {
	MaxSize int
	Overlap int
}

// NewChunker returns a chunker with the default window and overlap
func NewChunker() *Chunker {
	return &Chunker{MaxSize: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

// Split cuts text into ordered chunks. The concatenation of the new-content
// portion of every chunk equals the input exactly, so JoinChunks can
// reconstruct it.
func (c *Chunker) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ChunkingError{Reason: "input text is empty"}
	}
	maxSize := c.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	overlap := c.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize / 10
	}

	units := splitUnits(text, maxSize)

	var (
		chunks []string
		body   strings.Builder
		bodyN  int
		prefix string
	)
	flush := func() {
		if bodyN == 0 {
			return
		}
		chunk := prefix + body.String()
		chunks = append(chunks, chunk)
		prefix = lastRunes(chunk, overlap)
		body.Reset()
		bodyN = 0
	}
	for _, u := range units {
		n := len([]rune(u))
		if bodyN > 0 && bodyN+n > maxSize {
			flush()
		}
		body.WriteString(u)
		bodyN += n
	}
	flush()
	return chunks, nil
}

// JoinChunks reverses Split: it trims the known overlap from each chunk
// after the first and concatenates the remainders
func JoinChunks(chunks []string, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			b.WriteString(ch)
			continue
		}
		trim := overlap
		if prev := len([]rune(chunks[i-1])); prev < trim {
			trim = prev
		}
		runes := []rune(ch)
		if trim > len(runes) {
			trim = len(runes)
		}
		b.WriteString(string(runes[trim:]))
	}
	return b.String()
}

// ChunkArticles walks a law source tree in traversal order and produces
// knowledge chunks with citation back-references. chunk_index is contiguous
// from 0 within each article.
func (c *Chunker) ChunkArticles(source *models.LawSource) ([]models.KnowledgeChunk, error) {
	var out []models.KnowledgeChunk

	addArticle := func(article models.LawArticle, section string) error {
		pieces, err := c.Split(article.Content)
		if err != nil {
			return fmt.Errorf("article %s: %w", article.ArticleNumber, err)
		}
		for i, piece := range pieces {
			num := article.ArticleNumber
			ref := source.Name + " — " + "المادة " + num
			chunk := models.KnowledgeChunk{
				ID:            uuid.New(),
				DocumentID:    source.DocumentID,
				LawSourceID:   &source.ID,
				ChunkIndex:    i,
				Content:       piece,
				ArticleNumber: &num,
				Keywords:      article.Keywords,
			}
			if section != "" {
				s := section
				chunk.SectionTitle = &s
			}
			chunk.SourceReference = &ref
			out = append(out, chunk)
		}
		return nil
	}

	for _, branch := range source.Branches {
		for _, chapter := range branch.Chapters {
			section := branch.BranchName + " / " + chapter.ChapterName
			for _, article := range chapter.Articles {
				if err := addArticle(article, section); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, article := range source.Articles {
		if err := addArticle(article, ""); err != nil {
			return nil, err
		}
	}

	if len(out) == 0 {
		return nil, &ChunkingError{Reason: "law source has no article content to chunk"}
	}
	return out, nil
}

// splitUnits cuts text into atomic units no longer than maxSize runes whose
// concatenation equals the input. Paragraph breaks are tried first, then
// sentence enders, then raw rune slices.
func splitUnits(text string, maxSize int) []string {
	var units []string
	for _, para := range strings.SplitAfter(text, "\n\n") {
		if para == "" {
			continue
		}
		if len([]rune(para)) <= maxSize {
			units = append(units, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if len([]rune(sent)) <= maxSize {
				units = append(units, sent)
				continue
			}
			runes := []rune(sent)
			for len(runes) > 0 {
				n := maxSize
				if n > len(runes) {
					n = len(runes)
				}
				units = append(units, string(runes[:n]))
				runes = runes[n:]
			}
		}
	}
	return units
}

// splitSentences splits after sentence-ending punctuation, keeping the
// punctuation with the preceding sentence. Covers the Arabic question mark
// and full stop alongside Latin enders.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i, r := range runes {
		switch r {
		case '.', '!', '?', '؟', '۔', '؛', '\n':
			out = append(out, string(runes[start:i+1]))
			start = i + 1
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func lastRunes(s string, n int) string {
	runes := []rune(s)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[len(runes)-n:])
}

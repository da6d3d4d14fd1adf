package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"regexp"
	"strings"

	"github.com/lawyeralthomali/legatoo-backend-sub004/models"

	"github.com/google/generative-ai-go/genai"
)

// Candidate is a vector-search hit hydrated with its chunk, ready for
// second-pass scoring
type Candidate struct {
	Chunk       models.KnowledgeChunk
	VectorScore float64
	VectorRank  int
}

// Reranker scores (query, candidate-text) pairs jointly. It captures
// lexical and semantic interactions the embedding distance discards, so it
// reorders candidates rather than just filtering them.
type Reranker interface {
	// Rerank returns one relevance score per candidate, aligned with input
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error)
}

const (
	lexicalWeight = 0.6
	vectorWeight  = 0.4
)

// LexicalReranker blends token-overlap similarity with the vector score.
// It is deterministic and needs no external service, so it is the default.
type LexicalReranker struct{}

func NewLexicalReranker() *LexicalReranker { return &LexicalReranker{} }

var wordRe = regexp.MustCompile(`\p{L}+|\p{N}+`)

func (r *LexicalReranker) Rerank(_ context.Context, query string, candidates []Candidate) ([]float64, error) {
	qset := tokenSet(query)
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = lexicalWeight*ochiai(qset, c.Chunk.Content) + vectorWeight*c.VectorScore
	}
	return scores, nil
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// ochiai is |A∩B| / sqrt(|A||B|) over token sets
func ochiai(qset map[string]struct{}, text string) float64 {
	tset := tokenSet(text)
	if len(qset) == 0 || len(tset) == 0 {
		return 0
	}
	inter := 0
	for t := range tset {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / (math.Sqrt(float64(len(qset))) * math.Sqrt(float64(len(tset))))
}

// GeminiReranker asks an LLM for pairwise relevance scores. Any failure
// falls back to the lexical scorer so retrieval never breaks on an
// upstream outage.
type GeminiReranker struct {
	client   *genai.Client
	model    string
	fallback *LexicalReranker
}

// NewGeminiReranker creates a reranker over an existing Gemini client
func NewGeminiReranker(client *genai.Client) *GeminiReranker {
	return &GeminiReranker{
		client:   client,
		model:    "gemini-2.0-flash",
		fallback: NewLexicalReranker(),
	}
}

func (r *GeminiReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	scores, err := r.score(ctx, query, candidates)
	if err != nil {
		log.Printf("gemini rerank failed, falling back to lexical scoring: %v", err)
		return r.fallback.Rerank(ctx, query, candidates)
	}
	return scores, nil
}

func (r *GeminiReranker) score(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	var sb strings.Builder
	sb.WriteString("أنت نظام ترتيب نتائج بحث قانوني. قيّم صلة كل مقطع بالاستعلام.\n")
	sb.WriteString(fmt.Sprintf("QUERY: %s\n\n", query))
	for i, c := range candidates {
		text := c.Chunk.Content
		if runes := []rune(text); len(runes) > 1500 {
			text = string(runes[:1500])
		}
		sb.WriteString(fmt.Sprintf("PASSAGE %d:\n%s\n\n", i, text))
	}
	sb.WriteString(fmt.Sprintf(
		"Return ONLY a JSON array of %d numbers between 0 and 1, one relevance score per passage, in passage order. No markdown, no explanations.",
		len(candidates)))

	model := r.client.GenerativeModel(r.model)
	model.SetTemperature(0)
	resp, err := model.GenerateContent(ctx, genai.Text(sb.String()))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	scores, err := parseScoreArray(text.String(), len(candidates))
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// parseScoreArray extracts a JSON number array from a model response that
// may be wrapped in markdown fences
func parseScoreArray(response string, want int) ([]float64, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("no JSON array in rerank response")
	}
	var scores []float64
	if err := json.Unmarshal([]byte(response[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("failed to parse rerank scores: %w", err)
	}
	if len(scores) != want {
		return nil, fmt.Errorf("got %d rerank scores for %d candidates", len(scores), want)
	}
	for i, s := range scores {
		if s < 0 {
			scores[i] = 0
		}
		if s > 1 {
			scores[i] = 1
		}
	}
	return scores, nil
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"
)

const (
	embeddingModel    = "models/gemini-embedding-001"
	embeddingAPI      = "https://generativelanguage.googleapis.com/v1beta/models/gemini-embedding-001:embedContent"
	batchEmbeddingAPI = "https://generativelanguage.googleapis.com/v1beta/models/gemini-embedding-001:batchEmbedContents"
	embeddingDims     = 768
	embeddingBatchMax = 100
	embedRetries      = 3
)

// Embedder turns text into fixed-dimensionality vectors. Vectors are
// L2-normalized so cosine similarity reduces to a dot product.
type Embedder interface {
	// EmbedDocuments embeds a batch of texts. The returned slice is aligned
	// with the input; an entry is nil when that text could not be embedded
	// after bounded retries.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}

// GeminiEmbedder calls the Gemini embedding API
type GeminiEmbedder struct {
	apiKey string
	client *http.Client
}

// NewGeminiEmbedder creates an embedder backed by gemini-embedding-001
func NewGeminiEmbedder(apiKey string) *GeminiEmbedder {
	return &GeminiEmbedder{
		apiKey: apiKey,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (e *GeminiEmbedder) Dimension() int { return embeddingDims }

type embedRequest struct {
	Model                string       `json:"model"`
	Content              contentInput `json:"content"`
	TaskType             string       `json:"task_type,omitempty"`
	OutputDimensionality int          `json:"output_dimensionality,omitempty"`
}

type contentInput struct {
	Parts []partInput `json:"parts"`
}

type partInput struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

type batchEmbedRequest struct {
	Requests []embedRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

// EmbedDocuments embeds texts in batches of up to 100. When a whole batch
// fails it falls back to per-item calls with bounded retries; items that
// still fail are returned as nil so the caller can skip them.
func (e *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for start := 0; start < len(texts); start += embeddingBatchMax {
		end := start + embeddingBatchMax
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		values, err := e.embedBatch(ctx, batch, "RETRIEVAL_DOCUMENT")
		if err != nil {
			log.Printf("batch embedding failed, retrying items singly: %v", err)
			for i, text := range batch {
				vec, itemErr := e.embedWithRetry(ctx, text, "RETRIEVAL_DOCUMENT")
				if itemErr != nil {
					log.Printf("embedding failed for item %d after %d attempts: %v", start+i, embedRetries, itemErr)
					continue
				}
				vectors[start+i] = vec
			}
			continue
		}
		for i, v := range values {
			vectors[start+i] = v
		}
		if end < len(texts) {
			time.Sleep(100 * time.Millisecond)
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return vectors, nil
}

// EmbedQuery embeds a search query with the query task type
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return e.embedWithRetry(ctx, text, "RETRIEVAL_QUERY")
}

func (e *GeminiEmbedder) embedWithRetry(ctx context.Context, text, taskType string) ([]float64, error) {
	var lastErr error
	for attempt := 0; attempt < embedRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		vec, err := e.embedOne(ctx, text, taskType)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}
	return nil, lastErr
}

func (e *GeminiEmbedder) embedOne(ctx context.Context, text, taskType string) ([]float64, error) {
	reqBody := embedRequest{
		Model:                embeddingModel,
		Content:              contentInput{Parts: []partInput{{Text: text}}},
		TaskType:             taskType,
		OutputDimensionality: embeddingDims,
	}
	var resp embedResponse
	if err := e.post(ctx, embeddingAPI, reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	NormalizeVector(resp.Embedding.Values)
	return resp.Embedding.Values, nil
}

func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string, taskType string) ([][]float64, error) {
	reqBody := batchEmbedRequest{Requests: make([]embedRequest, len(texts))}
	for i, text := range texts {
		reqBody.Requests[i] = embedRequest{
			Model:                embeddingModel,
			Content:              contentInput{Parts: []partInput{{Text: text}}},
			TaskType:             taskType,
			OutputDimensionality: embeddingDims,
		}
	}
	var resp batchEmbedResponse
	if err := e.post(ctx, batchEmbeddingAPI, reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float64, len(texts))
	for i := range resp.Embeddings {
		if len(resp.Embeddings[i].Values) == 0 {
			return nil, fmt.Errorf("item %d has empty embedding", i)
		}
		NormalizeVector(resp.Embeddings[i].Values)
		out[i] = resp.Embeddings[i].Values
	}
	return out, nil
}

func (e *GeminiEmbedder) post(ctx context.Context, url string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("embedding API error: %d - %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// NormalizeVector scales a vector to unit L2 norm in place
func NormalizeVector(vec []float64) {
	var sumSq float64
	for _, v := range vec {
		sumSq += v * v
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range vec {
		vec[i] /= norm
	}
}

// Package qdrant implements the evidence store over Qdrant's HTTP API. Three
// collections are involved: the paragraph search corpus, the symptom-index
// corpus, and the canonical corpus keyed by guideline rule id. Collections
// are populated by the offline ingestion pipeline; this client only reads.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
	"github.com/clinassist/ng12-assistant/internal/infrastructure/resilience"
)

// Embedder turns query text into the vector the collections were indexed with.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Store struct {
	baseURL             string
	searchCollection    string
	symptomCollection   string
	canonicalCollection string
	embedder            Embedder
	httpClient          *http.Client
	executor            *resilience.Executor
}

func NewStore(baseURL, searchCollection, symptomCollection, canonicalCollection string, embedder Embedder, executor *resilience.Executor) *Store {
	return &Store{
		baseURL:             strings.TrimRight(baseURL, "/"),
		searchCollection:    searchCollection,
		symptomCollection:   symptomCollection,
		canonicalCollection: canonicalCollection,
		embedder:            embedder,
		httpClient:          &http.Client{Timeout: 60 * time.Second},
		executor:            executor,
	}
}

// Query embeds the text once and searches both retrieval corpora with it.
// Result sets are concatenated as-is: the corpora are disjoint and ordering
// is the reranker's job.
func (s *Store) Query(ctx context.Context, text string, fetchK int) ([]domain.Candidate, error) {
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates := make([]domain.Candidate, 0, fetchK*2)
	for _, collection := range []string{s.searchCollection, s.symptomCollection} {
		batch, err := s.search(ctx, collection, vector, fetchK)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, batch...)
	}
	return candidates, nil
}

// GetCanonical looks up the canonical chunk whose payload carries the given
// rule id. A miss returns (nil, nil); only transport failures error.
func (s *Store) GetCanonical(ctx context.Context, ruleID string) (*domain.Chunk, error) {
	reqBody := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key": "rule_id",
					"match": map[string]any{
						"value": ruleID,
					},
				},
			},
		},
		"limit":        1,
		"with_payload": true,
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/scroll", s.canonicalCollection)
	if err := s.postJSON(ctx, "qdrant.scroll", path, reqBody, &scrollResp); err != nil {
		return nil, err
	}
	if len(scrollResp.Result.Points) == 0 {
		return nil, nil
	}

	chunk := chunkFromPayload(scrollResp.Result.Points[0].Payload)
	return &chunk, nil
}

func (s *Store) search(ctx context.Context, collection string, vector []float32, limit int) ([]domain.Candidate, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", collection)
	if err := s.postJSON(ctx, "qdrant.search", path, reqBody, &searchResp); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.Candidate{
			Chunk: chunkFromPayload(r.Payload),
			Score: r.Score,
		})
	}
	return out, nil
}

func (s *Store) postJSON(ctx context.Context, operation, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	fn := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &statusError{
				operation:  operation,
				statusCode: resp.StatusCode,
				status:     resp.Status,
				body:       string(raw),
			}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}

	if s.executor == nil {
		return fn(ctx)
	}
	return s.executor.Execute(ctx, operation, fn, classifyQdrantError)
}

func chunkFromPayload(payload map[string]any) domain.Chunk {
	return domain.Chunk{
		ID:      getString(payload, "chunk_id"),
		DocType: domain.DocType(getString(payload, "doc_type")),
		Text:    getString(payload, "text"),
		Metadata: domain.ChunkMetadata{
			ChunkID:           getString(payload, "chunk_id"),
			Section:           getString(payload, "section"),
			Page:              getInt(payload, "page"),
			PageEnd:           getInt(payload, "page_end"),
			CancerType:        getString(payload, "cancer_type"),
			ActionType:        getString(payload, "action_type"),
			AgeMin:            getIntPtr(payload, "age_min"),
			AgeMax:            getIntPtr(payload, "age_max"),
			SymptomKeywords:   getStringSlice(payload, "symptom_keywords"),
			RiskFactorSmoking: getBool(payload, "risk_factor_smoking"),
			Urgency:           getString(payload, "urgency"),
			GenderSpecific:    getString(payload, "gender_specific"),
			System:            getString(payload, "system"),
			SubTitle:          getString(payload, "sub_title"),
			Symptom:           getString(payload, "symptom"),
			PossibleCancer:    getString(payload, "possible_cancer"),
			References:        getStringSlice(payload, "references"),
			RuleID:            getString(payload, "rule_id"),
		},
	}
}

func getString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getInt(payload map[string]any, key string) int {
	if f, ok := payload[key].(float64); ok {
		return int(f)
	}
	return 0
}

func getIntPtr(payload map[string]any, key string) *int {
	if f, ok := payload[key].(float64); ok {
		n := int(f)
		return &n
	}
	return nil
}

func getBool(payload map[string]any, key string) bool {
	b, _ := payload[key].(bool)
	return b
}

func getStringSlice(payload map[string]any, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
	"github.com/clinassist/ng12-assistant/internal/infrastructure/resilience"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return f.vector, f.err
}

func testExecutor(attempts int) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
}

func TestQueryMergesBothCorpora(t *testing.T) {
	var searchBodies []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		switch r.URL.Path {
		case "/collections/ng12_search/points/search":
			searchBodies = append(searchBodies, body)
			_, _ = w.Write([]byte(`{"result":[
				{"score":0.72,"payload":{"chunk_id":"ng12_1_1_1","doc_type":"rule_search","text":"Refer people aged 40 and over with unexplained haemoptysis.","section":"1.1.1","page":9,"cancer_type":"Lung cancer","action_type":"urgent_referral","age_min":40,"symptom_keywords":["haemoptysis"],"risk_factor_smoking":true,"rule_id":"1.1.1"}},
				{"score":0.61,"payload":{"chunk_id":"ng12_1_1_2","doc_type":"rule_search","text":"Offer an urgent chest X-ray.","section":"1.1.2","page":9,"cancer_type":"Lung cancer","age_min":40,"age_max":60}}
			]}`))
		case "/collections/ng12_symptoms/points/search":
			searchBodies = append(searchBodies, body)
			_, _ = w.Write([]byte(`{"result":[
				{"score":0.55,"payload":{"chunk_id":"sym_haemoptysis","doc_type":"symptom_index","text":"Haemoptysis — see lung cancer recommendations.","page":43,"symptom":"Haemoptysis","possible_cancer":"Lung cancer","references":["[1.1.1]","1.1.2"]}}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	store := NewStore(server.URL, "ng12_search", "ng12_symptoms", "ng12_canonical", embedder, testExecutor(1))

	candidates, err := store.Query(context.Background(), "haemoptysis referral", 18)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 merged candidates, got %d", len(candidates))
	}
	if len(embedder.texts) != 1 || embedder.texts[0] != "haemoptysis referral" {
		t.Fatalf("expected a single embed of the query text, got %v", embedder.texts)
	}

	first := candidates[0]
	if first.Chunk.ID != "ng12_1_1_1" || first.Score != 0.72 {
		t.Fatalf("unexpected first candidate %+v", first)
	}
	if first.Chunk.DocType != domain.DocTypeRuleSearch {
		t.Fatalf("expected rule_search doc type, got %q", first.Chunk.DocType)
	}
	if first.Chunk.Metadata.Section != "1.1.1" || first.Chunk.Metadata.Page != 9 {
		t.Fatalf("unexpected metadata %+v", first.Chunk.Metadata)
	}
	if first.Chunk.Metadata.AgeMin == nil || *first.Chunk.Metadata.AgeMin != 40 {
		t.Fatalf("expected age_min 40, got %v", first.Chunk.Metadata.AgeMin)
	}
	if !first.Chunk.Metadata.RiskFactorSmoking {
		t.Fatalf("expected smoking flag set")
	}
	if len(first.Chunk.Metadata.SymptomKeywords) != 1 || first.Chunk.Metadata.SymptomKeywords[0] != "haemoptysis" {
		t.Fatalf("unexpected symptom keywords %v", first.Chunk.Metadata.SymptomKeywords)
	}

	second := candidates[1]
	if second.Chunk.Metadata.AgeMax == nil || *second.Chunk.Metadata.AgeMax != 60 {
		t.Fatalf("expected age_max 60, got %v", second.Chunk.Metadata.AgeMax)
	}

	symptom := candidates[2]
	if symptom.Chunk.DocType != domain.DocTypeSymptomIndex {
		t.Fatalf("expected symptom_index doc type, got %q", symptom.Chunk.DocType)
	}
	if len(symptom.Chunk.Metadata.References) != 2 {
		t.Fatalf("unexpected references %v", symptom.Chunk.Metadata.References)
	}

	for _, body := range searchBodies {
		if body["limit"] != float64(18) {
			t.Fatalf("expected limit 18, got %v", body["limit"])
		}
		if body["with_payload"] != true {
			t.Fatalf("expected with_payload true, got %v", body["with_payload"])
		}
		vector, ok := body["vector"].([]any)
		if !ok || len(vector) != 2 {
			t.Fatalf("unexpected vector %v", body["vector"])
		}
	}
}

func TestQueryPropagatesEmbedFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("embed down")}
	store := NewStore("http://127.0.0.1:0", "a", "b", "c", embedder, testExecutor(1))

	_, err := store.Query(context.Background(), "anything", 6)
	if err == nil || !strings.Contains(err.Error(), "embed down") {
		t.Fatalf("expected embed failure, got %v", err)
	}
}

func TestQueryRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	embedder := &fakeEmbedder{vector: []float32{0.5}}
	store := NewStore(server.URL, "a", "b", "c", embedder, testExecutor(3))

	candidates, err := store.Query(context.Background(), "q", 6)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected empty pool, got %d", len(candidates))
	}
	// One retried call plus one clean call for the second collection.
	if calls.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", calls.Load())
	}
}

func TestGetCanonicalScrollsByRuleID(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/ng12_canonical/points/scroll" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"payload":{"chunk_id":"canon_1_1_1","doc_type":"rule_canonical","rule_id":"1.1.1","text":"Refer people using a suspected cancer pathway referral.","section":"1.1.1","page":9,"cancer_type":"Lung cancer"}}
		]}}`))
	}))
	defer server.Close()

	store := NewStore(server.URL, "a", "b", "ng12_canonical", &fakeEmbedder{}, testExecutor(1))
	chunk, err := store.GetCanonical(context.Background(), "1.1.1")
	if err != nil {
		t.Fatalf("GetCanonical() error = %v", err)
	}
	if chunk == nil {
		t.Fatalf("expected canonical chunk")
	}
	if chunk.Metadata.RuleID != "1.1.1" || chunk.DocType != domain.DocTypeRuleCanonical {
		t.Fatalf("unexpected chunk %+v", chunk)
	}

	if captured["limit"] != float64(1) {
		t.Fatalf("expected limit 1, got %v", captured["limit"])
	}
	filter, _ := captured["filter"].(map[string]any)
	must, _ := filter["must"].([]any)
	if len(must) != 1 {
		t.Fatalf("expected one filter clause, got %v", captured["filter"])
	}
	clause, _ := must[0].(map[string]any)
	if clause["key"] != "rule_id" {
		t.Fatalf("expected rule_id filter, got %v", clause)
	}
	match, _ := clause["match"].(map[string]any)
	if match["value"] != "1.1.1" {
		t.Fatalf("expected rule id value, got %v", match)
	}
}

func TestGetCanonicalMissReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"points":[]}}`))
	}))
	defer server.Close()

	store := NewStore(server.URL, "a", "b", "c", &fakeEmbedder{}, testExecutor(1))
	chunk, err := store.GetCanonical(context.Background(), "9.9.9")
	if err != nil {
		t.Fatalf("GetCanonical() error = %v", err)
	}
	if chunk != nil {
		t.Fatalf("expected nil on miss, got %+v", chunk)
	}
}

func TestSearchIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer server.Close()

	embedder := &fakeEmbedder{vector: []float32{0.5}}
	store := NewStore(server.URL, "missing", "b", "c", embedder, testExecutor(3))

	_, err := store.Query(context.Background(), "q", 6)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "collection not found") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

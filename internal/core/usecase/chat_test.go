package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
)

type fakePublisher struct {
	events []domain.DecisionEvent
	err    error
}

func (f *fakePublisher) PublishDecision(_ context.Context, event domain.DecisionEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func strongCandidates() []domain.Candidate {
	return []domain.Candidate{
		{
			Chunk: domain.Chunk{
				DocType: domain.DocTypeRuleSearch,
				Text:    "Refer people aged 40 and over with unexplained haemoptysis.",
				Metadata: domain.ChunkMetadata{
					ChunkID:    "ng12_1_1_1",
					Section:    "1.1.1",
					Page:       9,
					CancerType: "Lung cancer",
					RuleID:     "1.1.1",
				},
			},
			Score: 0.55,
		},
		{
			Chunk: domain.Chunk{
				DocType: domain.DocTypeRuleSearch,
				Text:    "Offer an urgent chest x-ray for suspected lung cancer with haemoptysis.",
				Metadata: domain.ChunkMetadata{
					ChunkID:    "ng12_1_1_2",
					Section:    "1.1.2",
					Page:       10,
					CancerType: "Lung cancer",
					RuleID:     "1.1.2",
				},
			},
			Score: 0.52,
		},
		{
			Chunk: domain.Chunk{
				DocType: domain.DocTypeSymptomIndex,
				Text:    "Haemoptysis: see the lung cancer recommendations.",
				Metadata: domain.ChunkMetadata{
					ChunkID: "symptom_haemoptysis",
					Page:    43,
				},
			},
			Score: 0.48,
		},
	}
}

func newChatFixture(store *fakeEvidenceStore, gen *fakeTextGenerator) (*ChatUseCase, *fakeSessionMemory, *fakePublisher) {
	memory := newFakeSessionMemory()
	publisher := &fakePublisher{}
	uc := NewChatUseCase(store, gen, memory, publisher, ChatLimits{})
	return uc, memory, publisher
}

func TestChatRejectsBlankInput(t *testing.T) {
	uc, _, _ := newChatFixture(&fakeEvidenceStore{}, &fakeTextGenerator{})

	if _, err := uc.Chat(context.Background(), "", "hello"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Errorf("blank session: err = %v, want invalid input", err)
	}
	if _, err := uc.Chat(context.Background(), "s1", "  "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Errorf("blank message: err = %v, want invalid input", err)
	}
}

func TestChatCannedPathSkipsRetrieval(t *testing.T) {
	store := &fakeEvidenceStore{}
	uc, memory, publisher := newChatFixture(store, &fakeTextGenerator{available: true})

	result, err := uc.Chat(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if result.InputCategory != domain.InputSmalltalk {
		t.Errorf("category = %s, want smalltalk", result.InputCategory)
	}
	if result.Answer != smalltalkResponse {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(store.queries) != 0 {
		t.Errorf("retrieval ran %d times on a canned path", len(store.queries))
	}
	history := memory.History("s1")
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("history = %+v, want user turn then assistant turn", history)
	}
	if len(publisher.events) != 1 || publisher.events[0].Category != domain.InputSmalltalk {
		t.Errorf("events = %+v", publisher.events)
	}
}

func TestChatSufficientPath(t *testing.T) {
	store := &fakeEvidenceStore{candidates: strongCandidates()}
	gen := &fakeTextGenerator{
		available: true,
		queue:     []string{"Symptoms: haemoptysis\nQuestion: urgent referral criteria"},
		response:  "Refer urgently [Source 1].",
	}
	uc, memory, publisher := newChatFixture(store, gen)

	result, err := uc.Chat(context.Background(), "s1", "What are the urgent referral criteria for haemoptysis?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if result.Tier != domain.TierSufficient {
		t.Fatalf("tier = %s, want sufficient", result.Tier)
	}
	if result.Strategy != domain.StrategyDirect {
		t.Errorf("strategy = %s, want direct", result.Strategy)
	}
	if len(store.fetchKs) != 1 || store.fetchKs[0] != 18 {
		t.Errorf("fetchKs = %v, want one retrieval of 18", store.fetchKs)
	}
	if len(result.Citations) != 1 || result.Citations[0].ChunkID != "ng12_1_1_1" {
		t.Errorf("citations = %+v", result.Citations)
	}
	if !strings.Contains(result.Answer, "[NG12 §1.1.1, p.9]") {
		t.Errorf("answer markers not rewritten: %q", result.Answer)
	}
	if result.QuerySummary != "Symptoms: haemoptysis\nQuestion: urgent referral criteria" {
		t.Errorf("query summary = %q", result.QuerySummary)
	}
	if !strings.HasPrefix(result.Answer, querySummaryHeader) {
		t.Errorf("summary not prepended: %q", result.Answer)
	}
	if result.Scores == nil || result.Scores.TotalResults != 3 || result.Scores.Top1Score != 0.55 {
		t.Errorf("scores = %+v", result.Scores)
	}
	if topic := memory.Topic("s1"); !strings.Contains(topic, "Lung cancer") {
		t.Errorf("topic = %q, want cited lung cancer topic", topic)
	}
	if len(publisher.events) != 1 || publisher.events[0].Tier != domain.TierSufficient {
		t.Errorf("events = %+v", publisher.events)
	}
}

func TestChatWeakPathWrapsAnswer(t *testing.T) {
	candidates := []domain.Candidate{strongCandidates()[0]}
	candidates[0].Score = 0.38
	store := &fakeEvidenceStore{candidates: candidates}
	gen := &fakeTextGenerator{
		available: true,
		queue:     []string{"Symptoms: haemoptysis"},
		response:  "Possibly refer [Source 1].",
	}
	uc, _, _ := newChatFixture(store, gen)

	result, err := uc.Chat(context.Background(), "s1", "Is haemoptysis alone enough for an urgent referral decision")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if result.Tier != domain.TierWeak {
		t.Fatalf("tier = %s, want weak", result.Tier)
	}
	if !strings.HasPrefix(result.Answer, querySummaryHeader+"Symptoms: haemoptysis") {
		t.Errorf("summary not prepended to weak answer: %q", result.Answer)
	}
	if !strings.Contains(result.Answer, "Based on the limited evidence") {
		t.Errorf("weak answer not qualified: %q", result.Answer)
	}
	if len(result.Citations) != 1 {
		t.Errorf("citations = %+v", result.Citations)
	}
}

func TestChatRefusesWithoutEvidence(t *testing.T) {
	store := &fakeEvidenceStore{queryErr: fmt.Errorf("store down")}
	uc, memory, _ := newChatFixture(store, &fakeTextGenerator{available: false})

	result, err := uc.Chat(context.Background(), "s1", "What are the urgent referral criteria for haemoptysis?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if result.Tier != domain.TierNone {
		t.Fatalf("tier = %s, want none", result.Tier)
	}
	if result.Answer != refuseResponse {
		t.Errorf("answer = %q, want refusal", result.Answer)
	}
	if topic := memory.Topic("s1"); topic != "" {
		t.Errorf("topic = %q, want unchanged empty topic", topic)
	}
}

func TestChatOutOfScopeMessage(t *testing.T) {
	store := &fakeEvidenceStore{candidates: strongCandidates()}
	uc, memory, _ := newChatFixture(store, &fakeTextGenerator{available: false})

	memory.SetTopic("s1", "Lung cancer haemoptysis")
	result, err := uc.Chat(context.Background(), "s1", "How quickly does metastasis spread between different organs")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if result.Tier != domain.TierOutOfScope {
		t.Fatalf("tier = %s, want out_of_scope", result.Tier)
	}
	if result.Answer != outOfScopeResponse {
		t.Errorf("answer = %q", result.Answer)
	}
	if topic := memory.Topic("s1"); topic != "Lung cancer haemoptysis" {
		t.Errorf("topic = %q, want untouched", topic)
	}
}

func TestChatRetriesWithRewriteBeforeRefusing(t *testing.T) {
	store := &fakeEvidenceStore{candidates: []domain.Candidate{{
		Chunk: domain.Chunk{Text: "unrelated passage"},
		Score: 0.10,
	}}}
	gen := &fakeTextGenerator{available: true, response: "lung cancer referral criteria under 40"}
	uc, memory, _ := newChatFixture(store, gen)
	memory.Append("s1", "user", "What are the lung cancer referral criteria?")
	memory.Append("s1", "assistant", "Refer people aged 40 and over with haemoptysis.")

	result, err := uc.Chat(context.Background(), "s1", "Which patients does the pathway cover in practice here?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(store.queries) != 2 {
		t.Fatalf("queries = %v, want original plus rewrite retry", store.queries)
	}
	if store.queries[1] != "lung cancer referral criteria under 40" {
		t.Errorf("retry query = %q", store.queries[1])
	}
	if result.Strategy != domain.StrategyLLMRewrite {
		t.Errorf("strategy = %s, want llm_rewrite after retry", result.Strategy)
	}
	if result.Tier != domain.TierNone || result.Answer != refuseResponse {
		t.Errorf("tier = %s, answer = %q, want refusal when retry also fails", result.Tier, result.Answer)
	}
}

func TestChatFallbackAnswerWhenGeneratorFails(t *testing.T) {
	store := &fakeEvidenceStore{candidates: strongCandidates()}
	gen := &fakeTextGenerator{available: true, err: errors.New("model offline")}
	uc, _, _ := newChatFixture(store, gen)

	result, err := uc.Chat(context.Background(), "s1", "What are the urgent referral criteria for haemoptysis?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if result.Tier != domain.TierSufficient {
		t.Fatalf("tier = %s, want sufficient", result.Tier)
	}
	if !strings.Contains(result.Answer, "text-generation service is unavailable") {
		t.Errorf("answer = %q, want deterministic fallback", result.Answer)
	}
	if !strings.Contains(result.Answer, "Refer people aged 40 and over") {
		t.Errorf("fallback answer missing passages: %q", result.Answer)
	}
}

func TestClearSession(t *testing.T) {
	uc, memory, _ := newChatFixture(&fakeEvidenceStore{}, &fakeTextGenerator{})
	memory.Append("s1", "user", "hi")
	memory.SetTopic("s1", "lung")

	if err := uc.ClearSession("s1"); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if len(memory.History("s1")) != 0 || memory.Topic("s1") != "" {
		t.Error("session state survived Clear")
	}
	if err := uc.ClearSession(" "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Errorf("blank id err = %v, want invalid input", err)
	}
}

func TestChatSummarySkippedOnRefusal(t *testing.T) {
	store := &fakeEvidenceStore{queryErr: fmt.Errorf("store down")}
	gen := &fakeTextGenerator{available: true, response: "should never be used"}
	uc, _, _ := newChatFixture(store, gen)

	result, err := uc.Chat(context.Background(), "s1", "What are the urgent referral criteria for haemoptysis?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if result.Tier != domain.TierNone {
		t.Fatalf("tier = %s, want none", result.Tier)
	}
	if result.QuerySummary != "" {
		t.Errorf("query summary = %q, want none on a refusal path", result.QuerySummary)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times on a refusal with no history", gen.calls)
	}
}

func TestChatNilGeneratorDegradesGracefully(t *testing.T) {
	store := &fakeEvidenceStore{candidates: strongCandidates()}
	memory := newFakeSessionMemory()
	uc := NewChatUseCase(store, nil, memory, &fakePublisher{}, ChatLimits{})

	result, err := uc.Chat(context.Background(), "s1", "What are the urgent referral criteria for haemoptysis?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if result.Tier != domain.TierSufficient {
		t.Fatalf("tier = %s, want sufficient", result.Tier)
	}
	if !strings.Contains(result.Answer, "text-generation service is unavailable") {
		t.Errorf("answer = %q, want deterministic fallback", result.Answer)
	}
	if result.QuerySummary != "" {
		t.Errorf("query summary = %q, want none without a generator", result.QuerySummary)
	}
}

func TestSessionHistory(t *testing.T) {
	uc, memory, _ := newChatFixture(&fakeEvidenceStore{}, &fakeTextGenerator{})
	memory.Append("s1", "user", "hi")
	memory.Append("s1", "assistant", "hello")
	memory.SetTopic("s1", "Lung cancer haemoptysis")

	view, err := uc.SessionHistory("s1")
	if err != nil {
		t.Fatalf("SessionHistory: %v", err)
	}
	if view.SessionID != "s1" || view.Topic != "Lung cancer haemoptysis" {
		t.Errorf("view = %+v", view)
	}
	if len(view.History) != 2 || view.History[0].Content != "hi" {
		t.Errorf("history = %+v", view.History)
	}

	// Unknown sessions yield an empty history, not nil and not an error.
	empty, err := uc.SessionHistory("s2")
	if err != nil {
		t.Fatalf("SessionHistory unknown: %v", err)
	}
	if empty.History == nil || len(empty.History) != 0 || empty.Topic != "" {
		t.Errorf("unknown session view = %+v", empty)
	}

	if _, err := uc.SessionHistory(" "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Errorf("blank id err = %v, want invalid input", err)
	}
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
	"github.com/clinassist/ng12-assistant/internal/core/ports"
)

// ChatLimits bound the chat pipeline. Zero values fall back to defaults.
type ChatLimits struct {
	TopK                int
	FetchMultiplier     int
	RewriteHistoryTurns int
	GenerateTimeout     time.Duration
}

type ChatUseCase struct {
	store     ports.EvidenceStore
	generator ports.TextGenerator
	memory    ports.SessionMemory
	publisher ports.DecisionPublisher
	queries   *QueryBuilder
	resolver  *CanonicalResolver
	limits    ChatLimits
}

func NewChatUseCase(
	store ports.EvidenceStore,
	generator ports.TextGenerator,
	memory ports.SessionMemory,
	publisher ports.DecisionPublisher,
	limits ChatLimits,
) *ChatUseCase {
	if limits.TopK <= 0 {
		limits.TopK = 6
	}
	if limits.FetchMultiplier <= 0 {
		limits.FetchMultiplier = 3
	}
	if limits.RewriteHistoryTurns <= 0 {
		limits.RewriteHistoryTurns = 6
	}
	if limits.GenerateTimeout <= 0 {
		limits.GenerateTimeout = 60 * time.Second
	}

	return &ChatUseCase{
		store:     store,
		generator: generator,
		memory:    memory,
		publisher: publisher,
		queries:   NewQueryBuilder(memory, generator, limits.RewriteHistoryTurns),
		resolver:  NewCanonicalResolver(store),
		limits:    limits,
	}
}

// Chat runs one conversational turn end to end: input guardrail, query
// building, retrieval, reranking, canonical resolution, evidence
// sufficiency, and the terminal routing it selects. Every turn is appended
// to the session history, whichever path produced the answer.
func (uc *ChatUseCase) Chat(ctx context.Context, sessionID, message string) (*domain.ChatResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	message = strings.TrimSpace(message)
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", fmt.Errorf("session_id is required"))
	}
	if message == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", fmt.Errorf("message is required"))
	}

	category := ClassifyInput(message)
	if category != domain.InputProceed {
		result := &domain.ChatResult{
			SessionID:     sessionID,
			Answer:        cannedResponse(category),
			InputCategory: category,
		}
		uc.saveTurn(sessionID, message, result)
		uc.publish(ctx, sessionID, result)
		return result, nil
	}

	history := uc.memory.History(sessionID)
	searchQuery, strategy := uc.queries.Build(ctx, sessionID, message)

	fetchK := uc.limits.TopK * uc.limits.FetchMultiplier
	pool, err := uc.store.Query(ctx, searchQuery, fetchK)
	if err != nil {
		// A dead evidence store is indistinguishable from no evidence
		// for routing purposes: refuse rather than answer ungrounded.
		slog.Warn("evidence retrieval failed", "session_id", sessionID, "error", err)
		pool = nil
	}

	reranker, err := SelectReranker(domain.ModeChat, searchQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("select reranker: %w", err)
	}
	ranked := sortAndTruncate(reranker.Rerank(pool), uc.limits.TopK)
	results := uc.resolver.Resolve(ctx, ranked)

	tier := ClassifySufficiency(message, results)

	// Lexical overlap guard. The search query is checked rather than the
	// short original message so that topic enrichment words count.
	if (tier == domain.TierSufficient || tier == domain.TierWeak) &&
		!HasLexicalOverlap(searchQuery, results) {
		slog.Info("no lexical overlap, downgrading evidence tier", "session_id", sessionID)
		tier = domain.TierNone
	}

	// One retry with an LLM-rewritten query before giving up.
	if tier == domain.TierNone && strategy != domain.StrategyLLMRewrite &&
		uc.generatorReady() && len(history) > 0 {
		if retryQuery, retryResults, ok := uc.retryWithRewrite(ctx, history, message, fetchK); ok {
			searchQuery = retryQuery
			strategy = domain.StrategyLLMRewrite
			results = retryResults
			tier = classifyEvidence(results)
		}
	}

	// Display-only summary of the clinical details in the conversation.
	// Computed only for the answering tiers; never affects retrieval.
	var summary string
	if tier == domain.TierSufficient || tier == domain.TierWeak {
		summary = uc.summarizeQuery(ctx, history, message)
	}

	result := &domain.ChatResult{
		SessionID:     sessionID,
		InputCategory: domain.InputProceed,
		Tier:          tier,
		Strategy:      strategy,
		SearchQuery:   searchQuery,
		QuerySummary:  summary,
		Results:       results,
		Scores:        scoreBreakdown(results),
	}

	switch tier {
	case domain.TierSufficient:
		result.Answer, result.Citations = uc.generateAnswer(ctx, message, results, history, "")
	case domain.TierWeak:
		result.Answer, result.Citations = uc.generateAnswer(ctx, message, results, history, qualifyTemplate)
	case domain.TierOutOfScope:
		result.Answer = outOfScopeResponse
	default:
		result.Answer = refuseResponse
	}

	if summary != "" {
		result.Answer = querySummaryHeader + summary + "\n\n---\n\n" + result.Answer
	}

	uc.saveTurn(sessionID, message, result)
	uc.publish(ctx, sessionID, result)
	return result, nil
}

// SessionHistory returns the stored turns and topic for one session. An
// unknown session yields an empty history, not an error.
func (uc *ChatUseCase) SessionHistory(sessionID string) (*domain.SessionHistory, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "session history", fmt.Errorf("session_id is required"))
	}
	history := uc.memory.History(sessionID)
	if history == nil {
		history = []domain.Turn{}
	}
	return &domain.SessionHistory{
		SessionID: sessionID,
		History:   history,
		Topic:     uc.memory.Topic(sessionID),
	}, nil
}

// ClearSession drops a session's history and topic.
func (uc *ChatUseCase) ClearSession(sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "clear session", fmt.Errorf("session_id is required"))
	}
	uc.memory.Clear(sessionID)
	return nil
}

// generatorReady reports whether a text generator is wired and configured.
func (uc *ChatUseCase) generatorReady() bool {
	return uc.generator != nil && uc.generator.Available()
}

// summarizeQuery extracts a display-only summary of the clinical details in
// the conversation. Failures are logged and produce no summary.
func (uc *ChatUseCase) summarizeQuery(ctx context.Context, history []domain.Turn, message string) string {
	if !uc.generatorReady() {
		return ""
	}

	genCtx, cancel := context.WithTimeout(ctx, uc.limits.GenerateTimeout)
	defer cancel()

	summary, err := uc.generator.Generate(genCtx, summarySystemPrompt,
		buildSummaryPrompt(history, message),
		ports.GenerateOptions{Temperature: 0.1, MaxTokens: 256})
	if err != nil {
		slog.Warn("query summarization failed", "error", err)
		return ""
	}
	return strings.TrimSpace(summary)
}

// retryWithRewrite asks the generator for a standalone query and retrieves
// again. Returns ok=false when the rewrite fails or comes back empty; the
// caller keeps the original results in that case.
func (uc *ChatUseCase) retryWithRewrite(ctx context.Context, history []domain.Turn, message string, fetchK int) (string, []domain.RankedResult, bool) {
	genCtx, cancel := context.WithTimeout(ctx, uc.limits.GenerateTimeout)
	defer cancel()

	rewrite, err := uc.generator.Generate(genCtx, "", buildRewritePrompt(history, message, uc.limits.RewriteHistoryTurns), ports.GenerateOptions{
		Temperature: 0.1,
		MaxTokens:   128,
	})
	if err != nil {
		slog.Warn("rewrite retry failed", "error", err)
		return "", nil, false
	}
	rewrite = strings.TrimSpace(rewrite)
	if rewrite == "" {
		return "", nil, false
	}

	pool, err := uc.store.Query(ctx, rewrite, fetchK)
	if err != nil {
		slog.Warn("rewrite retry retrieval failed", "error", err)
		return "", nil, false
	}

	reranker, err := SelectReranker(domain.ModeChat, rewrite, nil)
	if err != nil {
		return "", nil, false
	}
	ranked := sortAndTruncate(reranker.Rerank(pool), uc.limits.TopK)
	return rewrite, uc.resolver.Resolve(ctx, ranked), true
}

// generateAnswer drafts a grounded answer, extracts citations from its
// [Source N] markers, and rewrites the markers into readable references.
// When wrapTemplate is non-empty the drafted answer is embedded in it (the
// weak-evidence qualification). Falls back to a deterministic passage
// listing when the generator is unavailable or fails.
func (uc *ChatUseCase) generateAnswer(ctx context.Context, message string, results []domain.RankedResult, history []domain.Turn, wrapTemplate string) (string, []domain.Citation) {
	var answer string
	generated := false

	if uc.generatorReady() {
		genCtx, cancel := context.WithTimeout(ctx, uc.limits.GenerateTimeout)
		text, err := uc.generator.Generate(genCtx, chatSystemPrompt,
			buildChatPrompt(message, results, history, uc.limits.RewriteHistoryTurns),
			ports.GenerateOptions{Temperature: 0.2})
		cancel()
		if err != nil {
			slog.Warn("answer generation failed", "error", err)
		} else if strings.TrimSpace(text) != "" {
			answer = text
			generated = true
		}
	}
	if answer == "" {
		answer = fallbackAnswer(results)
	}

	citations := BuildCitations(results, answer)
	answer = CleanAnswerSources(answer, results)
	if wrapTemplate != "" {
		answer = fmt.Sprintf(wrapTemplate, answer)
	}
	if generated && len(citations) == 0 && len(answer) > 50 {
		answer += noCitationsNote
	}
	return answer, citations
}

// saveTurn appends both sides of the turn to the session history and, when
// the turn produced cited sufficient/weak evidence, refreshes the session
// topic from the cited chunks only.
func (uc *ChatUseCase) saveTurn(sessionID, message string, result *domain.ChatResult) {
	uc.memory.Append(sessionID, "user", message)
	uc.memory.Append(sessionID, "assistant", result.Answer)

	if len(result.Citations) == 0 ||
		(result.Tier != domain.TierSufficient && result.Tier != domain.TierWeak) {
		return
	}

	citedIDs := make(map[string]bool, len(result.Citations))
	for _, c := range result.Citations {
		citedIDs[c.ChunkID] = true
	}
	cited := make([]domain.Chunk, 0, len(result.Citations))
	for _, r := range result.Results {
		if citedIDs[r.Chunk.Metadata.ChunkID] {
			cited = append(cited, r.Chunk)
		}
	}
	if len(cited) == 0 {
		return
	}
	if topic := DeriveTopic(cited); topic != "" {
		uc.memory.SetTopic(sessionID, topic)
	}
}

func (uc *ChatUseCase) publish(ctx context.Context, sessionID string, result *domain.ChatResult) {
	if uc.publisher == nil {
		return
	}
	event := domain.DecisionEvent{
		ID:        uuid.NewString(),
		Kind:      "chat",
		SessionID: sessionID,
		Category:  result.InputCategory,
		Tier:      result.Tier,
		Strategy:  result.Strategy,
		Citations: len(result.Citations),
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.publisher.PublishDecision(ctx, event); err != nil {
		slog.Warn("decision publish failed", "kind", event.Kind, "error", err)
	}
}

// scoreBreakdown summarises post-rerank scores for the response payload.
func scoreBreakdown(results []domain.RankedResult) *domain.ScoreBreakdown {
	breakdown := &domain.ScoreBreakdown{TotalResults: len(results)}
	if len(results) == 0 {
		return breakdown
	}

	sum := 0.0
	for _, r := range results {
		sum += r.Score
		if r.Score > 0.35 {
			breakdown.Above035Count++
		}
	}
	breakdown.Top1Score = round3(results[0].Score)
	breakdown.MeanScore = round3(sum / float64(len(results)))
	return breakdown
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

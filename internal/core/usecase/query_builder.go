package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
	"github.com/clinassist/ng12-assistant/internal/core/ports"
)

// Phrases that typically start a follow-up, context-dependent message.
var followupStarters = []string{
	"what about",
	"and if",
	"how about",
	"what if",
	"and for",
	"but what",
	"also",
	"same for",
	"does that",
	"is that",
	"can you",
	"could you",
	"what's the",
	"how does",
	"earlier",
	"you mentioned",
	"you said",
	"go back",
	"going back",
}

// Pronouns that signal the message depends on earlier context.
var contextPronouns = map[string]struct{}{
	"it":   {},
	"that": {},
	"they": {},
	"this": {},
	"them": {},
}

// Keeps letters, digits, spaces, and hyphens so a trailing "?" does not
// inflate the word count.
var stripPunctRE = regexp.MustCompile(`[^\w\s-]`)

// isFollowup reports whether message is a short follow-up needing context
// enrichment: 3 words or fewer, a known follow-up starter, or under 8 words
// with a context pronoun.
func isFollowup(message string) bool {
	msgLower := strings.ToLower(strings.TrimSpace(message))
	words := strings.Fields(stripPunctRE.ReplaceAllString(msgLower, ""))

	if len(words) <= 3 {
		return true
	}
	for _, starter := range followupStarters {
		if strings.HasPrefix(msgLower, starter) {
			return true
		}
	}
	if len(words) < 8 {
		for _, w := range words {
			if _, ok := contextPronouns[w]; ok {
				return true
			}
		}
	}
	return false
}

// QueryBuilder builds the retrieval query for a chat turn using the tiered
// direct / topic_enriched / llm_rewrite strategy.
type QueryBuilder struct {
	memory       ports.SessionMemory
	generator    ports.TextGenerator
	historyTurns int
}

func NewQueryBuilder(memory ports.SessionMemory, generator ports.TextGenerator, historyTurns int) *QueryBuilder {
	if historyTurns <= 0 {
		historyTurns = 6
	}
	return &QueryBuilder{
		memory:       memory,
		generator:    generator,
		historyTurns: historyTurns,
	}
}

// Build returns the retrieval query and the strategy that produced it. The
// cascade is deterministic for a given session state and message; only the
// llm_rewrite tier involves an external call, and any failure there falls
// back to the raw message.
func (qb *QueryBuilder) Build(ctx context.Context, sessionID, message string) (string, domain.QueryStrategy) {
	if !isFollowup(message) {
		return message, domain.StrategyDirect
	}

	if topic := qb.memory.Topic(sessionID); topic != "" {
		return topic + " " + message, domain.StrategyTopicEnriched
	}

	if qb.generator != nil && qb.generator.Available() {
		history := qb.memory.History(sessionID)
		if len(history) > 0 {
			prompt := buildRewritePrompt(history, message, qb.historyTurns)
			rewritten, err := qb.generator.Generate(ctx, "", prompt, ports.GenerateOptions{
				Temperature: 0.1,
				MaxTokens:   128,
			})
			if err != nil {
				slog.Warn("query rewrite failed, using raw message", "session_id", sessionID, "error", err)
			} else if q := strings.TrimSpace(rewritten); q != "" {
				return q, domain.StrategyLLMRewrite
			}
		}
	}

	return message, domain.StrategyDirect
}

// Package rag answers questions from indexed company documents.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bull/znatok/internal/conversation"
	"github.com/bull/znatok/internal/llm"
	"github.com/bull/znatok/internal/storage"
)

// FallbackAnswer is returned without calling the model when nothing relevant
// was found.
const FallbackAnswer = "Не нашёл ответа в документах компании."

// Searcher finds passages relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query, department string, limit int) ([]storage.Hit, error)
}

type AskRequest struct {
	Question       string `json:"question"`
	Department     string `json:"user_department,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type Source struct {
	Source string `json:"source"`
}

type AskResponse struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	ConversationID string   `json:"conversation_id"`
}

// Orchestrator runs the retrieval and answer flow for one question.
type Orchestrator struct {
	searcher      Searcher
	model         llm.Provider
	conversations *conversation.Store
	logger        *zap.Logger
}

func NewOrchestrator(searcher Searcher, model llm.Provider, conversations *conversation.Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		searcher:      searcher,
		model:         model,
		conversations: conversations,
		logger:        logger.With(zap.String("component", "rag")),
	}
}

// Ask answers req.Question. Conversation history is only extended when an
// answer is returned.
func (o *Orchestrator) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	query := question
	if o.conversations != nil {
		if history := o.conversations.History(convID); len(history) > 0 {
			query = conversation.FormatHistory(history) + question
		}
	}

	hits, err := o.searcher.Search(ctx, query, req.Department, 0)
	if err != nil {
		o.logger.Error("Search failed", zap.String("conversation_id", convID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	resp := &AskResponse{Sources: []Source{}, ConversationID: convID}
	if len(hits) == 0 {
		resp.Answer = FallbackAnswer
	} else {
		answer, err := o.model.Generate(ctx, BuildPrompt(hits, query))
		if err != nil {
			o.logger.Error("Generation failed", zap.String("conversation_id", convID), zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		resp.Answer = answer
		resp.Sources = DedupSources(hits)
	}

	if o.conversations != nil {
		o.conversations.Append(convID, question, resp.Answer)
	}
	o.logger.Info("Answered question",
		zap.String("conversation_id", convID),
		zap.Int("hits", len(hits)),
		zap.Int("sources", len(resp.Sources)),
	)
	return resp, nil
}

// BuildPrompt joins the hits, in ranked order, into a grounding context
// followed by the question.
func BuildPrompt(hits []storage.Hit, question string) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = "Документ: " + h.Source + "\n" + h.Text
	}
	return "Контекст:\n" + strings.Join(blocks, "\n\n") + "\n\nВопрос: " + question + "\n\nОтвет:"
}

// DedupSources lists each source once, at its highest-ranked position.
func DedupSources(hits []storage.Hit) []Source {
	seen := make(map[string]struct{}, len(hits))
	out := make([]Source, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.Source]; ok {
			continue
		}
		seen[h.Source] = struct{}{}
		out = append(out, Source{Source: h.Source})
	}
	return out
}

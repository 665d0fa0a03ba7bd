// Package chat implements the conversation services on top of the store,
// the orchestrator and the LLM providers.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/018kpmanoj/ModelZoo/internal/config"
	"github.com/018kpmanoj/ModelZoo/internal/llm"
	"github.com/018kpmanoj/ModelZoo/internal/observability"
	"github.com/018kpmanoj/ModelZoo/internal/orchestrator"
	"github.com/018kpmanoj/ModelZoo/internal/store"
)

// Input is a single chat turn from a client.
type Input struct {
	SessionID      string `json:"session_id,omitempty"`
	Message        string `json:"message"`
	PreferredModel string `json:"model,omitempty"`
	UserID         string `json:"user_id,omitempty"`
}

// Result is the non-streaming chat response payload.
type Result struct {
	SessionID       string                `json:"session_id"`
	MessageID       string                `json:"message_id"`
	Content         string                `json:"message"`
	ModelUsed       string                `json:"model_used"`
	WasAutoSelected bool                  `json:"was_auto_selected"`
	ComplexityScore int                   `json:"complexity_score"`
	Analysis        orchestrator.Analysis `json:"analysis"`
	TokensUsed      int                   `json:"tokens_used"`
	ResponseTime    float64               `json:"response_time"`
	Suggestions     []string              `json:"suggestions,omitempty"`
}

// StreamEvent is one frame of a streaming chat response.
type StreamEvent struct {
	Type        string   `json:"type"`
	SessionID   string   `json:"session_id,omitempty"`
	MessageID   string   `json:"message_id,omitempty"`
	Model       string   `json:"model,omitempty"`
	Content     string   `json:"content,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Stream event types.
const (
	EventMeta  = "meta"
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// Service coordinates sessions, model selection and upstream calls.
type Service struct {
	store     *store.Store
	orch      *orchestrator.Orchestrator
	providers map[string]llm.Provider
	cfg       config.ChatConfig
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewService builds the chat service.
func NewService(
	st *store.Store,
	orch *orchestrator.Orchestrator,
	providers map[string]llm.Provider,
	cfg config.ChatConfig,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     st,
		orch:      orch,
		providers: providers,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// Analyze runs model selection without calling any upstream.
func (s *Service) Analyze(query, preferredModel string) (string, orchestrator.Analysis) {
	return s.orch.SelectModel(query, preferredModel)
}

// Models lists the model registry in order.
func (s *Service) Models() []orchestrator.ModelDescriptor {
	return s.orch.AvailableModels()
}

// Model returns one registry entry by id.
func (s *Service) Model(id string) (orchestrator.ModelDescriptor, bool) {
	return s.orch.Registry().Lookup(id)
}

// ProcessChat handles one non-streaming chat turn: it resolves the session,
// selects a model, calls the provider and persists both sides of the
// exchange.
func (s *Service) ProcessChat(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()

	sess, err := s.resolveSession(ctx, in)
	if err != nil {
		s.metrics.RecordChat("error", "", time.Since(start), 0)
		return nil, err
	}

	modelID, analysis := s.orch.SelectModel(in.Message, in.PreferredModel)
	s.metrics.RecordModelUsage(modelID, analysis.WasAutoSelected)

	userMsg := &store.Message{
		SessionID:       sess.ID,
		Role:            string(llm.RoleUser),
		Content:         in.Message,
		ComplexityScore: analysis.TotalScore,
	}
	if err := s.store.AddMessage(ctx, userMsg); err != nil {
		s.metrics.RecordChat("error", modelID, time.Since(start), 0)
		return nil, fmt.Errorf("save user message: %w", err)
	}

	messages, err := s.historyWindow(ctx, sess.ID)
	if err != nil {
		s.metrics.RecordChat("error", modelID, time.Since(start), 0)
		return nil, err
	}

	resp, usedModel, fellBack, err := s.complete(ctx, modelID, messages)
	if err != nil {
		s.metrics.RecordChat("error", modelID, time.Since(start), 0)
		return nil, err
	}

	elapsed := time.Since(start)
	meta := map[string]any{"analysis": analysis}
	if fellBack {
		meta["fallback_from"] = modelID
	}

	assistantMsg := &store.Message{
		SessionID:    sess.ID,
		Role:         string(llm.RoleAssistant),
		Content:      resp.Message.Content,
		ModelUsed:    usedModel,
		TokensUsed:   resp.Usage.TotalTokens,
		ResponseTime: elapsed.Seconds(),
		Metadata:     meta,
	}
	if err := s.store.AddMessage(ctx, assistantMsg); err != nil {
		s.metrics.RecordChat("error", usedModel, elapsed, resp.Usage.TotalTokens)
		return nil, fmt.Errorf("save assistant message: %w", err)
	}

	if err := s.maybeAutoTitle(ctx, sess.ID, in.Message); err != nil {
		s.logger.Warn("auto-title failed", zap.String("session_id", sess.ID), zap.Error(err))
	}

	suggestions, err := s.generateSuggestions(ctx, assistantMsg.ID, resp.Message.Content)
	if err != nil {
		s.logger.Warn("suggestion generation failed", zap.String("message_id", assistantMsg.ID), zap.Error(err))
	}

	s.metrics.RecordChat("success", usedModel, elapsed, resp.Usage.TotalTokens)
	s.logger.Info("chat completed",
		zap.String("session_id", sess.ID),
		zap.String("model", usedModel),
		zap.Int("complexity_score", analysis.TotalScore),
		zap.Bool("auto_selected", analysis.WasAutoSelected),
		zap.Bool("fallback", fellBack),
		zap.Duration("duration", elapsed))

	return &Result{
		SessionID:       sess.ID,
		MessageID:       assistantMsg.ID,
		Content:         resp.Message.Content,
		ModelUsed:       usedModel,
		WasAutoSelected: analysis.WasAutoSelected,
		ComplexityScore: analysis.TotalScore,
		Analysis:        analysis,
		TokensUsed:      resp.Usage.TotalTokens,
		ResponseTime:    elapsed.Seconds(),
		Suggestions:     suggestions,
	}, nil
}

// StreamChat handles one streaming chat turn. Events arrive in order: one
// meta frame, zero or more chunk frames, then done or error. The channel is
// closed when the turn ends.
func (s *Service) StreamChat(ctx context.Context, in Input) <-chan StreamEvent {
	out := make(chan StreamEvent, 16)

	go func() {
		defer close(out)
		start := time.Now()

		// A consumer that stops reading must not strand this goroutine on a
		// channel send; every emit races against context cancellation.
		send := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		sess, err := s.resolveSession(ctx, in)
		if err != nil {
			s.metrics.RecordChat("error", "", time.Since(start), 0)
			send(StreamEvent{Type: EventError, Error: err.Error()})
			return
		}

		modelID, analysis := s.orch.SelectModel(in.Message, in.PreferredModel)
		s.metrics.RecordModelUsage(modelID, analysis.WasAutoSelected)

		userMsg := &store.Message{
			SessionID:       sess.ID,
			Role:            string(llm.RoleUser),
			Content:         in.Message,
			ComplexityScore: analysis.TotalScore,
		}
		if err := s.store.AddMessage(ctx, userMsg); err != nil {
			s.metrics.RecordChat("error", modelID, time.Since(start), 0)
			send(StreamEvent{Type: EventError, SessionID: sess.ID, Error: err.Error()})
			return
		}

		messages, err := s.historyWindow(ctx, sess.ID)
		if err != nil {
			s.metrics.RecordChat("error", modelID, time.Since(start), 0)
			send(StreamEvent{Type: EventError, SessionID: sess.ID, Error: err.Error()})
			return
		}

		if !send(StreamEvent{Type: EventMeta, SessionID: sess.ID, Model: modelID}) {
			return
		}

		content, usedModel, err := s.streamCompletion(ctx, modelID, messages, func(chunk string) {
			// Dropped when the consumer is gone; the provider stream ends
			// via the same context.
			send(StreamEvent{Type: EventChunk, Content: chunk})
		})
		if err != nil {
			s.metrics.RecordChat("error", usedModel, time.Since(start), 0)
			send(StreamEvent{Type: EventError, SessionID: sess.ID, Error: err.Error()})
			return
		}

		elapsed := time.Since(start)
		tokens := s.orch.EstimateTokens(content)
		assistantMsg := &store.Message{
			SessionID:    sess.ID,
			Role:         string(llm.RoleAssistant),
			Content:      content,
			ModelUsed:    usedModel,
			TokensUsed:   tokens,
			ResponseTime: elapsed.Seconds(),
			Metadata:     map[string]any{"analysis": analysis},
		}
		if err := s.store.AddMessage(ctx, assistantMsg); err != nil {
			s.metrics.RecordChat("error", usedModel, elapsed, tokens)
			send(StreamEvent{Type: EventError, SessionID: sess.ID, Error: err.Error()})
			return
		}

		if err := s.maybeAutoTitle(ctx, sess.ID, in.Message); err != nil {
			s.logger.Warn("auto-title failed", zap.String("session_id", sess.ID), zap.Error(err))
		}

		suggestions, err := s.generateSuggestions(ctx, assistantMsg.ID, content)
		if err != nil {
			s.logger.Warn("suggestion generation failed", zap.String("message_id", assistantMsg.ID), zap.Error(err))
		}

		s.metrics.RecordChat("success", usedModel, elapsed, tokens)

		send(StreamEvent{
			Type:        EventDone,
			SessionID:   sess.ID,
			MessageID:   assistantMsg.ID,
			Model:       usedModel,
			Suggestions: suggestions,
		})
	}()

	return out
}

// resolveSession loads the referenced session or creates a new one. An
// unknown session id silently creates a fresh session rather than failing
// the chat turn.
func (s *Service) resolveSession(ctx context.Context, in Input) (*store.Session, error) {
	if in.SessionID != "" {
		sess, err := s.store.GetSession(ctx, in.SessionID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load session: %w", err)
		}
	}
	sess, err := s.store.CreateSession(ctx, in.UserID, "New Chat")
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// historyWindow returns the system prompt followed by the most recent
// messages of the session.
func (s *Service) historyWindow(ctx context.Context, sessionID string) ([]llm.ChatMessage, error) {
	window := s.cfg.HistoryWindow
	if window <= 0 {
		window = 10
	}
	history, err := s.store.RecentMessages(ctx, sessionID, window)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	messages := make([]llm.ChatMessage, 0, len(history)+1)
	messages = append(messages, llm.ChatMessage{
		Role:    llm.RoleSystem,
		Content: s.cfg.SystemPrompt,
	})
	for _, msg := range history {
		messages = append(messages, llm.ChatMessage{
			Role:    llm.Role(msg.Role),
			Content: msg.Content,
		})
	}
	return messages, nil
}

// complete calls the provider for modelID. When the high-tier model fails
// the call is retried exactly once against the low-tier model; a low-tier
// failure propagates.
func (s *Service) complete(ctx context.Context, modelID string, messages []llm.ChatMessage) (llm.ChatResponse, string, bool, error) {
	desc := s.orch.ModelConfig(modelID)

	resp, err := s.callProvider(ctx, desc, messages)
	if err == nil {
		return resp, desc.ID, false, nil
	}
	s.metrics.RecordModelFailure(desc.ID)

	if desc.Tier != orchestrator.TierHigh {
		return llm.ChatResponse{}, desc.ID, false, err
	}

	low := s.orch.Registry().LowTier()
	s.metrics.RecordFallback(desc.ID)
	s.logger.Warn("high-tier completion failed, retrying on low tier",
		zap.String("model", desc.ID),
		zap.String("fallback", low.ID),
		zap.Error(err))

	resp, err = s.callProvider(ctx, low, messages)
	if err != nil {
		s.metrics.RecordModelFailure(low.ID)
		return llm.ChatResponse{}, low.ID, true, err
	}
	return resp, low.ID, true, nil
}

// streamCompletion streams a completion for modelID, invoking emit for each
// content chunk and returning the accumulated text. The high-to-low fallback
// applies only when the stream fails before any content was emitted.
func (s *Service) streamCompletion(ctx context.Context, modelID string, messages []llm.ChatMessage, emit func(string)) (string, string, error) {
	desc := s.orch.ModelConfig(modelID)

	content, emitted, err := s.drainStream(ctx, desc, messages, emit)
	if err == nil {
		return content, desc.ID, nil
	}
	s.metrics.RecordModelFailure(desc.ID)

	if desc.Tier != orchestrator.TierHigh || emitted {
		return content, desc.ID, err
	}

	low := s.orch.Registry().LowTier()
	s.metrics.RecordFallback(desc.ID)
	s.logger.Warn("high-tier stream failed, retrying on low tier",
		zap.String("model", desc.ID),
		zap.String("fallback", low.ID),
		zap.Error(err))

	content, _, err = s.drainStream(ctx, low, messages, emit)
	if err != nil {
		s.metrics.RecordModelFailure(low.ID)
		return content, low.ID, err
	}
	return content, low.ID, nil
}

func (s *Service) drainStream(ctx context.Context, desc orchestrator.ModelDescriptor, messages []llm.ChatMessage, emit func(string)) (string, bool, error) {
	provider, req, err := s.buildRequest(desc, messages)
	if err != nil {
		return "", false, err
	}

	ch, errCh := provider.Stream(ctx, req)

	var b strings.Builder
	emitted := false
	for chunk := range ch {
		if chunk.Content != "" {
			b.WriteString(chunk.Content)
			emitted = true
			emit(chunk.Content)
		}
	}
	if err := <-errCh; err != nil {
		return b.String(), emitted, fmt.Errorf("stream from %s: %w", desc.ID, err)
	}
	return b.String(), emitted, nil
}

func (s *Service) callProvider(ctx context.Context, desc orchestrator.ModelDescriptor, messages []llm.ChatMessage) (llm.ChatResponse, error) {
	provider, req, err := s.buildRequest(desc, messages)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	resp, err := provider.Chat(ctx, req)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("completion from %s: %w", desc.ID, err)
	}
	return resp, nil
}

func (s *Service) buildRequest(desc orchestrator.ModelDescriptor, messages []llm.ChatMessage) (llm.Provider, llm.ChatRequest, error) {
	provider, ok := s.providers[desc.Provider]
	if !ok {
		return nil, llm.ChatRequest{}, fmt.Errorf("no provider %q for model %s", desc.Provider, desc.ID)
	}

	deployment := desc.Deployment
	if deployment == "" {
		deployment = desc.ID
	}

	maxTokens := s.cfg.MaxTokens
	if desc.MaxTokens > 0 && desc.MaxTokens < maxTokens {
		maxTokens = desc.MaxTokens
	}

	return provider, llm.ChatRequest{
		Model:       deployment,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: s.cfg.Temperature,
	}, nil
}

// maybeAutoTitle titles the session from the first user message once the
// first exchange is stored.
func (s *Service) maybeAutoTitle(ctx context.Context, sessionID, firstMessage string) error {
	n, err := s.store.CountMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	if n > 2 {
		return nil
	}
	runes := []rune(firstMessage)
	title := firstMessage
	if len(runes) > 50 {
		title = string(runes[:50]) + "..."
	}
	return s.store.UpdateSessionTitle(ctx, sessionID, title)
}

// generateSuggestions derives follow-up prompts from the assistant response
// and persists them.
func (s *Service) generateSuggestions(ctx context.Context, messageID, content string) ([]string, error) {
	texts := suggestFollowUps(content)

	suggestions := make([]store.Suggestion, 0, len(texts))
	for _, text := range texts {
		suggestions = append(suggestions, store.Suggestion{
			Text:     text,
			Category: "follow_up",
		})
	}
	if err := s.store.SaveSuggestions(ctx, messageID, suggestions); err != nil {
		return nil, err
	}
	return texts, nil
}

// suggestFollowUps applies the rule set: code and error signals add targeted
// prompts, anything else gets the generic trio. Capped at three.
func suggestFollowUps(content string) []string {
	lower := strings.ToLower(content)

	var texts []string
	if strings.Contains(lower, "code") || strings.Contains(content, "```") {
		texts = append(texts,
			"Can you explain this code step by step?",
			"How can I optimize this code?")
	}
	if strings.Contains(lower, "error") || strings.Contains(lower, "exception") {
		texts = append(texts,
			"What causes this error?",
			"How can I prevent this in the future?")
	}
	if len(texts) == 0 {
		texts = []string{
			"Tell me more about this topic",
			"Can you provide an example?",
			"What are the best practices?",
		}
	}
	if len(texts) > 3 {
		texts = texts[:3]
	}
	return texts
}

// SubmitFeedback validates and stores a rating.
func (s *Service) SubmitFeedback(ctx context.Context, fb *store.Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", fb.Rating)
	}
	if _, err := s.store.GetSession(ctx, fb.SessionID); err != nil {
		return err
	}
	return s.store.CreateFeedback(ctx, fb)
}

// SessionFeedback lists feedback for a session.
func (s *Service) SessionFeedback(ctx context.Context, sessionID string) ([]store.Feedback, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.SessionFeedback(ctx, sessionID)
}

// FeedbackStats aggregates all stored feedback.
func (s *Service) FeedbackStats(ctx context.Context) (*store.FeedbackStats, error) {
	return s.store.Stats(ctx)
}

// MessageSuggestions lists stored suggestions for a message.
func (s *Service) MessageSuggestions(ctx context.Context, messageID string) ([]store.Suggestion, error) {
	return s.store.MessageSuggestions(ctx, messageID)
}

// Sessions lists sessions with aggregates.
func (s *Service) Sessions(ctx context.Context, limit, offset int) ([]store.SessionSummary, error) {
	return s.store.ListSessions(ctx, limit, offset)
}

// CreateSession makes an empty session.
func (s *Service) CreateSession(ctx context.Context, userID, title string) (*store.Session, error) {
	if title == "" {
		title = "New Chat"
	}
	return s.store.CreateSession(ctx, userID, title)
}

// Session returns a session and its messages.
func (s *Service) Session(ctx context.Context, id string) (*store.Session, []store.Message, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.store.SessionMessages(ctx, id, 0)
	if err != nil {
		return nil, nil, err
	}
	return sess, msgs, nil
}

// RenameSession updates a session title.
func (s *Service) RenameSession(ctx context.Context, id, title string) error {
	return s.store.UpdateSessionTitle(ctx, id, title)
}

// DeleteSession removes a session and its messages.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.store.DeleteSession(ctx, id)
}

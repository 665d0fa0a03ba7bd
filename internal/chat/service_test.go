package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/018kpmanoj/ModelZoo/internal/config"
	"github.com/018kpmanoj/ModelZoo/internal/llm"
	"github.com/018kpmanoj/ModelZoo/internal/llm/mock"
	"github.com/018kpmanoj/ModelZoo/internal/orchestrator"
	"github.com/018kpmanoj/ModelZoo/internal/store"
)

func newTestService(t *testing.T, provider llm.Provider) (*Service, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	orch := orchestrator.New(orchestrator.DefaultRegistry(), orchestrator.DefaultLexicon())
	cfg := config.ChatConfig{
		SystemPrompt:  "You are a helpful AI assistant in ModelZoo. Provide clear, accurate, and helpful responses. Be concise but thorough.",
		HistoryWindow: 10,
		MaxTokens:     2048,
		Temperature:   0.7,
	}

	svc := NewService(st, orch, map[string]llm.Provider{"azure": provider}, cfg, zap.NewNop(), nil)
	return svc, st
}

func TestProcessChatCreatesSessionAndPersistsTurn(t *testing.T) {
	provider := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{
				Message:      llm.ChatMessage{Role: llm.RoleAssistant, Content: "Paris."},
				FinishReason: "stop",
				Usage:        llm.Usage{TotalTokens: 12},
				Model:        req.Model,
			}, nil
		},
	}
	svc, st := newTestService(t, provider)
	ctx := context.Background()

	res, err := svc.ProcessChat(ctx, Input{Message: "what is the capital of France"})
	require.NoError(t, err)
	require.NotEmpty(t, res.SessionID)
	require.Equal(t, "Paris.", res.Content)
	require.Equal(t, "gpt-35-turbo", res.ModelUsed)
	require.True(t, res.WasAutoSelected)
	require.Equal(t, 12, res.TokensUsed)
	require.Len(t, res.Suggestions, 3)

	msgs, err := st.SessionMessages(ctx, res.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "user", msgs[0].Role)
	require.Equal(t, "assistant", msgs[1].Role)
	require.Equal(t, "gpt-35-turbo", msgs[1].ModelUsed)

	sess, err := st.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, "what is the capital of France", sess.Title)
}

func TestProcessChatRoutesComplexQueryToHighTier(t *testing.T) {
	var gotModel string
	provider := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			gotModel = req.Model
			return llm.ChatResponse{
				Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: "deep answer"},
			}, nil
		},
	}
	svc, _ := newTestService(t, provider)

	res, err := svc.ProcessChat(context.Background(), Input{
		Message: "analyze the failures. what is the root cause? how does the retry work? can you walk me through it?",
	})
	require.NoError(t, err)
	require.Equal(t, "gpt-4", res.ModelUsed)
	require.Equal(t, "gpt-4", gotModel)
	require.GreaterOrEqual(t, res.ComplexityScore, 4)
}

func TestProcessChatHonorsPreferredModel(t *testing.T) {
	provider := &mock.Provider{}
	svc, _ := newTestService(t, provider)

	res, err := svc.ProcessChat(context.Background(), Input{
		Message:        "hi",
		PreferredModel: "gpt-4",
	})
	require.NoError(t, err)
	require.Equal(t, "gpt-4", res.ModelUsed)
	require.False(t, res.WasAutoSelected)
	require.Equal(t, "User specified model", res.Analysis.SelectionReason)
}

func TestProcessChatFallsBackToLowTierOnce(t *testing.T) {
	calls := []string{}
	provider := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			calls = append(calls, req.Model)
			if req.Model == "gpt-4" {
				return llm.ChatResponse{}, errors.New("upstream 503")
			}
			return llm.ChatResponse{
				Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: "fallback answer"},
			}, nil
		},
	}
	svc, _ := newTestService(t, provider)

	res, err := svc.ProcessChat(context.Background(), Input{
		Message:        "hi",
		PreferredModel: "gpt-4",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"gpt-4", "gpt-35-turbo"}, calls)
	require.Equal(t, "gpt-35-turbo", res.ModelUsed)
	require.Equal(t, "fallback answer", res.Content)
}

func TestProcessChatLowTierFailurePropagates(t *testing.T) {
	calls := 0
	provider := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			calls++
			return llm.ChatResponse{}, errors.New("upstream down")
		},
	}
	svc, _ := newTestService(t, provider)

	_, err := svc.ProcessChat(context.Background(), Input{Message: "hi"})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestProcessChatReusesExistingSession(t *testing.T) {
	provider := &mock.Provider{}
	svc, st := newTestService(t, provider)
	ctx := context.Background()

	first, err := svc.ProcessChat(ctx, Input{Message: "hello"})
	require.NoError(t, err)

	second, err := svc.ProcessChat(ctx, Input{SessionID: first.SessionID, Message: "and again"})
	require.NoError(t, err)
	require.Equal(t, first.SessionID, second.SessionID)

	n, err := st.CountMessages(ctx, first.SessionID)
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestProcessChatUnknownSessionIDCreatesNewSession(t *testing.T) {
	provider := &mock.Provider{}
	svc, _ := newTestService(t, provider)

	res, err := svc.ProcessChat(context.Background(), Input{
		SessionID: "does-not-exist",
		Message:   "hello",
	})
	require.NoError(t, err)
	require.NotEqual(t, "does-not-exist", res.SessionID)
	require.NotEmpty(t, res.SessionID)
}

func TestProcessChatSendsSystemPromptAndHistory(t *testing.T) {
	var gotMessages []llm.ChatMessage
	provider := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			gotMessages = req.Messages
			return llm.ChatResponse{
				Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: "ok"},
			}, nil
		},
	}
	svc, _ := newTestService(t, provider)
	ctx := context.Background()

	first, err := svc.ProcessChat(ctx, Input{Message: "first question"})
	require.NoError(t, err)

	_, err = svc.ProcessChat(ctx, Input{SessionID: first.SessionID, Message: "second question"})
	require.NoError(t, err)

	require.Equal(t, llm.RoleSystem, gotMessages[0].Role)
	require.Contains(t, gotMessages[0].Content, "ModelZoo")
	// system + first exchange + the new user message
	require.Len(t, gotMessages, 4)
	require.Equal(t, "second question", gotMessages[len(gotMessages)-1].Content)
}

func TestAutoTitleTruncatesLongFirstMessage(t *testing.T) {
	provider := &mock.Provider{}
	svc, st := newTestService(t, provider)
	ctx := context.Background()

	long := strings.Repeat("a", 80)
	res, err := svc.ProcessChat(ctx, Input{Message: long})
	require.NoError(t, err)

	sess, err := st.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("a", 50)+"...", sess.Title)
}

func TestStreamChatEmitsMetaChunksAndDone(t *testing.T) {
	provider := &mock.Provider{
		StreamChunks: []llm.StreamChunk{
			{Content: "Hel"},
			{Content: "lo"},
			{FinishReason: "stop"},
		},
	}
	svc, st := newTestService(t, provider)
	ctx := context.Background()

	var events []StreamEvent
	for ev := range svc.StreamChat(ctx, Input{Message: "hi there"}) {
		events = append(events, ev)
	}

	require.GreaterOrEqual(t, len(events), 3)
	require.Equal(t, EventMeta, events[0].Type)
	require.Equal(t, "gpt-35-turbo", events[0].Model)
	require.NotEmpty(t, events[0].SessionID)

	var content string
	for _, ev := range events {
		if ev.Type == EventChunk {
			content += ev.Content
		}
	}
	require.Equal(t, "Hello", content)

	done := events[len(events)-1]
	require.Equal(t, EventDone, done.Type)
	require.NotEmpty(t, done.MessageID)
	require.Len(t, done.Suggestions, 3)

	msgs, err := st.SessionMessages(ctx, events[0].SessionID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "Hello", msgs[1].Content)
}

func TestStreamChatStopsWhenConsumerAbandons(t *testing.T) {
	// More chunks than the event channel buffers, so the service goroutine
	// would block on send if cancellation did not unblock it.
	chunks := make([]llm.StreamChunk, 0, 65)
	for i := 0; i < 64; i++ {
		chunks = append(chunks, llm.StreamChunk{Content: "w "})
	}
	chunks = append(chunks, llm.StreamChunk{FinishReason: "stop"})
	provider := &mock.Provider{StreamChunks: chunks}
	svc, _ := newTestService(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	events := svc.StreamChat(ctx, Input{Message: "hi there"})

	// Read the meta frame only, then walk away like a dropped client.
	ev := <-events
	require.Equal(t, EventMeta, ev.Type)
	cancel()

	// The channel closes once the service goroutine exits; buffered events
	// drain along the way.
	require.Eventually(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamChatSurfacesStreamError(t *testing.T) {
	provider := &mock.Provider{StreamErr: errors.New("connection reset")}
	svc, _ := newTestService(t, provider)

	var last StreamEvent
	for ev := range svc.StreamChat(context.Background(), Input{Message: "hi"}) {
		last = ev
	}
	require.Equal(t, EventError, last.Type)
	require.Contains(t, last.Error, "connection reset")
}

func TestAnalyzeDoesNotTouchProviders(t *testing.T) {
	provider := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			t.Fatal("provider must not be called")
			return llm.ChatResponse{}, nil
		},
	}
	svc, _ := newTestService(t, provider)

	model, analysis := svc.Analyze("hello", "")
	require.Equal(t, "gpt-35-turbo", model)
	require.True(t, analysis.WasAutoSelected)
}

func TestSuggestFollowUpsRules(t *testing.T) {
	code := suggestFollowUps("here is some code:\n```go\nfmt.Println()\n```")
	require.Equal(t, []string{
		"Can you explain this code step by step?",
		"How can I optimize this code?",
	}, code)

	errs := suggestFollowUps("That exception happens when the pointer is nil")
	require.Equal(t, []string{
		"What causes this error?",
		"How can I prevent this in the future?",
	}, errs)

	both := suggestFollowUps("this code throws an error")
	require.Len(t, both, 3)

	generic := suggestFollowUps("The capital of France is Paris")
	require.Equal(t, []string{
		"Tell me more about this topic",
		"Can you provide an example?",
		"What are the best practices?",
	}, generic)
}

func TestSubmitFeedbackValidation(t *testing.T) {
	provider := &mock.Provider{}
	svc, _ := newTestService(t, provider)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, "", "")
	require.NoError(t, err)

	require.Error(t, svc.SubmitFeedback(ctx, &store.Feedback{SessionID: sess.ID, Rating: 0}))
	require.Error(t, svc.SubmitFeedback(ctx, &store.Feedback{SessionID: sess.ID, Rating: 6}))
	require.ErrorIs(t, svc.SubmitFeedback(ctx, &store.Feedback{SessionID: "missing", Rating: 3}), store.ErrNotFound)
	require.NoError(t, svc.SubmitFeedback(ctx, &store.Feedback{SessionID: sess.ID, Rating: 5}))

	stats, err := svc.FeedbackStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalFeedback)
}

func TestMessageSuggestionsPersisted(t *testing.T) {
	provider := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{
				Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: "look at this code sample"},
			}, nil
		},
	}
	svc, _ := newTestService(t, provider)
	ctx := context.Background()

	res, err := svc.ProcessChat(ctx, Input{Message: "show me"})
	require.NoError(t, err)

	stored, err := svc.MessageSuggestions(ctx, res.MessageID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "follow_up", stored[0].Category)
}

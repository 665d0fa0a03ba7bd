package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "user-1", "first chat")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.True(t, sess.IsActive)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)
	require.Equal(t, "first chat", got.Title)
	require.Equal(t, "user-1", got.UserID)
	require.False(t, got.CreatedAt.IsZero())
}

func TestGetSessionNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetSession(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSessionTitle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "", "old")
	require.NoError(t, err)

	require.NoError(t, s.UpdateSessionTitle(ctx, sess.ID, "new"))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "new", got.Title)

	require.ErrorIs(t, s.UpdateSessionTitle(ctx, "missing", "x"), ErrNotFound)
}

func TestDeleteSessionCascadesMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "", "")
	require.NoError(t, err)

	msg := &Message{SessionID: sess.ID, Role: "user", Content: "hi"}
	require.NoError(t, s.AddMessage(ctx, msg))

	require.NoError(t, s.DeleteSession(ctx, sess.ID))
	require.ErrorIs(t, s.DeleteSession(ctx, sess.ID), ErrNotFound)

	n, err := s.CountMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAddMessageRejectsUnknownSession(t *testing.T) {
	s := openTestStore(t)

	err := s.AddMessage(context.Background(), &Message{SessionID: "missing", Role: "user", Content: "hi"})
	require.Error(t, err)
}

func TestSessionMessagesOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "", "")
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, s.AddMessage(ctx, &Message{
			SessionID: sess.ID,
			Role:      "user",
			Content:   content,
		}))
	}

	msgs, err := s.SessionMessages(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "one", msgs[0].Content)
	require.Equal(t, "three", msgs[2].Content)

	limited, err := s.SessionMessages(ctx, sess.ID, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestRecentMessagesReturnsTail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "", "")
	require.NoError(t, err)

	for _, content := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.AddMessage(ctx, &Message{SessionID: sess.ID, Role: "user", Content: content}))
	}

	tail, err := s.RecentMessages(ctx, sess.ID, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	require.Equal(t, "c", tail[0].Content)
	require.Equal(t, "d", tail[1].Content)
}

func TestMessageMetadataRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "", "")
	require.NoError(t, err)

	msg := &Message{
		SessionID:       sess.ID,
		Role:            "assistant",
		Content:         "answer",
		ModelUsed:       "gpt-4",
		ComplexityScore: 5,
		TokensUsed:      42,
		ResponseTime:    1.25,
		Metadata: map[string]any{
			"selection_reason": "High complexity keywords: analyze",
		},
	}
	require.NoError(t, s.AddMessage(ctx, msg))

	msgs, err := s.SessionMessages(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "gpt-4", msgs[0].ModelUsed)
	require.Equal(t, 5, msgs[0].ComplexityScore)
	require.Equal(t, 42, msgs[0].TokensUsed)
	require.InDelta(t, 1.25, msgs[0].ResponseTime, 1e-9)
	require.Equal(t, "High complexity keywords: analyze", msgs[0].Metadata["selection_reason"])
}

func TestListSessionsIncludesCountAndPreview(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "", "chat")
	require.NoError(t, err)

	long := strings.Repeat("x", 150)
	require.NoError(t, s.AddMessage(ctx, &Message{SessionID: sess.ID, Role: "user", Content: "hello"}))
	require.NoError(t, s.AddMessage(ctx, &Message{SessionID: sess.ID, Role: "assistant", Content: long}))

	summaries, err := s.ListSessions(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 2, summaries[0].MessageCount)
	require.Equal(t, strings.Repeat("x", 100), summaries[0].LastMessage)
}

func TestListSessionsPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.CreateSession(ctx, "", "s")
		require.NoError(t, err)
	}

	page, err := s.ListSessions(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)

	rest, err := s.ListSessions(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
}

func TestFeedbackLifecycleAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "", "")
	require.NoError(t, err)

	helpful := true
	notHelpful := false
	require.NoError(t, s.CreateFeedback(ctx, &Feedback{SessionID: sess.ID, Rating: 5, WasHelpful: &helpful}))
	require.NoError(t, s.CreateFeedback(ctx, &Feedback{SessionID: sess.ID, Rating: 2, Comment: "meh", WasHelpful: &notHelpful}))
	require.NoError(t, s.CreateFeedback(ctx, &Feedback{SessionID: sess.ID, Rating: 4}))

	items, err := s.SessionFeedback(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalFeedback)
	require.InDelta(t, 3.67, stats.AverageRating, 1e-9)
	require.Equal(t, 1, stats.HelpfulCount)
	require.InDelta(t, 0.33, stats.HelpfulRatio, 1e-9)
}

func TestStatsEmpty(t *testing.T) {
	s := openTestStore(t)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.TotalFeedback)
	require.Zero(t, stats.AverageRating)
	require.Zero(t, stats.HelpfulRatio)
}

func TestSuggestionsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "", "")
	require.NoError(t, err)

	msg := &Message{SessionID: sess.ID, Role: "assistant", Content: "here is code"}
	require.NoError(t, s.AddMessage(ctx, msg))

	err = s.SaveSuggestions(ctx, msg.ID, []Suggestion{
		{Text: "Can you explain this code step by step?", Category: "code"},
		{Text: "How can I optimize this code?", Category: "code"},
	})
	require.NoError(t, err)

	items, err := s.MessageSuggestions(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Can you explain this code step by step?", items[0].Text)
	require.Equal(t, "code", items[0].Category)
	require.False(t, items[0].IsApplied)
}

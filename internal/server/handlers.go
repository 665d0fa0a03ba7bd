package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/018kpmanoj/ModelZoo/internal/chat"
	"github.com/018kpmanoj/ModelZoo/internal/store"
	"github.com/018kpmanoj/ModelZoo/internal/version"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// mapStoreError translates store sentinels into HTTP status codes.
func (s *Server) mapStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFoundMsg)
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Welcome to ModelZoo API",
		"version": version.Version,
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"service":   "ModelZoo API",
		"version":   version.Version,
		"mock_mode": s.mockMode,
	})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.svc.Models()})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	model, ok := s.svc.Model(id)
	if !ok {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}
	writeJSON(w, http.StatusOK, model)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title  string `json:"title"`
		UserID string `json:"user_id"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	sess, err := s.svc.CreateSession(r.Context(), body.UserID, body.Title)
	if err != nil {
		s.mapStoreError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	sessions, err := s.svc.Sessions(r.Context(), limit, offset)
	if err != nil {
		s.mapStoreError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, msgs, err := s.svc.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		s.mapStoreError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"messages": msgs,
	})
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" {
		var body struct {
			Title string `json:"title"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		title = body.Title
	}
	if strings.TrimSpace(title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	id := r.PathValue("id")
	if err := s.svc.RenameSession(r.Context(), id, title); err != nil {
		s.mapStoreError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "title": title})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		s.mapStoreError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

// chatRequest mirrors the public chat payload. UseRAG is accepted for
// compatibility and ignored.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Model     string `json:"model"`
	UserID    string `json:"user_id"`
	UseRAG    bool   `json:"use_rag"`
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (chat.Input, bool) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return chat.Input{}, false
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return chat.Input{}, false
	}
	return chat.Input{
		SessionID:      body.SessionID,
		Message:        body.Message,
		PreferredModel: body.Model,
		UserID:         body.UserID,
	}, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	res, err := s.svc.ProcessChat(r.Context(), in)
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "chat completion failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	model := r.URL.Query().Get("model")
	if message == "" {
		var body struct {
			Message string `json:"message"`
			Model   string `json:"model"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		message = body.Message
		model = body.Model
	}
	if strings.TrimSpace(message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	selected, analysis := s.svc.Analyze(message, model)
	writeJSON(w, http.StatusOK, map[string]any{
		"selected_model": selected,
		"analysis":       analysis,
	})
}

func (s *Server) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID  string `json:"session_id"`
		MessageID  string `json:"message_id"`
		Rating     int    `json:"rating"`
		Comment    string `json:"comment"`
		WasHelpful *bool  `json:"was_helpful"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if body.Rating < 1 || body.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	fb := &store.Feedback{
		SessionID:  body.SessionID,
		MessageID:  body.MessageID,
		Rating:     body.Rating,
		Comment:    body.Comment,
		WasHelpful: body.WasHelpful,
	}
	if err := s.svc.SubmitFeedback(r.Context(), fb); err != nil {
		s.mapStoreError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

func (s *Server) handleFeedbackStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.FeedbackStats(r.Context())
	if err != nil {
		s.mapStoreError(w, err, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSessionFeedback(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.SessionFeedback(r.Context(), r.PathValue("id"))
	if err != nil {
		s.mapStoreError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": items})
}

func (s *Server) handleMessageSuggestions(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.MessageSuggestions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.mapStoreError(w, err, "message not found")
		return
	}
	texts := make([]string, 0, len(items))
	for _, sg := range items {
		texts = append(texts, sg.Text)
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": texts})
}

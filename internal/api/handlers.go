package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/reverie/pkg/chat"
)

// conversationsResponse lists known conversation IDs.
type conversationsResponse struct {
	Conversations []string `json:"conversations"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ListConversations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationsResponse{Conversations: ids})
}

// messagesResponse wraps a conversation history.
type messagesResponse struct {
	ConversationID string         `json:"conversationId"`
	Messages       []chat.Message `json:"messages"`
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	messages, err := s.store.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{ConversationID: id, Messages: messages})
}

// appendMessageRequest is the body of POST .../messages.
type appendMessageRequest struct {
	Role      chat.Role `json:"role"`
	Text      string    `json:"text"`
	Timestamp int64     `json:"timestamp"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req appendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid message body: "+err.Error())
		return
	}
	if !req.Role.IsValid() {
		writeBadRequest(w, `role must be "user" or "model"`)
		return
	}
	if req.Text == "" {
		writeBadRequest(w, "text must not be empty")
		return
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}

	msg := chat.Message{Role: req.Role, Text: req.Text, Timestamp: req.Timestamp}
	if err := s.store.AppendMessage(r.Context(), id, msg); err != nil {
		writeError(w, err)
		return
	}

	// Each appended turn triggers a threshold-checked pass. A failed pass
	// never surfaces here; the message is already stored.
	if _, err := s.service.Run(r.Context(), id, false); err != nil {
		slog.Warn("post-append summarisation pass failed", "conversation", id, "err", err)
	}

	writeJSON(w, http.StatusCreated, msg)
}

// summariseResponse reports the outcome of a summarisation pass.
type summariseResponse struct {
	Ran          bool           `json:"ran"`
	Reason       string         `json:"reason,omitempty"`
	Summary      *chat.Summary  `json:"summary,omitempty"`
	Messages     []chat.Message `json:"messages"`
	MessageCount int            `json:"messageCount"`
}

func (s *Server) handleSummarise(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Calling this endpoint is the explicit "summarize now" action, so the
	// pass is forced unless the caller opts into the threshold check with
	// force=false.
	force := true
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "force must be a boolean")
			return
		}
		force = parsed
	}

	result, err := s.service.Run(r.Context(), id, force)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := summariseResponse{
		Ran:          result.Ran,
		Reason:       result.Reason,
		Messages:     result.Messages,
		MessageCount: len(result.Messages),
	}
	if result.Ran {
		sum := result.Summary
		resp.Summary = &sum
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.Settings(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var settings chat.Settings
	if err := decodeBody(r, &settings); err != nil {
		writeBadRequest(w, "invalid settings body: "+err.Error())
		return
	}
	if settings.SummaryThreshold < 0 {
		writeBadRequest(w, "summaryThreshold must not be negative")
		return
	}
	if settings.SummaryLength < 0 {
		writeBadRequest(w, "summaryLength must not be negative")
		return
	}

	if err := s.store.SaveSettings(r.Context(), id, settings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// summariesResponse wraps a conversation's summaries index.
type summariesResponse struct {
	ConversationID string         `json:"conversationId"`
	Summaries      []chat.Summary `json:"summaries"`
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	summaries, err := s.store.Summaries(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summariesResponse{ConversationID: id, Summaries: summaries})
}

func (s *Server) handleDeleteSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sid := r.PathValue("sid")

	// Deleting a summary removes the index entry and its marker message. The
	// compressed originals are gone for good.
	if err := s.store.DeleteSummary(r.Context(), id, sid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// searchResultBody is one semantic search hit.
type searchResultBody struct {
	Summary  chat.Summary `json:"summary"`
	Distance float64      `json:"distance"`
}

func (s *Server) handleSearchSummaries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	query := r.URL.Query().Get("q")
	if query == "" {
		writeBadRequest(w, "query parameter q is required")
		return
	}
	topK := 5
	if v := r.URL.Query().Get("k"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "k must be a positive integer")
			return
		}
		topK = parsed
	}

	results, err := s.store.SearchSummaries(r.Context(), id, query, topK)
	if err != nil {
		writeError(w, err)
		return
	}

	body := make([]searchResultBody, len(results))
	for i, res := range results {
		body[i] = searchResultBody{Summary: res.Summary, Distance: res.Distance}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": body})
}

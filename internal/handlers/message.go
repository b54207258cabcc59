package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/VallejoLeonardo/alumnosb/internal/services"
	"github.com/VallejoLeonardo/alumnosb/internal/store"
	"github.com/VallejoLeonardo/alumnosb/types"
)

// MessageHandler provides HTTP handlers for student messaging. Every route
// is protected; the sender identity always comes from the verified claims.
type MessageHandler struct {
	messages *services.MessageService
}

func NewMessageHandler(messages *services.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// MessageRouter registers message routes on the given router. The caller is
// expected to have applied the auth middleware already.
func MessageRouter(r chi.Router, messages *services.MessageService) {
	handler := NewMessageHandler(messages)

	r.Post("/", handler.Send)
	r.Get("/conversation/{matricula}", handler.Conversation)
	r.Get("/inbox", handler.Inbox)
	r.Get("/sent", handler.Sent)
	r.Delete("/{messageID}", handler.Delete)
	r.Post("/{messageID}/read", handler.MarkRead)
}

type SendMessageRequest struct {
	RecipientMatricula string `json:"recipient_matricula"`
	Content            string `json:"content"`
}

type SendMessageResponse struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	MessageID int64  `json:"messageId"`
}

type ConversationResponse struct {
	Status       int             `json:"status"`
	Conversation []types.Message `json:"conversation"`
}

type MessageListResponse struct {
	Status     int              `json:"status"`
	Messages   []types.Message  `json:"messages"`
	Pagination types.Pagination `json:"pagination"`
}

type StatusResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "access token required")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	message, err := h.messages.Send(r.Context(), claims.StudentID, req.RecipientMatricula, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "recipient and content are required")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "recipient not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	writeJSON(w, http.StatusCreated, SendMessageResponse{
		Status:    http.StatusCreated,
		Message:   "message sent",
		MessageID: message.ID,
	})
}

func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "access token required")
		return
	}

	counterpart := strings.TrimSpace(chi.URLParam(r, "matricula"))
	if counterpart == "" {
		writeError(w, http.StatusBadRequest, "counterpart matricula is required")
		return
	}

	conversation, err := h.messages.Conversation(r.Context(), claims.StudentID, counterpart)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch conversation")
		return
	}

	writeJSON(w, http.StatusOK, ConversationResponse{Status: http.StatusOK, Conversation: conversation})
}

func (h *MessageHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.messages.Inbox)
}

func (h *MessageHandler) Sent(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.messages.Sent)
}

type messagePageFunc func(ctx context.Context, matricula string, offset, limit int) ([]types.Message, int, error)

func (h *MessageHandler) list(w http.ResponseWriter, r *http.Request, fetch messagePageFunc) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "access token required")
		return
	}

	page, pageSize, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, total, err := fetch(r.Context(), claims.StudentID, offset, pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	writeJSON(w, http.StatusOK, MessageListResponse{
		Status:     http.StatusOK,
		Messages:   messages,
		Pagination: buildPagination(page, pageSize, total),
	})
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "access token required")
		return
	}

	id, err := parseMessageID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.messages.Delete(r.Context(), id, claims.StudentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found or not permitted")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete message")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: http.StatusOK, Message: "message deleted"})
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "access token required")
		return
	}

	id, err := parseMessageID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.messages.MarkRead(r.Context(), id, claims.StudentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found or not permitted")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to mark message read")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: http.StatusOK, Message: "message marked as read"})
}

func parseMessageID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "messageID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid message id")
	}
	return id, nil
}

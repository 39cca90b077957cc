package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dreamflow/internal/chat"
	"dreamflow/internal/models"
)

const (
	defaultConversationLimit = 20
	maxConversationLimit     = 100
)

type ChatService interface {
	HandleTurn(ctx context.Context, userID uint, text string, conversationID *uint) (chat.TurnResult, error)
}

type ConversationReader interface {
	ListForUser(ctx context.Context, owner uint, limit int) ([]models.Conversation, error)
	Messages(ctx context.Context, owner, conversationID uint) ([]models.Message, error)
}

type ChatHandler struct {
	chat          ChatService
	conversations ConversationReader
	log           *zap.Logger
}

type ChatRequest struct {
	Message        string `json:"message" binding:"required"`
	ConversationID *uint  `json:"conversation_id"`
}

func NewChatHandler(chat ChatService, conversations ConversationReader, log *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, conversations: conversations, log: log}
}

// pathOwner checks that the :user_id segment names the authenticated caller.
func (h *ChatHandler) pathOwner(c *gin.Context) (uint, bool) {
	caller, ok := requireUser(c)
	if !ok {
		return 0, false
	}
	pathID, ok := parseIDParam(c, "user_id")
	if !ok {
		return 0, false
	}
	if pathID != caller {
		respondError(c, http.StatusForbidden, "Not authorized to access this user's conversations")
		return 0, false
	}
	return caller, true
}

func (h *ChatHandler) Chat(c *gin.Context) {
	owner, ok := h.pathOwner(c)
	if !ok {
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.chat.HandleTurn(c.Request.Context(), owner, req.Message, req.ConversationID)
	if err != nil {
		handleServiceError(c, h.log, err, "Conversation")
		return
	}
	respondSuccess(c, http.StatusOK, result, "")
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	owner, ok := h.pathOwner(c)
	if !ok {
		return
	}

	limit := defaultConversationLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxConversationLimit {
			respondError(c, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxConversationLimit))
			return
		}
		limit = n
	}

	conversations, err := h.conversations.ListForUser(c.Request.Context(), owner, limit)
	if err != nil {
		handleServiceError(c, h.log, err, "Conversation")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"conversations": conversations, "total": len(conversations)}, "")
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	owner, ok := h.pathOwner(c)
	if !ok {
		return
	}
	conversationID, ok := parseIDParam(c, "conversation_id")
	if !ok {
		return
	}

	messages, err := h.conversations.Messages(c.Request.Context(), owner, conversationID)
	if err != nil {
		handleServiceError(c, h.log, err, "Conversation")
		return
	}

	views := make([]models.MessageView, 0, len(messages))
	for _, m := range messages {
		view, err := m.View()
		if err != nil {
			handleServiceError(c, h.log, err, "Conversation")
			return
		}
		views = append(views, view)
	}
	respondSuccess(c, http.StatusOK, gin.H{"messages": views, "total": len(views)}, "")
}

package ginserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"homefind/internal/app/dto"
	chatsvc "homefind/internal/app/services/chat"
	domainchat "homefind/internal/domain/chat"
)

// ChatHTTP exposes the conversation endpoints.
type ChatHTTP interface {
	CreateMessage(c *gin.Context)
	GetConversations(c *gin.Context)
	GetMessages(c *gin.Context)
	MarkAsRead(c *gin.Context)
	DeleteMessage(c *gin.Context)
	DeleteConversation(c *gin.Context)
}

type ChatHandler struct {
	Service *chatsvc.Service
	Logger  *slog.Logger
}

type createMessageRequest struct {
	ReceiverID   string `json:"receiverId"`
	Message      string `json:"message"`
	ListingID    string `json:"listingId"`
	ListingTitle string `json:"listingTitle"`
}

type deleteMessageRequest struct {
	DeleteType string `json:"deleteType"`
}

func (h ChatHandler) CreateMessage(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Messaging unavailable"})
		return
	}
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing required fields"})
		return
	}
	message, err := h.Service.CreateMessage(c.Request.Context(), chatsvc.CreateMessageParams{
		CallerID:     principal.ID,
		ReceiverID:   req.ReceiverID,
		Body:         req.Message,
		ListingID:    req.ListingID,
		ListingTitle: req.ListingTitle,
	})
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.MapMessage(message))
}

func (h ChatHandler) GetConversations(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Messaging unavailable"})
		return
	}
	conversations, err := h.Service.GetConversations(c.Request.Context(), principal.ID)
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	result := make([]dto.Conversation, 0, len(conversations))
	for i := range conversations {
		result = append(result, dto.MapConversation(&conversations[i], principal.ID))
	}
	c.JSON(http.StatusOK, result)
}

func (h ChatHandler) GetMessages(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Messaging unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("conversationId"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Conversation id is required"})
		return
	}
	messages, err := h.Service.GetMessages(c.Request.Context(), principal.ID, domainchat.ConversationID(conversationID))
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	result := make([]dto.Message, 0, len(messages))
	for i := range messages {
		result = append(result, dto.MapMessage(&messages[i]))
	}
	c.JSON(http.StatusOK, result)
}

func (h ChatHandler) MarkAsRead(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Messaging unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("conversationId"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Conversation id is required"})
		return
	}
	if err := h.Service.MarkAsRead(c.Request.Context(), principal.ID, domainchat.ConversationID(conversationID)); err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h ChatHandler) DeleteMessage(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Messaging unavailable"})
		return
	}
	messageID := strings.TrimSpace(c.Param("messageId"))
	if messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Message id is required"})
		return
	}
	// An absent body means delete-for-everyone, the client's default.
	var req deleteMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid payload"})
		return
	}
	mode := domainchat.DeleteForEveryone
	if raw := strings.TrimSpace(req.DeleteType); raw != "" {
		parsed, err := domainchat.ParseDeleteMode(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid delete type"})
			return
		}
		mode = parsed
	}
	applied, err := h.Service.DeleteMessage(c.Request.Context(), principal.ID, domainchat.MessageID(messageID), mode)
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": string(applied)})
}

func (h ChatHandler) DeleteConversation(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Messaging unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("conversationId"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Conversation id is required"})
		return
	}
	if err := h.Service.DeleteConversation(c.Request.Context(), principal.ID, domainchat.ConversationID(conversationID)); err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h ChatHandler) respondChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainchat.ErrReceiverRequired),
		errors.Is(err, domainchat.ErrBodyRequired),
		errors.Is(err, domainchat.ErrListingRequired),
		errors.Is(err, domainchat.ErrListingTitleRequired):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing required fields"})
	case errors.Is(err, chatsvc.ErrSelfMessage):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Cannot send a message to yourself"})
	case errors.Is(err, domainchat.ErrInvalidDeleteMode):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid delete type"})
	case errors.Is(err, domainchat.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Conversation not found"})
	case errors.Is(err, domainchat.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Message not found"})
	case errors.Is(err, domainchat.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
	case errors.Is(err, domainchat.ErrNotSender):
		c.JSON(http.StatusForbidden, gin.H{"message": "You can only delete your own messages"})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat operation failed", "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)

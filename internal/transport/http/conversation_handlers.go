package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vseti/vseti-chat/internal/core"
	"github.com/vseti/vseti-chat/internal/proto"
)

// ConversationHandlers serves conversation lists over plain HTTP for
// clients catching up after being offline.
type ConversationHandlers struct {
	directory *core.Directory
	log       *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(directory *core.Directory, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{directory: directory, log: logger}
}

// ListConversations lists the caller's conversations, most recent first.
// GET /api/conversations
func (h *ConversationHandlers) ListConversations(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	convs, err := h.directory.ListForUser(ctx, uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	views, err := h.directory.Views(ctx, convs)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to resolve conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Debug().Int64("user_id", uid).Int("conversation_count", len(views)).Msg("conversations listed")
	c.JSON(http.StatusOK, proto.ConversationsList{Conversations: conversationsToProto(views)})
}

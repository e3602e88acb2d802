package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/crawlshastra-backend/internal/http/response"
	types "github.com/yungbote/crawlshastra-backend/internal/domain"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/crawlshastra-backend/internal/pkg/errors"
	"github.com/yungbote/crawlshastra-backend/internal/services"
)

const (
	msgChatNotFound = "Chat not found"
	msgChatDeleted  = "Chat deleted successfully"
	msgFetchFailed  = "Error fetching chats"
	msgCreateFailed = "Error creating chat"
	msgUpdateFailed = "Error updating chat"
	msgDeleteFailed = "Error deleting chat"
)

type ChatHandler struct {
	threads services.ThreadService
}

func NewChatHandler(threads services.ThreadService) *ChatHandler {
	return &ChatHandler{threads: threads}
}

// threadReq is shared by create and update. Absent and null fields decode to nil.
type threadReq struct {
	Title    *string              `json:"title"`
	Messages *[]types.ChatMessage `json:"messages"`
}

func (r threadReq) input() services.ThreadInput {
	return services.ThreadInput{Title: r.Title, Messages: r.Messages}
}

// GET /chats
func (h *ChatHandler) ListThreads(c *gin.Context) {
	threads, err := h.threads.List(dbctx.Context{Ctx: c.Request.Context()})
	if err != nil {
		h.fail(c, err, msgFetchFailed)
		return
	}
	response.RespondOK(c, threads)
}

// GET /chats/:chatId
func (h *ChatHandler) GetThread(c *gin.Context) {
	id, ok := threadID(c)
	if !ok {
		return
	}
	thread, err := h.threads.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		h.fail(c, err, msgFetchFailed)
		return
	}
	response.RespondOK(c, thread)
}

// POST /chats
func (h *ChatHandler) CreateThread(c *gin.Context) {
	req, ok := bindThreadReq(c)
	if !ok {
		return
	}
	thread, err := h.threads.Create(dbctx.Context{Ctx: c.Request.Context()}, req.input())
	if err != nil {
		h.fail(c, err, msgCreateFailed)
		return
	}
	c.JSON(http.StatusCreated, thread)
}

// PUT /chats/:chatId
func (h *ChatHandler) UpdateThread(c *gin.Context) {
	id, ok := threadID(c)
	if !ok {
		return
	}
	req, ok := bindThreadReq(c)
	if !ok {
		return
	}
	thread, err := h.threads.Update(dbctx.Context{Ctx: c.Request.Context()}, id, req.input())
	if err != nil {
		h.fail(c, err, msgUpdateFailed)
		return
	}
	response.RespondOK(c, thread)
}

// DELETE /chats/:chatId
func (h *ChatHandler) DeleteThread(c *gin.Context) {
	id, ok := threadID(c)
	if !ok {
		return
	}
	if err := h.threads.Delete(dbctx.Context{Ctx: c.Request.Context()}, id); err != nil {
		h.fail(c, err, msgDeleteFailed)
		return
	}
	response.RespondMessage(c, http.StatusOK, msgChatDeleted)
}

func (h *ChatHandler) fail(c *gin.Context, err error, storageMsg string) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		response.RespondMessage(c, http.StatusNotFound, msgChatNotFound)
	case errors.Is(err, apperr.ErrInvalidArgument):
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, apperr.ErrUnauthorized):
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", apperr.ErrCredentialInvalid)
	default:
		response.RespondMessage(c, http.StatusInternalServerError, storageMsg)
	}
}

// threadID answers 404 for ids that cannot name a stored thread.
func threadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("chatId"))
	if err != nil || id == uuid.Nil {
		response.RespondMessage(c, http.StatusNotFound, msgChatNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func bindThreadReq(c *gin.Context) (threadReq, bool) {
	var req threadReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return threadReq{}, false
	}
	return req, true
}

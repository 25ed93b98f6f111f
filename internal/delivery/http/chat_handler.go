package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"tradedesk/internal/domain"
	"tradedesk/internal/middleware"
)

// ChatHandler proxies the AI chat backend
type ChatHandler struct {
	chat domain.ChatService
	errs errorMapper
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(chat domain.ChatService, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{
		chat: chat,
		errs: errorMapper{logger: logger, upstreamStatus: http.StatusInternalServerError},
	}
}

// chatBody decodes the JSON request body and sets user_id from the session.
// Without a session any client-supplied user_id is dropped.
func chatBody(c echo.Context) (map[string]interface{}, error) {
	body := map[string]interface{}{}

	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(raw)) != "" {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, &domain.ValidationError{Field: "body", Message: "Request body must be a JSON object"}
		}
		if body == nil {
			body = map[string]interface{}{}
		}
	}

	delete(body, "user_id")
	if session, ok := middleware.GetSession(c); ok {
		body["user_id"] = session.UserID.String()
	}
	return body, nil
}

func sessionUserID(c echo.Context) string {
	if session, ok := middleware.GetSession(c); ok {
		return session.UserID.String()
	}
	return ""
}

// Clear clears a chat session
// POST /api/ai-chat/clear
func (h *ChatHandler) Clear(c echo.Context) error {
	body, err := chatBody(c)
	if err != nil {
		return h.errs.respond(c, err, "Failed to clear chat")
	}
	resp, err := h.chat.Clear(c.Request().Context(), body)
	if err != nil {
		return h.errs.respond(c, err, "Failed to clear chat")
	}
	NoStore(c)
	return c.JSONBlob(http.StatusOK, resp)
}

// SendMessage sends a message and waits for the reply
// POST /api/ai-chat/message
func (h *ChatHandler) SendMessage(c echo.Context) error {
	body, err := chatBody(c)
	if err != nil {
		return h.errs.respond(c, err, "Failed to send message")
	}
	resp, err := h.chat.SendMessage(c.Request().Context(), body)
	if err != nil {
		return h.errs.respond(c, err, "Failed to send message")
	}
	NoStore(c)
	return c.JSONBlob(http.StatusOK, resp)
}

// GetMessages lists recent messages
// GET /api/ai-chat/messages?limit=
func (h *ChatHandler) GetMessages(c echo.Context) error {
	limit := c.QueryParam("limit")
	if limit != "" {
		if n, err := strconv.Atoi(limit); err != nil || n < 1 {
			return BadRequestResponse(c, "limit must be a positive integer")
		}
	}
	resp, err := h.chat.Messages(c.Request().Context(), limit, sessionUserID(c))
	if err != nil {
		return h.errs.respond(c, err, "Failed to fetch messages")
	}
	NoStore(c)
	return c.JSONBlob(http.StatusOK, resp)
}

// GetSession returns the caller's chat session
// GET /api/ai-chat/session
func (h *ChatHandler) GetSession(c echo.Context) error {
	resp, err := h.chat.Session(c.Request().Context(), sessionUserID(c))
	if err != nil {
		return h.errs.respond(c, err, "Failed to fetch chat session")
	}
	NoStore(c)
	return c.JSONBlob(http.StatusOK, resp)
}

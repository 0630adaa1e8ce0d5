package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gisa-chat/server/internal/agent/model"
	errx "github.com/gisa-chat/server/internal/core/error"
	logx "github.com/gisa-chat/server/pkg/logger"
)

const defaultHistoryLimit = 20

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) turnContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.config.TurnTimeout > 0 {
		return context.WithTimeout(parent, s.config.TurnTimeout)
	}
	return context.WithCancel(parent)
}

// invoke binds the request and runs the turn, writing an error response
// itself when either fails.
func (s *Server) invoke(c *gin.Context) (*model.ChatResponse, bool) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return nil, false
	}

	ctx, cancel := s.turnContext(c.Request.Context())
	defer cancel()

	resp, err := s.runner.Invoke(ctx, req)
	if err != nil {
		_ = c.Error(err)
		logx.Error().Err(err).Str("sender", req.Sender).Msg("chat turn failed")
		c.JSON(errx.StatusOf(err), errorBody{Error: errx.MessageOf(err)})
		return nil, false
	}
	return resp, true
}

func (s *Server) chat(c *gin.Context) {
	resp, ok := s.invoke(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// chatStream answers with a single terminal server-sent event.
func (s *Server) chatStream(c *gin.Context) {
	resp, ok := s.invoke(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("final", model.StreamEvent{
		Type:      "final",
		Timestamp: time.Now().UTC(),
		Result:    resp.Result,
	})
	c.Writer.Flush()
}

func (s *Server) history(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorBody{Error: "invalid limit"})
			return
		}
		limit = n
	}

	turns, err := s.recorder.History(c.Request.Context(), c.Param("sender"), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(errx.StatusOf(err), errorBody{Error: "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sender": c.Param("sender"), "turns": turns})
}

func (s *Server) forget(c *gin.Context) {
	if err := s.recorder.Forget(c.Request.Context(), c.Param("sender")); err != nil {
		_ = c.Error(err)
		c.JSON(errx.StatusOf(err), errorBody{Error: "history unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}

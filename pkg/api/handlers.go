package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StatusResponse reports the connection state and session identity.
type StatusResponse struct {
	State          string    `json:"state"`
	Connected      bool      `json:"connected"`
	ServerURL      string    `json:"serverUrl"`
	KeyFingerprint string    `json:"keyFingerprint"`
	MessageCount   int       `json:"messageCount"`
	Uptime         string    `json:"uptime"`
	CheckedAt      time.Time `json:"checkedAt"`
}

// HistoryMessage is one stored message in API form.
type HistoryMessage struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	Outgoing  bool      `json:"outgoing"`
}

// HistoryResponse wraps the history listing.
type HistoryResponse struct {
	Messages []HistoryMessage `json:"messages"`
	Count    int              `json:"count"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// handleStatus handles GET /api/v1/status
func (s *Server) handleStatus(c *gin.Context) {
	count := 0
	if s.history != nil {
		n, err := s.history.Count()
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "History unavailable",
				Message: err.Error(),
			})
			return
		}
		count = n
	}

	c.JSON(http.StatusOK, StatusResponse{
		State:          s.conn.State().String(),
		Connected:      s.conn.Connected(),
		ServerURL:      s.serverURL,
		KeyFingerprint: s.fingerprint,
		MessageCount:   count,
		Uptime:         time.Since(s.startedAt).Round(time.Second).String(),
		CheckedAt:      time.Now().UTC(),
	})
}

// handleHistory handles GET /api/v1/history?limit=n
func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "History disabled",
			Message: "The client is running without persistence",
		})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid limit",
				Message: "limit must be a positive number",
			})
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "History read failed",
			Message: err.Error(),
		})
		return
	}

	messages := make([]HistoryMessage, len(entries))
	for i, entry := range entries {
		messages[i] = HistoryMessage{
			ID:        entry.Message.ID.String(),
			Type:      entry.Message.Type.String(),
			Sender:    entry.Message.Sender,
			Body:      entry.Message.Body,
			Timestamp: entry.Message.Timestamp,
			Outgoing:  entry.Outgoing,
		}
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Messages: messages,
		Count:    len(messages),
	})
}

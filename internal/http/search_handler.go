package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"convo-search/internal/service"
)

// SearchHandler mantiene dependencias para los endpoints de búsqueda.
type SearchHandler struct {
	logger *zap.Logger
	search *service.SearchService
}

// NewSearchHandler crea una instancia de SearchHandler.
func NewSearchHandler(logger *zap.Logger, search *service.SearchService) *SearchHandler {
	return &SearchHandler{
		logger: logger,
		search: search,
	}
}

type followUpRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Query     string `json:"query"`
}

type converseRequest struct {
	SessionID string `json:"sessionId"`
	Query     string `json:"query"`
}

// Search maneja GET /api/search?q=.
func (h *SearchHandler) Search(c *gin.Context) {
	cred, _ := GetCredential(c)
	resp, err := h.search.StartSearch(c.Request.Context(), cred.Key(), c.Query("q"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// FollowUp maneja POST /api/follow-up.
func (h *SearchHandler) FollowUp(c *gin.Context) {
	var req followUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid follow-up request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": codeInvalidRequest})
		return
	}

	cred, _ := GetCredential(c)
	resp, err := h.search.ContinueSearch(c.Request.Context(), cred.Key(), req.SessionID, req.Query)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Converse maneja POST /api/converse: como follow-up, pero si la sesión venció
// el servidor reinicia la búsqueda y responde con restarted=true.
func (h *SearchHandler) Converse(c *gin.Context) {
	var req converseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid converse request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": codeInvalidRequest})
		return
	}

	cred, _ := GetCredential(c)
	resp, err := h.search.Converse(c.Request.Context(), cred.Key(), req.SessionID, req.Query)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSession maneja GET /api/sessions/:id.
func (h *SearchHandler) GetSession(c *gin.Context) {
	cred, _ := GetCredential(c)
	session, err := h.search.Transcript(c.Request.Context(), cred.Key(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// Health maneja GET /healthz.
func (h *SearchHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.search.LiveSessions()})
}

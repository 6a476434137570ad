package handlers

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"docengine/internal/core/apperror"
	"docengine/internal/core/engine"
	"docengine/internal/infrastructure/http/v1/dto"
	"docengine/pkg/logger"
)

// AdminTokenHeader carries the admin token.
const AdminTokenHeader = "X-Admin-Token"

// AdminHandler switches the active storage engine.
type AdminHandler struct {
	*BaseHandler
	selector *engine.Selector
	token    string
}

// NewAdminHandler creates an admin handler. An empty token disables the check.
func NewAdminHandler(base *BaseHandler, selector *engine.Selector, token string) *AdminHandler {
	return &AdminHandler{BaseHandler: base, selector: selector, token: token}
}

// RegisterRoutes registers admin routes on rg.
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Use(h.authorize)
	rg.GET("/engine", h.GetEngine)
	rg.PUT("/engine", h.SetEngine)
}

func (h *AdminHandler) authorize(c *gin.Context) {
	if h.token == "" {
		c.Next()
		return
	}
	got := c.GetHeader(AdminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		h.Error(c, apperror.NewForbidden("admin token required").WithDetail("header", AdminTokenHeader))
		return
	}
	c.Next()
}

func (h *AdminHandler) state() dto.EngineResponse {
	names := h.selector.Available()
	resp := dto.EngineResponse{
		Active:    string(h.selector.Active().Name()),
		Available: make([]string, len(names)),
	}
	for i, n := range names {
		resp.Available[i] = string(n)
	}
	return resp
}

// GetEngine handles GET /admin/engine
func (h *AdminHandler) GetEngine(c *gin.Context) {
	h.OK(c, h.state())
}

// SetEngine handles PUT /admin/engine
func (h *AdminHandler) SetEngine(c *gin.Context) {
	var req dto.SetEngineRequest
	if !h.BindJSON(c, &req) {
		return
	}

	name, err := engine.ParseName(req.Engine)
	if err != nil {
		h.Error(c, apperror.NewValidation(err.Error()).WithDetail("field", "engine"))
		return
	}
	from := h.selector.Active().Name()
	if err := h.selector.SetActive(name); err != nil {
		h.Error(c, apperror.NewValidation(err.Error()).WithDetail("field", "engine"))
		return
	}

	logger.Info(c.Request.Context(), "active engine changed", "from", from, "to", name)
	h.OK(c, h.state())
}

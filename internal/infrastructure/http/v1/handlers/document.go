package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"docengine/internal/core/apperror"
	"docengine/internal/core/dockind"
	"docengine/internal/domain/documents"
	"docengine/internal/infrastructure/http/v1/dto"
)

// DocumentService is the document use case surface used by the handler.
// Satisfied by *documents.Service.
type DocumentService interface {
	Create(ctx context.Context, schema string, kind dockind.Kind, req documents.CreateRequest) (*documents.Document, error)
	Peek(ctx context.Context, schema string, kind dockind.Kind) (int64, error)
	Get(ctx context.Context, schema string, kind dockind.Kind, number int64) (*documents.Document, error)
}

// DocumentHandler serves /documents/:kind.
type DocumentHandler struct {
	*BaseHandler
	service  DocumentService
	location *time.Location
}

// NewDocumentHandler creates a document handler. Dates without a zone are
// read in loc (time.Local when nil).
func NewDocumentHandler(base *BaseHandler, service DocumentService, loc *time.Location) *DocumentHandler {
	if loc == nil {
		loc = time.Local
	}
	return &DocumentHandler{BaseHandler: base, service: service, location: loc}
}

// RegisterRoutes registers document routes on rg.
func (h *DocumentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/:kind", h.Create)
	rg.GET("/:kind/next-number", h.NextNumber)
	rg.GET("/:kind/:number", h.Get)
}

func (h *DocumentHandler) kind(c *gin.Context) (dockind.Kind, bool) {
	k, err := dockind.Parse(c.Param("kind"))
	if err != nil {
		h.Error(c, apperror.NewValidation(err.Error()).WithDetail("kind", c.Param("kind")))
		return "", false
	}
	return k, true
}

// Create handles POST /documents/:kind
func (h *DocumentHandler) Create(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	schema, ok := h.Schema(c)
	if !ok {
		return
	}

	var req dto.CreateDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain(h.location)
	if err != nil {
		h.Error(c, err)
		return
	}

	doc, err := h.service.Create(c.Request.Context(), schema, kind, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromDocument(doc))
}

// NextNumber handles GET /documents/:kind/next-number
func (h *DocumentHandler) NextNumber(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	schema, ok := h.Schema(c)
	if !ok {
		return
	}

	n, err := h.service.Peek(c.Request.Context(), schema, kind)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NextNumberResponse{Kind: string(kind), Number: n})
}

// Get handles GET /documents/:kind/:number
func (h *DocumentHandler) Get(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	number, err := strconv.ParseInt(c.Param("number"), 10, 64)
	if err != nil || number < 1 {
		h.Error(c, apperror.NewValidation("invalid document number").WithDetail("number", c.Param("number")))
		return
	}
	schema, ok := h.Schema(c)
	if !ok {
		return
	}

	doc, err := h.service.Get(c.Request.Context(), schema, kind, number)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDocument(doc))
}

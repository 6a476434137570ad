package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"docengine/internal/core/apperror"
	"docengine/internal/core/types"
	"docengine/internal/domain/documents"
)

// DateLayout is the wire format of document dates.
const DateLayout = "2006-01-02"

// --- Request DTOs ---

// CreateDocumentRequest is the body of POST /documents/:kind.
// Amounts accept JSON numbers or strings.
type CreateDocumentRequest struct {
	PartyCode     string              `json:"party_code" binding:"required"`
	Date          string              `json:"date,omitempty"`
	Lines         []DocumentLineInput `json:"lines" binding:"required,min=1,dive"`
	StampTax      decimal.Decimal     `json:"stamp_tax"`
	OtherTax      decimal.Decimal     `json:"other_tax"`
	DeliveryNotes []int64             `json:"delivery_notes,omitempty"`
}

// DocumentLineInput is one requested line.
type DocumentLineInput struct {
	ArticleCode string          `json:"article_code" binding:"required"`
	Qty         decimal.Decimal `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VATRate     decimal.Decimal `json:"vat_rate"`
}

// ToDomain converts the request. Only the date is parsed here; the
// remaining rules are checked by the document service.
func (r CreateDocumentRequest) ToDomain(loc *time.Location) (documents.CreateRequest, error) {
	out := documents.CreateRequest{
		PartyCode:     r.PartyCode,
		StampTax:      r.StampTax,
		OtherTax:      r.OtherTax,
		DeliveryNotes: r.DeliveryNotes,
		Lines:         make([]documents.LineInput, len(r.Lines)),
	}
	if r.Date != "" {
		d, err := time.ParseInLocation(DateLayout, r.Date, loc)
		if err != nil {
			return out, apperror.NewValidation("date must be YYYY-MM-DD").
				WithDetail("field", "date").
				WithDetail("value", r.Date)
		}
		out.Date = &d
	}
	for i, l := range r.Lines {
		out.Lines[i] = documents.LineInput{
			ArticleCode: l.ArticleCode,
			Qty:         l.Qty,
			UnitPrice:   l.UnitPrice,
			VATRate:     l.VATRate,
		}
	}
	return out, nil
}

// --- Response DTOs ---

// DocumentResponse is the summary returned after creation or read-back.
type DocumentResponse struct {
	Kind          string                 `json:"kind"`
	Number        int64                  `json:"number"`
	Party         string                 `json:"party"`
	PartyName     string                 `json:"party_name,omitempty"`
	Date          string                 `json:"date"`
	AmountExclTax json.Number            `json:"amount_excl_tax"`
	VATAmount     json.Number            `json:"vat_amount"`
	StampTax      json.Number            `json:"stamp_tax"`
	OtherTax      json.Number            `json:"other_tax"`
	TotalInclTax  json.Number            `json:"total_incl_tax"`
	Lines         []DocumentLineResponse `json:"lines"`
	Invoiced      bool                   `json:"invoiced,omitempty"`
	LowStock      []string               `json:"low_stock,omitempty"`
	Degraded      bool                   `json:"degraded,omitempty"`
}

// DocumentLineResponse is one line of DocumentResponse.
type DocumentLineResponse struct {
	ArticleCode string      `json:"article_code"`
	Description string      `json:"description"`
	Qty         json.Number `json:"qty"`
	UnitPrice   json.Number `json:"unit_price"`
	VATRate     json.Number `json:"vat_rate"`
	LineTotal   json.Number `json:"line_total"`
}

// FromDocument maps a domain document to its response.
func FromDocument(d *documents.Document) DocumentResponse {
	resp := DocumentResponse{
		Kind:          string(d.Kind),
		Number:        d.Number,
		Party:         d.PartyCode,
		PartyName:     d.PartyName,
		Date:          d.Date.Format(DateLayout),
		AmountExclTax: types.MoneyJSON(d.AmountExclTax),
		VATAmount:     types.MoneyJSON(d.VATAmount),
		StampTax:      types.MoneyJSON(d.StampTax),
		OtherTax:      types.MoneyJSON(d.OtherTax),
		TotalInclTax:  types.MoneyJSON(d.TotalInclTax),
		Lines:         make([]DocumentLineResponse, len(d.Lines)),
		Invoiced:      d.Invoiced,
		LowStock:      d.LowStock,
		Degraded:      d.Degraded,
	}
	for i, l := range d.Lines {
		resp.Lines[i] = DocumentLineResponse{
			ArticleCode: l.ArticleCode,
			Description: l.Description,
			Qty:         types.QuantityJSON(l.Qty),
			UnitPrice:   types.MoneyJSON(l.UnitPrice),
			VATRate:     types.QuantityJSON(l.VATRate),
			LineTotal:   types.MoneyJSON(l.LineTotal),
		}
	}
	return resp
}

// NextNumberResponse is returned by GET /documents/:kind/next-number.
type NextNumberResponse struct {
	Kind   string `json:"kind"`
	Number int64  `json:"number"`
}

// EngineResponse describes the engine selection.
type EngineResponse struct {
	Active    string   `json:"active"`
	Available []string `json:"available"`
}

// SetEngineRequest is the body of PUT /admin/engine.
type SetEngineRequest struct {
	Engine string `json:"engine" binding:"required"`
}

// Package documents creates commercial documents (delivery notes, invoices,
// proformas, purchase orders and purchase invoices) across storage engines.
package documents

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"docengine/internal/core/apperror"
	"docengine/internal/core/dockind"
	"docengine/internal/core/types"
)

// LineInput is one requested document line.
type LineInput struct {
	ArticleCode string
	Qty         types.Quantity
	UnitPrice   types.Money
	VATRate     decimal.Decimal
}

// CreateRequest is the input of Service.Create.
type CreateRequest struct {
	PartyCode string
	// Date defaults to today.
	Date  *time.Time
	Lines []LineInput

	// StampTax and OtherTax are only accepted on invoices.
	StampTax types.Money
	OtherTax types.Money

	// DeliveryNotes lists delivery notes invoiced by this invoice.
	DeliveryNotes []int64
}

var hundred = decimal.NewFromInt(100)

// Validate checks the request shape against the kind. Referenced entities
// are validated later against storage.
func (r *CreateRequest) Validate(d dockind.Descriptor) error {
	r.PartyCode = strings.TrimSpace(r.PartyCode)
	if r.PartyCode == "" {
		return apperror.NewValidation("party_code is required").
			WithDetail("field", "party_code")
	}

	if len(r.Lines) == 0 {
		return apperror.NewValidation("document must have at least one line").
			WithDetail("field", "lines")
	}

	for i := range r.Lines {
		l := &r.Lines[i]
		l.ArticleCode = strings.TrimSpace(l.ArticleCode)
		field := func(name string) string { return fmt.Sprintf("lines[%d].%s", i, name) }

		if l.ArticleCode == "" {
			return apperror.NewValidation(fmt.Sprintf("line %d: article_code is required", i+1)).
				WithDetail("field", field("article_code"))
		}
		if !l.Qty.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("line %d: qty must be positive", i+1)).
				WithDetail("field", field("qty"))
		}
		if l.UnitPrice.IsNegative() {
			return apperror.NewValidation(fmt.Sprintf("line %d: unit_price cannot be negative", i+1)).
				WithDetail("field", field("unit_price"))
		}
		if l.VATRate.IsNegative() || l.VATRate.GreaterThan(hundred) {
			return apperror.NewValidation(fmt.Sprintf("line %d: vat_rate must be between 0 and 100", i+1)).
				WithDetail("field", field("vat_rate"))
		}
	}

	if r.StampTax.IsNegative() || r.OtherTax.IsNegative() {
		return apperror.NewValidation("taxes cannot be negative")
	}
	if !d.AllowsExtraTaxes && (!r.StampTax.IsZero() || !r.OtherTax.IsZero()) {
		return apperror.NewValidation(fmt.Sprintf("%s does not accept stamp_tax or other_tax", d.Kind)).
			WithDetail("kind", string(d.Kind))
	}

	if len(r.DeliveryNotes) > 0 && d.Kind != dockind.Invoice {
		return apperror.NewValidation("delivery_notes can only be referenced by an invoice").
			WithDetail("field", "delivery_notes")
	}
	for _, n := range r.DeliveryNotes {
		if n < 1 {
			return apperror.NewValidation(fmt.Sprintf("invalid delivery note number %d", n)).
				WithDetail("field", "delivery_notes")
		}
	}
	return nil
}

// Line is a persisted document line.
type Line struct {
	ArticleCode string
	Description string
	Qty         types.Quantity
	UnitPrice   types.Money
	VATRate     decimal.Decimal
	LineTotal   types.Money
	VATAmount   types.Money
}

// Totals are the header amounts.
type Totals struct {
	AmountExclTax types.Money
	VATAmount     types.Money
	StampTax      types.Money
	OtherTax      types.Money
	TotalInclTax  types.Money
}

// Document is a created or loaded document.
type Document struct {
	Kind      dockind.Kind
	Number    int64
	PartyCode string
	PartyName string
	Date      time.Time
	Totals
	Lines    []Line
	Invoiced bool

	// LowStock lists articles this document took under their reorder threshold.
	LowStock []string

	// Degraded is set when the document was written without a transaction.
	Degraded bool
}

// Package dockind defines the closed set of commercial document kinds and the
// static descriptor (tables, columns, stock effect) each kind carries.
package dockind

import (
	"fmt"
	"strings"
)

// Kind identifies a commercial document type.
type Kind string

const (
	DeliveryNote    Kind = "delivery_note"
	Invoice         Kind = "invoice"
	Proforma        Kind = "proforma"
	PurchaseOrder   Kind = "purchase_order"
	PurchaseInvoice Kind = "purchase_invoice"
)

// All lists every supported kind in a stable order.
var All = []Kind{DeliveryNote, Invoice, Proforma, PurchaseOrder, PurchaseInvoice}

// Parse converts an external name into a Kind.
// Accepts the canonical names plus the short aliases used by older clients (bl, facture, ...).
func Parse(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	if k, ok := aliases[name]; ok {
		return k, nil
	}
	for _, k := range All {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown document kind %q", s)
}

var aliases = map[string]Kind{
	"bl":             DeliveryNote,
	"delivery_notes": DeliveryNote,
	"facture":        Invoice,
	"invoices":       Invoice,
	"proformas":      Proforma,
	"bc":             PurchaseOrder,
	"bon_commande":   PurchaseOrder,
	"facture_achat":  PurchaseInvoice,
}

func (k Kind) String() string { return string(k) }

// IsSales reports whether the kind is issued to a client.
func (k Kind) IsSales() bool {
	switch k {
	case DeliveryNote, Invoice, Proforma:
		return true
	}
	return false
}

// PartyRole names which party catalog a document references.
type PartyRole string

const (
	PartyClient   PartyRole = "client"
	PartySupplier PartyRole = "supplier"
)

// Counter selects one of the two per-article stock counters.
type Counter string

const (
	// CounterConfirmed is the invoiced/committed quantity (stock_f).
	CounterConfirmed Counter = "stock_confirmed"
	// CounterInTransit is the delivery-note level quantity (stock_bl).
	CounterInTransit Counter = "stock_intransit"
)

// Column returns the article column backing the counter.
func (c Counter) Column() string {
	switch c {
	case CounterConfirmed:
		return "stock_f"
	case CounterInTransit:
		return "stock_bl"
	}
	return ""
}

// Valid reports whether c is one of the known counters.
func (c Counter) Valid() bool {
	return c.Column() != ""
}

// ParseCounter accepts both the logical names and the column names.
func ParseCounter(s string) (Counter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(CounterConfirmed), "stock_f", "confirmed":
		return CounterConfirmed, nil
	case string(CounterInTransit), "stock_bl", "intransit", "in_transit":
		return CounterInTransit, nil
	}
	return "", fmt.Errorf("unknown stock counter %q", s)
}

// Direction is the sign applied to line quantities when adjusting stock.
type Direction int

const (
	NoEffect  Direction = 0
	Decrement Direction = -1
	Increment Direction = 1
)

// StockEffect describes how a document kind moves stock.
type StockEffect struct {
	Counter   Counter
	Direction Direction
	// Check requires qty <= available before any write.
	Check bool
}

// None reports whether the kind leaves stock untouched.
func (e StockEffect) None() bool {
	return e.Direction == NoEffect
}

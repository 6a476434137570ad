package dockind

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Descriptor is the static storage description of a document kind.
type Descriptor struct {
	Kind         Kind
	HeaderTable  string
	DetailTable  string
	NumberColumn string
	PartyColumn  string
	Party        PartyRole
	Stock        StockEffect
	// Routine is the name fragment used by routine-based engines
	// (insert_<routine>, insert_detail_<routine>, ...).
	Routine string
	// AllowsExtraTaxes enables stamp tax and other tax on the header.
	AllowsExtraTaxes bool
}

// defaults is the built-in descriptor table.
var defaults = map[Kind]Descriptor{
	DeliveryNote: {
		Kind: DeliveryNote, HeaderTable: "bl", DetailTable: "detail_bl",
		NumberColumn: "nfact", PartyColumn: "nclient", Party: PartyClient,
		Stock:   StockEffect{Counter: CounterInTransit, Direction: Decrement, Check: true},
		Routine: "bl",
	},
	Invoice: {
		Kind: Invoice, HeaderTable: "facture", DetailTable: "detail_fact",
		NumberColumn: "nfact", PartyColumn: "nclient", Party: PartyClient,
		Stock:            StockEffect{Counter: CounterConfirmed, Direction: Decrement, Check: true},
		Routine:          "invoice",
		AllowsExtraTaxes: true,
	},
	Proforma: {
		Kind: Proforma, HeaderTable: "proforma", DetailTable: "detail_proforma",
		NumberColumn: "nfact", PartyColumn: "nclient", Party: PartyClient,
		Routine: "proforma",
	},
	PurchaseOrder: {
		Kind: PurchaseOrder, HeaderTable: "bon_commande", DetailTable: "detail_bc",
		NumberColumn: "nbc", PartyColumn: "nfournisseur", Party: PartySupplier,
		Routine: "purchase_order",
	},
	PurchaseInvoice: {
		Kind: PurchaseInvoice, HeaderTable: "facture_achat", DetailTable: "detail_facture_achat",
		NumberColumn: "nfact_achat", PartyColumn: "nfournisseur", Party: PartySupplier,
		Stock:   StockEffect{Counter: CounterConfirmed, Direction: Increment},
		Routine: "purchase_invoice",
	},
}

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Validate checks that every table, column and routine name is a plain
// lowercase identifier, so adapters may interpolate them.
func (d Descriptor) Validate() error {
	names := map[string]string{
		"header_table":  d.HeaderTable,
		"detail_table":  d.DetailTable,
		"number_column": d.NumberColumn,
		"party_column":  d.PartyColumn,
		"routine":       d.Routine,
	}
	for field, v := range names {
		if !identifierRe.MatchString(v) {
			return fmt.Errorf("%s: %s %q is not a valid identifier", d.Kind, field, v)
		}
	}
	if d.Party != PartyClient && d.Party != PartySupplier {
		return fmt.Errorf("%s: unknown party role %q", d.Kind, d.Party)
	}
	if !d.Stock.None() && !d.Stock.Counter.Valid() {
		return fmt.Errorf("%s: stock effect without a valid counter", d.Kind)
	}
	if d.Stock.Check && d.Stock.Direction != Decrement {
		return fmt.Errorf("%s: stock check only applies to decrements", d.Kind)
	}
	return nil
}

// Table is an immutable set of descriptors, one per kind.
type Table struct {
	byKind map[Kind]Descriptor
}

// DefaultTable returns the built-in descriptors.
func DefaultTable() *Table {
	t := &Table{byKind: make(map[Kind]Descriptor, len(defaults))}
	for k, d := range defaults {
		t.byKind[k] = d
	}
	return t
}

// Lookup returns the descriptor for k.
func (t *Table) Lookup(k Kind) (Descriptor, bool) {
	d, ok := t.byKind[k]
	return d, ok
}

// MustLookup is Lookup for kinds known to be present.
func (t *Table) MustLookup(k Kind) Descriptor {
	d, ok := t.byKind[k]
	if !ok {
		panic("dockind: no descriptor for " + string(k))
	}
	return d
}

// Kinds returns the configured kinds sorted by name.
func (t *Table) Kinds() []Kind {
	out := make([]Kind, 0, len(t.byKind))
	for k := range t.byKind {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Override carries the configurable fields of a descriptor.
// Empty fields keep the built-in value.
type Override struct {
	HeaderTable    string `mapstructure:"header_table"`
	DetailTable    string `mapstructure:"detail_table"`
	NumberColumn   string `mapstructure:"number_column"`
	PartyColumn    string `mapstructure:"party_column"`
	Routine        string `mapstructure:"routine"`
	StockCounter   string `mapstructure:"stock_counter"`
	StockDirection string `mapstructure:"stock_direction"` // decrement, increment, none
	StockCheck     *bool  `mapstructure:"stock_check"`
}

// DecodeOverrides converts a raw configuration map (as produced by viper)
// into typed overrides keyed by kind.
func DecodeOverrides(raw map[string]any) (map[Kind]Override, error) {
	out := make(map[Kind]Override, len(raw))
	for name, v := range raw {
		k, err := Parse(name)
		if err != nil {
			return nil, err
		}
		var o Override
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &o,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(v); err != nil {
			return nil, fmt.Errorf("kind %s: %w", name, err)
		}
		out[k] = o
	}
	return out, nil
}

// WithOverrides returns a new table with the overrides applied on top of t.
func (t *Table) WithOverrides(overrides map[Kind]Override) (*Table, error) {
	next := &Table{byKind: make(map[Kind]Descriptor, len(t.byKind))}
	for k, d := range t.byKind {
		next.byKind[k] = d
	}
	for k, o := range overrides {
		d, ok := next.byKind[k]
		if !ok {
			return nil, fmt.Errorf("override for unknown kind %q", k)
		}
		applyString(&d.HeaderTable, o.HeaderTable)
		applyString(&d.DetailTable, o.DetailTable)
		applyString(&d.NumberColumn, o.NumberColumn)
		applyString(&d.PartyColumn, o.PartyColumn)
		applyString(&d.Routine, o.Routine)
		if o.StockCounter != "" {
			c, err := ParseCounter(o.StockCounter)
			if err != nil {
				return nil, fmt.Errorf("kind %s: %w", k, err)
			}
			d.Stock.Counter = c
		}
		switch strings.ToLower(o.StockDirection) {
		case "":
		case "decrement":
			d.Stock.Direction = Decrement
		case "increment":
			d.Stock.Direction = Increment
			d.Stock.Check = false
		case "none":
			d.Stock = StockEffect{}
		default:
			return nil, fmt.Errorf("kind %s: unknown stock direction %q", k, o.StockDirection)
		}
		if o.StockCheck != nil {
			d.Stock.Check = *o.StockCheck
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		next.byKind[k] = d
	}
	return next, nil
}

func applyString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

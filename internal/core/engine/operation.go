package engine

import (
	"fmt"
	"strings"

	"docengine/internal/core/dockind"
)

// Operation is an abstract storage operation name.
type Operation string

const (
	OpGetClient       Operation = "get_client"
	OpGetSupplier     Operation = "get_supplier"
	OpGetArticle      Operation = "get_article"
	OpGetArticleStock Operation = "get_article_stock"
	OpAllocateNumber  Operation = "allocate_number"
	OpPeekNumber      Operation = "peek_number"
	OpInsertHeader    Operation = "insert_header"
	OpInsertLine      Operation = "insert_line"
	OpAdjustStock     Operation = "adjust_stock"
	OpMarkInvoiced    Operation = "mark_invoiced"
	OpGetHeader       Operation = "get_header"
	OpGetLines        Operation = "get_lines"
)

// Argument names shared by the signatures.
const (
	ArgCode          = "code"
	ArgCounter       = "counter"
	ArgDelta         = "delta"
	ArgNumber        = "number"
	ArgParty         = "party"
	ArgDate          = "date"
	ArgAmountExclTax = "amount_excl_tax"
	ArgVATAmount     = "vat_amount"
	ArgStampTax      = "stamp_tax"
	ArgOtherTax      = "other_tax"
	ArgArticle       = "article"
	ArgQty           = "qty"
	ArgUnitPrice     = "unit_price"
	ArgVATRate       = "vat_rate"
	ArgLineTotal     = "line_total"
)

// Signature fixes the shape of an operation for every engine.
// Routine-based engines call Routine (with %s replaced by the descriptor
// routine for kinded operations) passing the tenant first, then Args in order.
type Signature struct {
	Routine string
	Args    []string
	Kinded  bool
	Writes  bool
}

var signatures = map[Operation]Signature{
	OpGetClient:       {Routine: "get_client_by_code", Args: []string{ArgCode}},
	OpGetSupplier:     {Routine: "get_supplier_by_code", Args: []string{ArgCode}},
	OpGetArticle:      {Routine: "get_article_by_code", Args: []string{ArgCode}},
	OpGetArticleStock: {Routine: "get_article_stock", Args: []string{ArgCode, ArgCounter}},
	OpAllocateNumber:  {Routine: "allocate_%s_number", Kinded: true, Writes: true},
	OpPeekNumber:      {Routine: "get_next_%s_number", Kinded: true},
	OpInsertHeader: {
		Routine: "insert_%s",
		Args:    []string{ArgNumber, ArgParty, ArgDate, ArgAmountExclTax, ArgVATAmount, ArgStampTax, ArgOtherTax},
		Kinded:  true,
		Writes:  true,
	},
	OpInsertLine: {
		Routine: "insert_detail_%s",
		Args:    []string{ArgNumber, ArgArticle, ArgQty, ArgUnitPrice, ArgVATRate, ArgLineTotal},
		Kinded:  true,
		Writes:  true,
	},
	OpAdjustStock:  {Routine: "adjust_article_stock", Args: []string{ArgCode, ArgCounter, ArgDelta}, Writes: true},
	OpMarkInvoiced: {Routine: "mark_bl_invoiced", Args: []string{ArgNumber}, Writes: true},
	OpGetHeader:    {Routine: "get_%s_by_number", Args: []string{ArgNumber}, Kinded: true},
	OpGetLines:     {Routine: "get_%s_details", Args: []string{ArgNumber}, Kinded: true},
}

// Operations returns every known operation. Engines are expected to serve all of them.
func Operations() []Operation {
	out := make([]Operation, 0, len(signatures))
	for op := range signatures {
		out = append(out, op)
	}
	return out
}

// SignatureOf returns the signature of op.
func SignatureOf(op Operation) (Signature, bool) {
	s, ok := signatures[op]
	return s, ok
}

// Args holds named operation arguments.
type Args map[string]any

// Call is one abstract invocation.
type Call struct {
	Op     Operation
	Tenant string
	Kind   *dockind.Descriptor
	Args   Args
}

// NewCall builds a call for a tenant.
func NewCall(op Operation, tenant string, args Args) Call {
	return Call{Op: op, Tenant: tenant, Args: args}
}

// ForKind attaches a document-kind descriptor.
func (c Call) ForKind(d dockind.Descriptor) Call {
	c.Kind = &d
	return c
}

// Validate checks the call against its signature.
func (c Call) Validate() (Signature, error) {
	sig, ok := signatures[c.Op]
	if !ok {
		return Signature{}, Errorf(KindValidation, "unknown operation %q", c.Op)
	}
	if c.Tenant == "" {
		return sig, Errorf(KindValidation, "%s: tenant is required", c.Op)
	}
	if sig.Kinded && c.Kind == nil {
		return sig, Errorf(KindValidation, "%s: document kind is required", c.Op)
	}
	for _, name := range sig.Args {
		if _, ok := c.Args[name]; !ok {
			return sig, Errorf(KindValidation, "%s: missing argument %q", c.Op, name)
		}
	}
	if len(c.Args) != len(sig.Args) {
		for name := range c.Args {
			if !contains(sig.Args, name) {
				return sig, Errorf(KindValidation, "%s: unexpected argument %q", c.Op, name)
			}
		}
	}
	return sig, nil
}

// Routine returns the concrete routine name for routine-based engines.
func (c Call) Routine() string {
	sig := signatures[c.Op]
	if sig.Kinded && c.Kind != nil {
		return fmt.Sprintf(sig.Routine, c.Kind.Routine)
	}
	return sig.Routine
}

// Positional returns argument values in signature order.
// Counters are passed as their column names.
func (c Call) Positional() []any {
	sig := signatures[c.Op]
	out := make([]any, 0, len(sig.Args))
	for _, name := range sig.Args {
		out = append(out, normalizeArg(c.Args[name]))
	}
	return out
}

// Named returns argument names prefixed the way routines declare them (p_code, ...).
func (c Call) Named() []string {
	sig := signatures[c.Op]
	out := make([]string, 0, len(sig.Args))
	for _, name := range sig.Args {
		out = append(out, "p_"+name)
	}
	return out
}

// String returns a stable description for logs and spans.
func (c Call) String() string {
	var b strings.Builder
	b.WriteString(string(c.Op))
	if c.Kind != nil {
		b.WriteString("[")
		b.WriteString(string(c.Kind.Kind))
		b.WriteString("]")
	}
	return b.String()
}

func normalizeArg(v any) any {
	if c, ok := v.(dockind.Counter); ok {
		return c.Column()
	}
	return v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

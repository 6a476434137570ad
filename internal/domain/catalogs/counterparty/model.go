// Package counterparty provides read access to clients and suppliers.
// Parties are maintained elsewhere; documents only validate them by reference.
package counterparty

import (
	"github.com/shopspring/decimal"

	"docengine/internal/core/dockind"
)

// Counterparty is a client or a supplier of a tenant.
type Counterparty struct {
	Role    dockind.PartyRole `mapstructure:"-" json:"role"`
	Code    string            `mapstructure:"code" json:"code"`
	Name    string            `mapstructure:"name" json:"name"`
	Address string            `mapstructure:"address" json:"address,omitempty"`
	Contact string            `mapstructure:"contact" json:"contact,omitempty"`
	Phone   string            `mapstructure:"phone" json:"phone,omitempty"`
	Email   string            `mapstructure:"email" json:"email,omitempty"`

	// NRC is the trade register number, NIF the tax identification number.
	NRC string `mapstructure:"nrc" json:"nrc,omitempty"`
	NIF string `mapstructure:"nif" json:"nif,omitempty"`

	Balance decimal.Decimal `mapstructure:"balance" json:"balance"`
}

// IsClient returns true if counterparty was loaded as a client.
func (c *Counterparty) IsClient() bool {
	return c.Role == dockind.PartyClient
}

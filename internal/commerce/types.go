// Package commerce holds the order-management side of the platform: orders,
// stores, vendors and their persisted settings. The payment integration only
// reads and updates the fields it needs and never owns these lifecycles.
package commerce

import (
	"time"

	"github.com/shopspring/decimal"
)

// AddressType is a bitmask of address roles on an order.
type AddressType int

const (
	AddressBilling  AddressType = 1
	AddressShipping AddressType = 2
)

// Address is a billing or shipping address attached to an order.
type Address struct {
	Type        AddressType `json:"type"`
	Name        string      `json:"name,omitempty"`
	FirstName   string      `json:"first_name,omitempty"`
	LastName    string      `json:"last_name,omitempty"`
	Email       string      `json:"email,omitempty"`
	Line1       string      `json:"line1,omitempty"`
	Line2       string      `json:"line2,omitempty"`
	City        string      `json:"city,omitempty"`
	PostalCode  string      `json:"postal_code,omitempty"`
	CountryName string      `json:"country_name,omitempty"`
}

// LineItem is a single purchased product line on an order.
type LineItem struct {
	ID                  string           `json:"id"`
	ProductID           string           `json:"product_id"`
	Name                string           `json:"name"`
	Quantity            int              `json:"quantity"`
	PriceWithTax        decimal.Decimal  `json:"price_with_tax"`
	Cost                *decimal.Decimal `json:"cost,omitempty"`
	ExtendedCostWithTax *decimal.Decimal `json:"extended_cost_with_tax,omitempty"`
}

// PaymentStatus is the lifecycle state of an order payment.
type PaymentStatus string

const (
	PaymentNew     PaymentStatus = "New"
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
)

// Payment is an inbound payment operation on an order.
type Payment struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	GatewayCode  string          `json:"gateway_code"`
	Sum          decimal.Decimal `json:"sum"`
	Status       PaymentStatus   `json:"status"`
	OuterID      string          `json:"outer_id,omitempty"`
	IsApproved   bool            `json:"is_approved"`
	AuthorizedAt *time.Time      `json:"authorized_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Order is a customer order with its addresses, items and payments.
type Order struct {
	ID         string          `json:"id"`
	Number     string          `json:"number"`
	StoreID    string          `json:"store_id"`
	CustomerID string          `json:"customer_id,omitempty"`
	Total      decimal.Decimal `json:"total"`
	TaxTotal   decimal.Decimal `json:"tax_total"`
	Addresses  []Address       `json:"addresses,omitempty"`
	Items      []LineItem      `json:"items,omitempty"`
	InPayments []*Payment      `json:"in_payments,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// BillingAddress returns the order's billing address, or nil when absent.
func (o *Order) BillingAddress() *Address {
	for i := range o.Addresses {
		if o.Addresses[i].Type&AddressBilling == AddressBilling {
			return &o.Addresses[i]
		}
	}
	return nil
}

// ShippingAddress returns the order's shipping address, or nil when absent.
func (o *Order) ShippingAddress() *Address {
	for i := range o.Addresses {
		if o.Addresses[i].Type&AddressShipping == AddressShipping {
			return &o.Addresses[i]
		}
	}
	return nil
}

// PaymentMethodConfig is a payment method registration on a store.
type PaymentMethodConfig struct {
	Code     string `json:"code"`
	IsActive bool   `json:"is_active"`
}

// Storefront is a store with its registered payment methods.
type Storefront struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	PaymentMethods []PaymentMethodConfig `json:"payment_methods,omitempty"`
}

// ActiveMethod returns the active payment method with the given code, or nil.
func (s *Storefront) ActiveMethod(code string) *PaymentMethodConfig {
	for i := range s.PaymentMethods {
		if s.PaymentMethods[i].IsActive && s.PaymentMethods[i].Code == code {
			return &s.PaymentMethods[i]
		}
	}
	return nil
}

// Product is the catalog view the payment split needs: product to vendor.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	VendorID string `json:"vendor_id,omitempty"`
}

// Vendor is a marketplace vendor with its gateway account identity.
type Vendor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ClientID int    `json:"client_id"`
	Username string `json:"username"`
	EntityID int    `json:"entity_id"`
}

package easypay

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"commerceplatform/internal/commerce"
	"commerceplatform/internal/easypay/gateway"
)

// CatalogSource resolves products for the vendor assignment of order lines.
type CatalogSource interface {
	ProductsByIDs(ctx context.Context, ids []string) ([]commerce.Product, error)
}

// VendorSource resolves vendors with their gateway account identity.
type VendorSource interface {
	VendorsByIDs(ctx context.Context, ids []string) ([]commerce.Vendor, error)
}

// Calculator computes the per-vendor and platform split of an order's
// payment.
type Calculator struct {
	catalog  CatalogSource
	vendors  VendorSource
	settings SettingsSource
	logger   *slog.Logger
}

// NewCalculator creates a split calculator.
func NewCalculator(catalog CatalogSource, vendors VendorSource, settings SettingsSource, logger *slog.Logger) *Calculator {
	return &Calculator{catalog: catalog, vendors: vendors, settings: settings, logger: logger}
}

// ForOrder produces one split entry per distinct vendor plus exactly one
// platform entry. Each vendor amount is that vendor's summed tax-inclusive
// extended cost rounded half-to-even to two digits; the platform amount is
// the rounded payment sum minus all vendor amounts, computed last, so the
// entries always reproduce the rounded total exactly.
func (c *Calculator) ForOrder(ctx context.Context, order *commerce.Order, payment *commerce.Payment) ([]gateway.Split, error) {
	productIDs := make([]string, 0, len(order.Items))
	seen := make(map[string]bool, len(order.Items))
	for _, item := range order.Items {
		if item.ExtendedCostWithTax == nil {
			return nil, validationErrorf("order %s is missing a cost value", order.Number)
		}
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			productIDs = append(productIDs, item.ProductID)
		}
	}

	products, err := c.catalog.ProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	vendorByProduct := make(map[string]string, len(products))
	for _, p := range products {
		if p.VendorID == "" {
			return nil, validationErrorf("order %s is missing a vendor assignment", order.Number)
		}
		vendorByProduct[p.ID] = p.VendorID
	}

	// Sum per vendor first, round each vendor total once.
	vendorTotals := make(map[string]decimal.Decimal)
	vendorOrder := make([]string, 0)
	for _, item := range order.Items {
		vendorID, ok := vendorByProduct[item.ProductID]
		if !ok {
			return nil, validationErrorf("order %s is missing a vendor assignment", order.Number)
		}
		if _, ok := vendorTotals[vendorID]; !ok {
			vendorOrder = append(vendorOrder, vendorID)
		}
		vendorTotals[vendorID] = vendorTotals[vendorID].Add(*item.ExtendedCostWithTax)
	}
	for id, total := range vendorTotals {
		vendorTotals[id] = total.RoundBank(2)
	}

	vendors, err := c.vendors.VendorsByIDs(ctx, vendorOrder)
	if err != nil {
		return nil, err
	}
	vendorByID := make(map[string]commerce.Vendor, len(vendors))
	for _, v := range vendors {
		vendorByID[v.ID] = v
	}

	settings, err := c.settings.ModuleSettings(ctx)
	if err != nil {
		return nil, err
	}

	total := payment.Sum.RoundBank(2)
	vendorSum := decimal.Zero
	for _, id := range vendorOrder {
		vendorSum = vendorSum.Add(vendorTotals[id])
	}

	splits := make([]gateway.Split, 0, len(vendorOrder)+1)
	splits = append(splits, gateway.Split{
		ClientID: settings.AccountClientID,
		Username: settings.AccountUsername,
		EntityID: settings.AccountEntityID,
		Value:    total.Sub(vendorSum),
	})

	for _, id := range vendorOrder {
		vendor, ok := vendorByID[id]
		if !ok {
			return nil, notFoundErrorf("vendor %s not found", id)
		}
		splits = append(splits, gateway.Split{
			ClientID: vendor.ClientID,
			Username: vendor.Username,
			EntityID: vendor.EntityID,
			Value:    vendorTotals[id],
		})
	}

	c.logger.Debug("payment split computed",
		"order_number", order.Number,
		"vendors", len(vendorOrder),
		"total", total.StringFixedBank(2),
	)

	return splits, nil
}

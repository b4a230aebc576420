package commerce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"commerceplatform/internal/common/database"
)

// Store provides Postgres-backed access to orders, storefronts and vendors.
type Store struct {
	db     *database.DB
	logger *slog.Logger
}

// NewStore creates a new commerce store.
func NewStore(db *database.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// OrderByNumber loads a full order (addresses, items, payments) by its number.
func (s *Store) OrderByNumber(ctx context.Context, number string) (*Order, error) {
	query := `
		SELECT id, number, store_id, customer_id, total, tax_total, created_at
		FROM orders WHERE number = $1
	`

	var o Order
	var customerID *string
	err := s.db.QueryRow(ctx, query, number).Scan(
		&o.ID, &o.Number, &o.StoreID, &customerID, &o.Total, &o.TaxTotal, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", number, database.ErrNotFound)
		}
		return nil, fmt.Errorf("querying order: %w", err)
	}
	if customerID != nil {
		o.CustomerID = *customerID
	}

	if o.Addresses, err = s.orderAddresses(ctx, o.ID); err != nil {
		return nil, err
	}
	if o.Items, err = s.orderItems(ctx, o.ID); err != nil {
		return nil, err
	}
	if o.InPayments, err = s.orderPayments(ctx, o.ID); err != nil {
		return nil, err
	}

	return &o, nil
}

func (s *Store) orderAddresses(ctx context.Context, orderID string) ([]Address, error) {
	query := `
		SELECT address_type, name, first_name, last_name, email,
		       line1, line2, city, postal_code, country_name
		FROM order_addresses WHERE order_id = $1
	`

	rows, err := s.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying order addresses: %w", err)
	}
	defer rows.Close()

	var addresses []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.Type, &a.Name, &a.FirstName, &a.LastName, &a.Email,
			&a.Line1, &a.Line2, &a.City, &a.PostalCode, &a.CountryName); err != nil {
			return nil, fmt.Errorf("scanning order address: %w", err)
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

func (s *Store) orderItems(ctx context.Context, orderID string) ([]LineItem, error) {
	query := `
		SELECT id, product_id, name, quantity, price_with_tax, cost, extended_cost_with_tax
		FROM order_items WHERE order_id = $1
	`

	rows, err := s.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Name, &it.Quantity,
			&it.PriceWithTax, &it.Cost, &it.ExtendedCostWithTax); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) orderPayments(ctx context.Context, orderID string) ([]*Payment, error) {
	query := `
		SELECT id, order_id, gateway_code, sum, payment_status, outer_id,
		       is_approved, authorized_at, created_at, updated_at
		FROM order_payments WHERE order_id = $1 ORDER BY created_at
	`

	rows, err := s.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying order payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		var p Payment
		var outerID *string
		if err := rows.Scan(&p.ID, &p.OrderID, &p.GatewayCode, &p.Sum, &p.Status,
			&outerID, &p.IsApproved, &p.AuthorizedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning order payment: %w", err)
		}
		if outerID != nil {
			p.OuterID = *outerID
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

// SaveOrder persists payment state changes made on an order. Only payment
// rows are written; the rest of the order is owned elsewhere.
func (s *Store) SaveOrder(ctx context.Context, order *Order) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE order_payments
			SET payment_status = $2, outer_id = $3, is_approved = $4,
			    authorized_at = $5, updated_at = $6
			WHERE id = $1
		`
		now := time.Now().UTC()
		for _, p := range order.InPayments {
			var outerID *string
			if p.OuterID != "" {
				outerID = &p.OuterID
			}
			if _, err := tx.Exec(ctx, query, p.ID, p.Status, outerID,
				p.IsApproved, p.AuthorizedAt, now); err != nil {
				return fmt.Errorf("updating payment %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// StoreByID loads a storefront with its payment method registrations.
func (s *Store) StoreByID(ctx context.Context, id string) (*Storefront, error) {
	query := `SELECT id, name FROM stores WHERE id = $1`

	var st Storefront
	err := s.db.QueryRow(ctx, query, id).Scan(&st.ID, &st.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store %s: %w", id, database.ErrNotFound)
		}
		return nil, fmt.Errorf("querying store: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT code, is_active FROM store_payment_methods WHERE store_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("querying store payment methods: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m PaymentMethodConfig
		if err := rows.Scan(&m.Code, &m.IsActive); err != nil {
			return nil, fmt.Errorf("scanning payment method: %w", err)
		}
		st.PaymentMethods = append(st.PaymentMethods, m)
	}
	return &st, rows.Err()
}

// StoreIDsWithActiveMethod lists stores that have an active payment method
// with the given code. Used by the periodic scanner.
func (s *Store) StoreIDsWithActiveMethod(ctx context.Context, code string) ([]string, error) {
	query := `
		SELECT store_id FROM store_payment_methods
		WHERE code = $1 AND is_active ORDER BY store_id
	`

	rows, err := s.db.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("querying stores with method %s: %w", code, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning store id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ProductsByIDs loads catalog products for the given ids.
func (s *Store) ProductsByIDs(ctx context.Context, ids []string) ([]Product, error) {
	query := `SELECT id, name, vendor_id FROM products WHERE id = ANY($1)`

	rows, err := s.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		var vendorID *string
		if err := rows.Scan(&p.ID, &p.Name, &vendorID); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		if vendorID != nil {
			p.VendorID = *vendorID
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// VendorsByIDs loads vendors with their gateway account identity.
func (s *Store) VendorsByIDs(ctx context.Context, ids []string) ([]Vendor, error) {
	query := `SELECT id, name, client_id, username, entity_id FROM vendors WHERE id = ANY($1)`

	rows, err := s.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("querying vendors: %w", err)
	}
	defer rows.Close()

	var vendors []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.ClientID, &v.Username, &v.EntityID); err != nil {
			return nil, fmt.Errorf("scanning vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

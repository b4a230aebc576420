package easypay

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"commerceplatform/internal/commerce"
	"commerceplatform/internal/common/database"
	"commerceplatform/internal/common/events"
	"commerceplatform/internal/easypay/gateway"
)

// OrderSource loads and persists orders.
type OrderSource interface {
	OrderByNumber(ctx context.Context, number string) (*commerce.Order, error)
	SaveOrder(ctx context.Context, order *commerce.Order) error
}

// StoreSource loads stores.
type StoreSource interface {
	StoreByID(ctx context.Context, id string) (*commerce.Storefront, error)
}

// ClientSource resolves gateway clients per store.
type ClientSource interface {
	Get(ctx context.Context, storeID string) (GatewayAPI, error)
}

// PaymentHandler is the per-store payment method surface consumed by
// registration.
type PaymentHandler interface {
	Validate(params url.Values) ValidateResult
	PostProcess(pctx *PostProcessContext) (*PostProcessResult, error)
}

// MethodSource resolves the payment method for a store.
type MethodSource interface {
	ForStore(ctx context.Context, store *commerce.Storefront) (PaymentHandler, error)
}

// SplitSource computes split entries for an order's payment.
type SplitSource interface {
	ForOrder(ctx context.Context, order *commerce.Order, payment *commerce.Payment) ([]gateway.Split, error)
}

// Orchestrator ties the gateway protocol to order state: it generates
// payment references and registers completed payments reported by the
// gateway. It never owns order lifecycles beyond the payment fields it
// updates.
type Orchestrator struct {
	orders    OrderSource
	stores    StoreSource
	clients   ClientSource
	methods   MethodSource
	splits    SplitSource
	settings  SettingsSource
	publisher events.Publisher
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator. The publisher may be nil; events
// are then skipped.
func NewOrchestrator(
	orders OrderSource,
	stores StoreSource,
	clients ClientSource,
	methods MethodSource,
	splits SplitSource,
	settings SettingsSource,
	publisher events.Publisher,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		orders:    orders,
		stores:    stores,
		clients:   clients,
		methods:   methods,
		splits:    splits,
		settings:  settings,
		publisher: publisher,
		logger:    logger,
	}
}

// SetMethods wires the method resolver after construction. The resolver and
// the orchestrator reference each other: the resolver hands out payment
// methods whose reference source is the orchestrator.
func (o *Orchestrator) SetMethods(methods MethodSource) {
	o.methods = methods
}

// resolveStore loads a store and the payment method active on it.
func (o *Orchestrator) resolveStore(ctx context.Context, storeID string) (*commerce.Storefront, PaymentHandler, error) {
	store, err := o.stores.StoreByID(ctx, storeID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil, notFoundErrorf("store %s not found", storeID)
		}
		return nil, nil, err
	}
	handler, err := o.methods.ForStore(ctx, store)
	if err != nil {
		return nil, nil, err
	}
	return store, handler, nil
}

// GetPaymentOrder loads an order by number.
func (o *Orchestrator) GetPaymentOrder(ctx context.Context, number string) (*commerce.Order, error) {
	order, err := o.orders.OrderByNumber(ctx, number)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, notFoundErrorf("order %s not found", number)
		}
		return nil, err
	}
	return order, nil
}

// GetPaymentReference requests a payment reference for an order's payment.
// The billing address supplies the payer identity; the amount is the payment
// sum rounded half-to-even to two digits. When splitRequested is set the
// request carries the computed split entries.
func (o *Orchestrator) GetPaymentReference(ctx context.Context, order *commerce.Order, payment *commerce.Payment, splitRequested bool) (int, error) {
	billing := order.BillingAddress()
	if billing == nil {
		return 0, validationErrorf("order %s has no billing address", order.Number)
	}

	settings, err := o.settings.StoreSettings(ctx, order.StoreID)
	if err != nil {
		return 0, fmt.Errorf("reading settings for store %s: %w", order.StoreID, err)
	}

	req := &gateway.PaymentRequest{
		ClientID:     settings.PaymentClientID,
		Username:     settings.PaymentUsername,
		EntityID:     settings.PaymentEntityID,
		OrderCode:    order.Number,
		Value:        payment.Sum.RoundBank(2),
		Country:      settings.Country,
		Language:     settings.Language,
		CustomerName: billing.FirstName + " " + billing.LastName,
		Email:        billing.Email,
	}

	if splitRequested {
		splits, err := o.splits.ForOrder(ctx, order, payment)
		if err != nil {
			return 0, err
		}
		req.Splits = splits
	}

	client, err := o.clients.Get(ctx, order.StoreID)
	if err != nil {
		return 0, err
	}

	fields, err := client.RequestPaymentReference(ctx, req)
	if err != nil {
		return 0, err
	}

	reference, ok := fields.Int("ep_reference")
	if !ok {
		return 0, &gateway.Error{
			Op:      "reference",
			Message: fmt.Sprintf("failed to generate reference for order %s", order.Number),
		}
	}

	o.logger.Info("payment reference generated",
		"order_number", order.Number,
		"store_id", order.StoreID,
		"split", splitRequested,
	)
	o.publish(ctx, events.EventReferenceGenerated, "order", order.ID, events.ReferenceGeneratedData{
		OrderNumber: order.Number,
		StoreID:     order.StoreID,
		Entity:      settings.PaymentEntityID,
		Reference:   reference,
		Value:       req.Value.StringFixedBank(2),
		Split:       splitRequested,
	})

	return reference, nil
}

// RegisterPayment confirms a gateway-reported payment against a store's
// pending payments. The gateway detail document is fetched, the matching
// order is loaded, and the first pending payment of this method whose rounded
// sum equals the reported value is finalized. Order state is persisted only
// after the transition succeeds. An empty storeID is the module-wide route:
// the detail is fetched through the global client and the store is resolved
// from the matched order.
func (o *Orchestrator) RegisterPayment(ctx context.Context, storeID string, clientID int, username, transactionID, docType string) (*PostProcessResult, error) {
	if transactionID == "" {
		return nil, validationErrorf("transaction id is required")
	}

	var store *commerce.Storefront
	var handler PaymentHandler
	if storeID != "" {
		var err error
		store, handler, err = o.resolveStore(ctx, storeID)
		if err != nil {
			return nil, err
		}
	}

	client, err := o.clients.Get(ctx, storeID)
	if err != nil {
		return nil, err
	}

	detail, err := client.FetchPaymentDetail(ctx, clientID, username, transactionID, docType)
	if err != nil {
		return nil, err
	}

	orderNumber, ok := detail.String("t_key")
	if !ok || orderNumber == "" {
		return nil, validationErrorf("payment detail for document %s carries no order key", transactionID)
	}
	value, ok := detail.Decimal("ep_value")
	if !ok {
		return nil, validationErrorf("payment detail for document %s carries no value", transactionID)
	}

	order, err := o.GetPaymentOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	if store == nil {
		store, handler, err = o.resolveStore(ctx, order.StoreID)
		if err != nil {
			return nil, err
		}
	}

	params := url.Values{"OrderId": []string{order.ID}}
	for name, v := range detail {
		params.Set(name, gateway.EncodeValue(v))
	}

	validated := handler.Validate(params)
	if !validated.OK {
		return nil, validationErrorf("payment notification for order %s is incomplete", orderNumber)
	}

	// Matching is by rounded sum only. Two pending payments of equal value on
	// one order are indistinguishable here; the first is taken.
	var payment *commerce.Payment
	for _, p := range order.InPayments {
		if p.GatewayCode == MethodCode && p.Status == commerce.PaymentPending && p.Sum.RoundBank(2).Equal(value) {
			payment = p
			break
		}
	}
	if payment == nil {
		return nil, notFoundErrorf("order %s has no pending payment of %s", orderNumber, value.StringFixedBank(2))
	}

	result, err := handler.PostProcess(&PostProcessContext{
		Order:      order,
		Payment:    payment,
		Store:      store,
		OuterID:    validated.OuterID,
		Parameters: params,
	})
	if err != nil {
		return nil, err
	}

	if err := o.orders.SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("saving order %s: %w", orderNumber, err)
	}

	o.logger.Info("payment registered",
		"order_number", orderNumber,
		"store_id", storeID,
		"document", transactionID,
	)
	registered := events.PaymentRegisteredData{
		OrderID:       order.ID,
		OrderNumber:   orderNumber,
		PaymentID:     payment.ID,
		TransactionID: transactionID,
		Value:         value.StringFixedBank(2),
	}
	if payment.AuthorizedAt != nil {
		registered.AuthorizedAt = *payment.AuthorizedAt
	}
	o.publish(ctx, events.EventPaymentRegistered, "order", order.ID, registered)

	return result, nil
}

func (o *Orchestrator) publish(ctx context.Context, eventType, aggregateType, aggregateID string, data any) {
	if o.publisher == nil {
		return
	}
	event, err := events.NewEvent(eventType, aggregateType, aggregateID, data)
	if err != nil {
		o.logger.Error("building event failed", "event_type", eventType, "error", err)
		return
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Error("publishing event failed", "event_type", eventType, "error", err)
	}
}

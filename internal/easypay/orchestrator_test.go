package easypay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"commerceplatform/internal/commerce"
	"commerceplatform/internal/common/database"
	"commerceplatform/internal/easypay/gateway"
)

type fakeOrders struct {
	order    *commerce.Order
	orderErr error
	saved    int
	saveErr  error
	lookedUp []string
}

func (f *fakeOrders) OrderByNumber(ctx context.Context, number string) (*commerce.Order, error) {
	f.lookedUp = append(f.lookedUp, number)
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	return f.order, nil
}

func (f *fakeOrders) SaveOrder(ctx context.Context, order *commerce.Order) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved++
	return nil
}

type fakeStores struct {
	store     *commerce.Storefront
	err       error
	requested []string
}

func (f *fakeStores) StoreByID(ctx context.Context, id string) (*commerce.Storefront, error) {
	f.requested = append(f.requested, id)
	if f.err != nil {
		return nil, f.err
	}
	if f.store == nil || id != f.store.ID {
		return nil, fmt.Errorf("store %s: %w", id, database.ErrNotFound)
	}
	return f.store, nil
}

type fakeGateway struct {
	referenceFields gateway.Fields
	referenceErr    error
	detailFields    gateway.Fields
	detailErr       error
	lastRequest     *gateway.PaymentRequest
}

func (f *fakeGateway) RequestPaymentReference(ctx context.Context, req *gateway.PaymentRequest) (gateway.Fields, error) {
	f.lastRequest = req
	if f.referenceErr != nil {
		return nil, f.referenceErr
	}
	return f.referenceFields, nil
}

func (f *fakeGateway) FetchPaymentDetail(ctx context.Context, clientID int, username, transactionID, docType string) (gateway.Fields, error) {
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.detailFields, nil
}

func (f *fakeGateway) FetchPayments(ctx context.Context, clientID int, username string, entityID int, start, end time.Time) ([]gateway.Fields, error) {
	return nil, nil
}

func (f *fakeGateway) FetchFailedPayments(ctx context.Context, clientID int, username string, entityID int) ([]gateway.Fields, error) {
	return nil, nil
}

type fakeClients struct {
	client GatewayAPI
	err    error
}

func (f *fakeClients) Get(ctx context.Context, storeID string) (GatewayAPI, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type fakeSplits struct {
	splits []gateway.Split
	err    error
}

func (f *fakeSplits) ForOrder(ctx context.Context, order *commerce.Order, payment *commerce.Payment) ([]gateway.Split, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.splits, nil
}

func referenceOrder() *commerce.Order {
	return &commerce.Order{
		ID:      "ord-1",
		Number:  "1001",
		StoreID: "store-1",
		Addresses: []commerce.Address{{
			Type:      commerce.AddressBilling,
			FirstName: "Maria",
			LastName:  "Silva",
			Email:     "maria@example.pt",
		}},
		InPayments: []*commerce.Payment{{
			ID:          "pay-1",
			GatewayCode: MethodCode,
			Sum:         decimal.RequireFromString("44.95"),
			Status:      commerce.PaymentPending,
		}},
	}
}

func referenceSettings() *commerce.Settings {
	return &commerce.Settings{
		AuthenticationKey: "key",
		PaymentClientID:   7423,
		PaymentUsername:   "merchant",
		PaymentEntityID:   10611,
		Country:           "PT",
		Language:          "PT",
	}
}

func newTestOrchestrator(orders *fakeOrders, stores *fakeStores, gw *fakeGateway, settings *fakeSettings) *Orchestrator {
	o := NewOrchestrator(
		orders,
		stores,
		&fakeClients{client: gw},
		nil,
		&fakeSplits{},
		settings,
		nil,
		testLogger(),
	)
	o.SetMethods(NewMethodSet(settings, o))
	return o
}

func TestGetPaymentOrder_NotFound(t *testing.T) {
	orders := &fakeOrders{orderErr: database.ErrNotFound}
	o := newTestOrchestrator(orders, &fakeStores{}, &fakeGateway{}, &fakeSettings{settings: referenceSettings()})

	_, err := o.GetPaymentOrder(context.Background(), "nope")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestGetPaymentReference_RequiresBillingAddress(t *testing.T) {
	order := referenceOrder()
	order.Addresses = nil

	gw := &fakeGateway{}
	o := newTestOrchestrator(&fakeOrders{order: order}, &fakeStores{}, gw, &fakeSettings{settings: referenceSettings()})

	_, err := o.GetPaymentReference(context.Background(), order, order.InPayments[0], false)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if gw.lastRequest != nil {
		t.Error("gateway must not be called without a billing address")
	}
}

func TestGetPaymentReference_BuildsRequestFromSettings(t *testing.T) {
	order := referenceOrder()
	gw := &fakeGateway{referenceFields: gateway.Fields{"ep_reference": 123456789}}
	o := newTestOrchestrator(&fakeOrders{order: order}, &fakeStores{}, gw, &fakeSettings{settings: referenceSettings()})

	reference, err := o.GetPaymentReference(context.Background(), order, order.InPayments[0], false)
	if err != nil {
		t.Fatalf("GetPaymentReference: %v", err)
	}
	if reference != 123456789 {
		t.Errorf("reference = %d, want 123456789", reference)
	}

	req := gw.lastRequest
	if req == nil {
		t.Fatal("gateway was not called")
	}
	if req.ClientID != 7423 || req.Username != "merchant" || req.EntityID != 10611 {
		t.Errorf("request identity = %d/%s/%d", req.ClientID, req.Username, req.EntityID)
	}
	if req.OrderCode != "1001" {
		t.Errorf("order code = %q, want 1001", req.OrderCode)
	}
	if req.CustomerName != "Maria Silva" {
		t.Errorf("customer name = %q", req.CustomerName)
	}
	if !req.Value.Equal(decimal.RequireFromString("44.95")) {
		t.Errorf("value = %s, want 44.95", req.Value)
	}
	if len(req.Splits) != 0 {
		t.Errorf("unrequested splits were attached: %d", len(req.Splits))
	}
}

func TestGetPaymentReference_AttachesSplitsWhenRequested(t *testing.T) {
	order := referenceOrder()
	gw := &fakeGateway{referenceFields: gateway.Fields{"ep_reference": 123456789}}

	o := NewOrchestrator(
		&fakeOrders{order: order},
		&fakeStores{},
		&fakeClients{client: gw},
		nil,
		&fakeSplits{splits: []gateway.Split{
			{ClientID: 1, Username: "platform", Value: decimal.RequireFromString("4.95")},
			{ClientID: 2, Username: "vendor", Value: decimal.RequireFromString("40.00")},
		}},
		&fakeSettings{settings: referenceSettings()},
		nil,
		testLogger(),
	)

	if _, err := o.GetPaymentReference(context.Background(), order, order.InPayments[0], true); err != nil {
		t.Fatalf("GetPaymentReference: %v", err)
	}
	if len(gw.lastRequest.Splits) != 2 {
		t.Errorf("got %d splits on the request, want 2", len(gw.lastRequest.Splits))
	}
}

func TestGetPaymentReference_MissingReferenceField(t *testing.T) {
	order := referenceOrder()
	gw := &fakeGateway{referenceFields: gateway.Fields{"ep_status": "ok0"}}
	o := newTestOrchestrator(&fakeOrders{order: order}, &fakeStores{}, gw, &fakeSettings{settings: referenceSettings()})

	_, err := o.GetPaymentReference(context.Background(), order, order.InPayments[0], false)
	var gatewayErr *gateway.Error
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if order.InPayments[0].Status != commerce.PaymentPending {
		t.Error("payment state must not change on a failed reference request")
	}
}

func registerFixture() (*fakeOrders, *fakeStores, *fakeGateway, *fakeSettings) {
	orders := &fakeOrders{order: referenceOrder()}
	stores := &fakeStores{store: &commerce.Storefront{
		ID:   "store-1",
		Name: "Main",
		PaymentMethods: []commerce.PaymentMethodConfig{
			{Code: MethodCode, IsActive: true},
		},
	}}
	gw := &fakeGateway{detailFields: gateway.Fields{
		"ep_doc":   "doc-1",
		"t_key":    "1001",
		"ep_value": decimal.RequireFromString("44.95"),
	}}
	settings := &fakeSettings{settings: referenceSettings()}
	return orders, stores, gw, settings
}

func TestRegisterPayment_Succeeds(t *testing.T) {
	orders, stores, gw, settings := registerFixture()
	o := newTestOrchestrator(orders, stores, gw, settings)

	result, err := o.RegisterPayment(context.Background(), "store-1", 7423, "merchant", "doc-1", "")
	if err != nil {
		t.Fatalf("RegisterPayment: %v", err)
	}

	if !result.Success {
		t.Error("result is not successful")
	}
	if result.NewStatus != commerce.PaymentPaid {
		t.Errorf("new status = %s, want Paid", result.NewStatus)
	}

	payment := orders.order.InPayments[0]
	if payment.Status != commerce.PaymentPaid {
		t.Errorf("payment status = %s, want Paid", payment.Status)
	}
	if payment.OuterID != "doc-1" {
		t.Errorf("outer id = %q, want doc-1", payment.OuterID)
	}
	if !payment.IsApproved || payment.AuthorizedAt == nil {
		t.Error("payment is not approved with an authorization time")
	}
	if orders.saved != 1 {
		t.Errorf("order was saved %d times, want 1", orders.saved)
	}
}

func TestRegisterPayment_ModuleWideResolvesStoreFromOrder(t *testing.T) {
	orders, stores, gw, settings := registerFixture()
	o := newTestOrchestrator(orders, stores, gw, settings)

	result, err := o.RegisterPayment(context.Background(), "", 7423, "merchant", "doc-1", "")
	if err != nil {
		t.Fatalf("RegisterPayment: %v", err)
	}

	if !result.Success || result.NewStatus != commerce.PaymentPaid {
		t.Errorf("result = %+v, want a Paid success", result)
	}
	if len(stores.requested) != 1 || stores.requested[0] != "store-1" {
		t.Errorf("store lookups = %v, want just the order's store", stores.requested)
	}
	if orders.saved != 1 {
		t.Errorf("order was saved %d times, want 1", orders.saved)
	}
}

func TestRegisterPayment_MissingOrderKey(t *testing.T) {
	orders, stores, gw, settings := registerFixture()
	delete(gw.detailFields, "t_key")
	o := newTestOrchestrator(orders, stores, gw, settings)

	_, err := o.RegisterPayment(context.Background(), "store-1", 7423, "merchant", "doc-1", "")
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(orders.lookedUp) != 0 {
		t.Errorf("order lookups = %v, want none without an order key", orders.lookedUp)
	}
}

func TestRegisterPayment_ValidationRunsBeforeMatching(t *testing.T) {
	orders, stores, gw, settings := registerFixture()
	delete(gw.detailFields, "ep_doc")
	gw.detailFields["ep_value"] = decimal.RequireFromString("99.99")
	o := newTestOrchestrator(orders, stores, gw, settings)

	// Both the notification and the sum match are bad; the incomplete
	// notification must win.
	_, err := o.RegisterPayment(context.Background(), "store-1", 7423, "merchant", "doc-1", "")
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if orders.order.InPayments[0].Status != commerce.PaymentPending {
		t.Error("payment state must not change")
	}
}

func TestRegisterPayment_RequiresTransactionID(t *testing.T) {
	orders, stores, gw, settings := registerFixture()
	o := newTestOrchestrator(orders, stores, gw, settings)

	_, err := o.RegisterPayment(context.Background(), "store-1", 7423, "merchant", "", "")
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(orders.lookedUp) != 0 {
		t.Error("no order lookup should happen without a transaction id")
	}
}

func TestRegisterPayment_NoMatchingPayment(t *testing.T) {
	orders, stores, gw, settings := registerFixture()
	gw.detailFields["ep_value"] = decimal.RequireFromString("99.99")
	o := newTestOrchestrator(orders, stores, gw, settings)

	_, err := o.RegisterPayment(context.Background(), "store-1", 7423, "merchant", "doc-1", "")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if orders.order.InPayments[0].Status != commerce.PaymentPending {
		t.Error("payment state must not change without a match")
	}
	if orders.saved != 0 {
		t.Error("order must not be saved without a match")
	}
}

func TestRegisterPayment_FirstMatchingPaymentWins(t *testing.T) {
	orders, stores, gw, settings := registerFixture()
	orders.order.InPayments = append(orders.order.InPayments, &commerce.Payment{
		ID:          "pay-2",
		GatewayCode: MethodCode,
		Sum:         decimal.RequireFromString("44.95"),
		Status:      commerce.PaymentPending,
	})
	o := newTestOrchestrator(orders, stores, gw, settings)

	if _, err := o.RegisterPayment(context.Background(), "store-1", 7423, "merchant", "doc-1", ""); err != nil {
		t.Fatalf("RegisterPayment: %v", err)
	}

	if orders.order.InPayments[0].Status != commerce.PaymentPaid {
		t.Error("first matching payment was not finalized")
	}
	if orders.order.InPayments[1].Status != commerce.PaymentPending {
		t.Error("second payment must stay pending")
	}
}

func TestRegisterPayment_SkipsAlreadyPaid(t *testing.T) {
	orders, stores, gw, settings := registerFixture()
	orders.order.InPayments[0].Status = commerce.PaymentPaid
	o := newTestOrchestrator(orders, stores, gw, settings)

	_, err := o.RegisterPayment(context.Background(), "store-1", 7423, "merchant", "doc-1", "")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError for an already paid payment, got %v", err)
	}
	if orders.saved != 0 {
		t.Error("order must not be saved")
	}
}

func TestRegisterPayment_InactiveMethod(t *testing.T) {
	orders, stores, gw, settings := registerFixture()
	stores.store.PaymentMethods[0].IsActive = false
	o := newTestOrchestrator(orders, stores, gw, settings)

	_, err := o.RegisterPayment(context.Background(), "store-1", 7423, "merchant", "doc-1", "")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRegisterPayment_GatewayDetailFailure(t *testing.T) {
	orders, stores, gw, settings := registerFixture()
	gw.detailErr = &gateway.Error{Op: "03AG", Message: "Invalid key"}
	o := newTestOrchestrator(orders, stores, gw, settings)

	_, err := o.RegisterPayment(context.Background(), "store-1", 7423, "merchant", "doc-1", "")
	var gatewayErr *gateway.Error
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if orders.saved != 0 {
		t.Error("order must not be saved on a gateway failure")
	}
}

func TestRegisterPayment_ParametersCarryOrderID(t *testing.T) {
	orders, stores, gw, settings := registerFixture()

	var captured url.Values
	o := NewOrchestrator(orders, stores, &fakeClients{client: gw}, captureMethods{&captured}, &fakeSplits{}, settings, nil, testLogger())

	if _, err := o.RegisterPayment(context.Background(), "store-1", 7423, "merchant", "doc-1", ""); err != nil {
		t.Fatalf("RegisterPayment: %v", err)
	}
	if captured.Get("OrderId") != "ord-1" {
		t.Errorf("OrderId = %q, want ord-1", captured.Get("OrderId"))
	}
	if captured.Get("ep_value") != "44.95" {
		t.Errorf("ep_value = %q, want 44.95", captured.Get("ep_value"))
	}
}

// captureMethods hands out a handler that records the parameters it is
// validated with.
type captureMethods struct {
	params *url.Values
}

func (c captureMethods) ForStore(ctx context.Context, store *commerce.Storefront) (PaymentHandler, error) {
	return captureHandler(c), nil
}

type captureHandler captureMethods

func (c captureHandler) Validate(params url.Values) ValidateResult {
	*c.params = params
	return ValidateResult{OuterID: params.Get("ep_doc"), OK: true}
}

func (c captureHandler) PostProcess(pctx *PostProcessContext) (*PostProcessResult, error) {
	return &PostProcessResult{Success: true, OrderID: pctx.Order.ID, OuterID: pctx.OuterID}, nil
}

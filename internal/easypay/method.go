package easypay

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"commerceplatform/internal/commerce"
)

// MethodCode is the gateway code payment records carry for this method.
const MethodCode = "Easypay"

// ReferenceSource obtains payment references; implemented by the
// orchestrator.
type ReferenceSource interface {
	GetPaymentReference(ctx context.Context, order *commerce.Order, payment *commerce.Payment, splitRequested bool) (int, error)
}

// ProcessResult is the outcome of preparing a payment form. Failures are
// reported as a non-throwing result so the surrounding checkout flow never
// crashes.
type ProcessResult struct {
	Success   bool
	Error     string
	HTMLForm  string
	OuterID   string
	NewStatus commerce.PaymentStatus
}

// ValidateResult is the outcome of validating inbound notification
// parameters.
type ValidateResult struct {
	OuterID string
	OK      bool
}

// PostProcessContext carries the state a post-process transition operates on.
type PostProcessContext struct {
	Order      *commerce.Order
	Payment    *commerce.Payment
	Store      *commerce.Storefront
	OuterID    string
	Parameters url.Values
}

// PostProcessResult is the outcome of finalizing a payment.
type PostProcessResult struct {
	Success   bool
	OrderID   string
	OuterID   string
	NewStatus commerce.PaymentStatus
}

// Method is the Easypay prepared-form payment method: the payer receives an
// entity/reference/value form and pays outside the platform; the gateway
// notifies back. Capture, void and refund are not part of this model.
type Method struct {
	settings *commerce.Settings
	refs     ReferenceSource
}

// NewMethod creates the payment method for a resolved settings record.
func NewMethod(settings *commerce.Settings, refs ReferenceSource) *Method {
	return &Method{settings: settings, refs: refs}
}

// Code returns the method's gateway code.
func (m *Method) Code() string { return MethodCode }

// Process prepares the payment form for a payment. A New payment first gets
// a reference generated and advances to Pending; any error is converted into
// a failed result rather than returned.
func (m *Method) Process(ctx context.Context, order *commerce.Order, payment *commerce.Payment) ProcessResult {
	if payment.Status == commerce.PaymentNew {
		reference, err := m.refs.GetPaymentReference(ctx, order, payment, m.settings.SplitPayments)
		if err != nil {
			return ProcessResult{Success: false, Error: err.Error()}
		}
		payment.OuterID = strconv.Itoa(reference)
		payment.Status = commerce.PaymentPending
	}

	var fb strings.Builder
	fb.WriteString(`<form method="POST"><table class="easypay">`)
	fmt.Fprintf(&fb, `<tr><td class="easypay-label-entity"></td><td class="easypay-value">%d</td></tr>`,
		m.settings.PaymentEntityID)
	if reference, err := strconv.Atoi(payment.OuterID); err == nil {
		fmt.Fprintf(&fb, `<tr><td class="easypay-label-reference"></td><td class="easypay-value">%s</td></tr>`,
			formatReference(reference))
	}
	fmt.Fprintf(&fb, `<tr><td class="easypay-label-value"></td><td class="easypay-value">%s</td></tr>`,
		payment.Sum.StringFixedBank(2))
	fb.WriteString(`</table></form>`)

	return ProcessResult{
		Success:   true,
		HTMLForm:  fb.String(),
		OuterID:   payment.OuterID,
		NewStatus: payment.Status,
	}
}

// Validate checks inbound notification parameters; the gateway document
// identifier becomes the payment's outer id.
func (m *Method) Validate(params url.Values) ValidateResult {
	transactionID := params.Get("ep_doc")
	return ValidateResult{
		OuterID: transactionID,
		OK:      transactionID != "",
	}
}

// PostProcess finalizes a Pending payment: outer id, approved flag and
// authorization time are set and the payment becomes Paid. Any other status
// is rejected without mutation.
func (m *Method) PostProcess(pctx *PostProcessContext) (*PostProcessResult, error) {
	if pctx.Payment.Status != commerce.PaymentPending {
		return nil, validationErrorf("post process payment failed: payment status is %s", pctx.Payment.Status)
	}

	now := time.Now().UTC()
	pctx.Payment.OuterID = pctx.OuterID
	pctx.Payment.Status = commerce.PaymentPaid
	pctx.Payment.AuthorizedAt = &now
	pctx.Payment.IsApproved = true

	return &PostProcessResult{
		Success:   true,
		OrderID:   pctx.Order.ID,
		OuterID:   pctx.Payment.OuterID,
		NewStatus: pctx.Payment.Status,
	}, nil
}

// Capture is not modeled by the prepared-form flow.
func (m *Method) Capture(ctx context.Context, payment *commerce.Payment) error {
	return &UnsupportedError{Operation: "capture"}
}

// Void is not modeled by the prepared-form flow.
func (m *Method) Void(ctx context.Context, payment *commerce.Payment) error {
	return &UnsupportedError{Operation: "void"}
}

// Refund is not modeled by the prepared-form flow.
func (m *Method) Refund(ctx context.Context, payment *commerce.Payment) error {
	return &UnsupportedError{Operation: "refund"}
}

// formatReference renders a nine digit reference in groups of three,
// separated by non-breaking spaces.
func formatReference(reference int) string {
	digits := fmt.Sprintf("%09d", reference)
	return digits[:3] + " " + digits[3:6] + " " + digits[6:]
}

// MethodSet resolves the payment method for a store from its settings.
type MethodSet struct {
	settings SettingsSource
	refs     ReferenceSource
}

// NewMethodSet creates a method resolver.
func NewMethodSet(settings SettingsSource, refs ReferenceSource) *MethodSet {
	return &MethodSet{settings: settings, refs: refs}
}

// ForStore returns the method for a store carrying an active Easypay
// registration, built from the store's resolved settings.
func (ms *MethodSet) ForStore(ctx context.Context, store *commerce.Storefront) (PaymentHandler, error) {
	if store.ActiveMethod(MethodCode) == nil {
		return nil, notFoundErrorf("payment method %s not found on store %s", MethodCode, store.Name)
	}
	settings, err := ms.settings.StoreSettings(ctx, store.ID)
	if err != nil {
		return nil, fmt.Errorf("reading settings for store %s: %w", store.ID, err)
	}
	return NewMethod(settings, ms.refs), nil
}

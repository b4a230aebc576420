package easypay

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"commerceplatform/internal/commerce"
)

type fakeReferences struct {
	reference int
	err       error
	calls     int
}

func (f *fakeReferences) GetPaymentReference(ctx context.Context, order *commerce.Order, payment *commerce.Payment, splitRequested bool) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.reference, nil
}

func methodSettings() *commerce.Settings {
	return &commerce.Settings{
		PaymentEntityID: 10611,
		SplitPayments:   false,
	}
}

func TestMethod_Process_NewPayment(t *testing.T) {
	refs := &fakeReferences{reference: 123456789}
	method := NewMethod(methodSettings(), refs)

	order := referenceOrder()
	payment := &commerce.Payment{Sum: decimal.RequireFromString("44.95"), Status: commerce.PaymentNew}

	result := method.Process(context.Background(), order, payment)
	if !result.Success {
		t.Fatalf("Process failed: %s", result.Error)
	}

	if payment.Status != commerce.PaymentPending {
		t.Errorf("payment status = %s, want Pending", payment.Status)
	}
	if payment.OuterID != "123456789" {
		t.Errorf("outer id = %q, want the reference", payment.OuterID)
	}
	if result.NewStatus != commerce.PaymentPending {
		t.Errorf("result status = %s, want Pending", result.NewStatus)
	}

	if !strings.Contains(result.HTMLForm, "10611") {
		t.Error("form does not show the entity")
	}
	if !strings.Contains(result.HTMLForm, "123 456 789") {
		t.Error("form does not show the grouped reference")
	}
	if !strings.Contains(result.HTMLForm, "44.95") {
		t.Error("form does not show the amount")
	}
}

func TestMethod_Process_PendingPaymentKeepsReference(t *testing.T) {
	refs := &fakeReferences{reference: 999}
	method := NewMethod(methodSettings(), refs)

	payment := &commerce.Payment{
		Sum:     decimal.RequireFromString("44.95"),
		Status:  commerce.PaymentPending,
		OuterID: "123456789",
	}

	result := method.Process(context.Background(), referenceOrder(), payment)
	if !result.Success {
		t.Fatalf("Process failed: %s", result.Error)
	}
	if refs.calls != 0 {
		t.Error("no new reference should be requested for a pending payment")
	}
	if payment.OuterID != "123456789" {
		t.Errorf("outer id changed to %q", payment.OuterID)
	}
}

func TestMethod_Process_ReferenceFailureIsNonThrowing(t *testing.T) {
	refs := &fakeReferences{err: errors.New("gateway down")}
	method := NewMethod(methodSettings(), refs)

	payment := &commerce.Payment{Sum: decimal.New(10, 0), Status: commerce.PaymentNew}
	result := method.Process(context.Background(), referenceOrder(), payment)

	if result.Success {
		t.Fatal("expected a failed result")
	}
	if result.Error == "" {
		t.Error("failed result carries no message")
	}
	if payment.Status != commerce.PaymentNew {
		t.Errorf("payment status = %s, want New", payment.Status)
	}
}

func TestMethod_Validate(t *testing.T) {
	method := NewMethod(methodSettings(), &fakeReferences{})

	t.Run("with document", func(t *testing.T) {
		result := method.Validate(url.Values{"ep_doc": []string{"doc-1"}})
		if !result.OK || result.OuterID != "doc-1" {
			t.Errorf("got %+v", result)
		}
	})

	t.Run("without document", func(t *testing.T) {
		result := method.Validate(url.Values{})
		if result.OK {
			t.Error("validation must fail without ep_doc")
		}
	})
}

func TestMethod_PostProcess(t *testing.T) {
	method := NewMethod(methodSettings(), &fakeReferences{})

	t.Run("pending payment is finalized", func(t *testing.T) {
		order := referenceOrder()
		payment := order.InPayments[0]
		before := time.Now().UTC()

		result, err := method.PostProcess(&PostProcessContext{
			Order:   order,
			Payment: payment,
			OuterID: "doc-1",
		})
		if err != nil {
			t.Fatalf("PostProcess: %v", err)
		}

		if payment.Status != commerce.PaymentPaid {
			t.Errorf("status = %s, want Paid", payment.Status)
		}
		if payment.OuterID != "doc-1" || !payment.IsApproved {
			t.Errorf("payment = %+v", payment)
		}
		if payment.AuthorizedAt == nil || payment.AuthorizedAt.Before(before) {
			t.Error("authorization time was not set")
		}
		if result.NewStatus != commerce.PaymentPaid {
			t.Errorf("result status = %s", result.NewStatus)
		}
	})

	t.Run("non-pending payment is rejected", func(t *testing.T) {
		order := referenceOrder()
		payment := order.InPayments[0]
		payment.Status = commerce.PaymentPaid

		_, err := method.PostProcess(&PostProcessContext{Order: order, Payment: payment, OuterID: "doc-2"})
		var validation *ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if payment.OuterID == "doc-2" {
			t.Error("rejected post process must not mutate the payment")
		}
	})
}

func TestMethod_UnsupportedOperations(t *testing.T) {
	method := NewMethod(methodSettings(), &fakeReferences{})
	payment := &commerce.Payment{}

	for name, op := range map[string]func(context.Context, *commerce.Payment) error{
		"capture": method.Capture,
		"void":    method.Void,
		"refund":  method.Refund,
	} {
		t.Run(name, func(t *testing.T) {
			err := op(context.Background(), payment)
			var unsupported *UnsupportedError
			if !errors.As(err, &unsupported) {
				t.Fatalf("expected UnsupportedError, got %v", err)
			}
		})
	}
}

func TestMethodSet_ForStore(t *testing.T) {
	settings := &fakeSettings{settings: methodSettings()}
	set := NewMethodSet(settings, &fakeReferences{})

	t.Run("active method resolves", func(t *testing.T) {
		store := &commerce.Storefront{
			ID: "store-1",
			PaymentMethods: []commerce.PaymentMethodConfig{
				{Code: MethodCode, IsActive: true},
			},
		}
		if _, err := set.ForStore(context.Background(), store); err != nil {
			t.Fatalf("ForStore: %v", err)
		}
	})

	t.Run("missing method fails", func(t *testing.T) {
		store := &commerce.Storefront{ID: "store-2"}
		_, err := set.ForStore(context.Background(), store)
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})
}

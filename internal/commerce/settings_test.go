package commerce

import (
	"testing"
	"time"
)

func TestSettingsFromRows_Defaults(t *testing.T) {
	st := settingsFromRows(map[string]string{})

	if st.Country != "PT" {
		t.Errorf("country = %q, want PT", st.Country)
	}
	if st.ScanInterval != 5*time.Minute {
		t.Errorf("scan interval = %s, want 5m", st.ScanInterval)
	}
	if st.ScanWindow != 24*time.Hour {
		t.Errorf("scan window = %s, want 24h", st.ScanWindow)
	}
	if st.Sandbox || st.SplitPayments {
		t.Error("boolean settings must default to false")
	}
}

func TestSettingsFromRows_TypedValues(t *testing.T) {
	st := settingsFromRows(map[string]string{
		SettingAuthenticationKey: "secret",
		SettingSandbox:           "true",
		SettingAccountClientID:   "100",
		SettingAccountUsername:   "platform",
		SettingAccountEntityID:   "99999",
		SettingPaymentClientID:   "7423",
		SettingPaymentUsername:   "merchant",
		SettingPaymentEntityID:   "10611",
		SettingCountry:           "BR",
		SettingLanguage:          "PT",
		SettingSplitPayments:     "true",
		SettingScanInterval:      "30s",
		SettingScanWindow:        "48h",
	})

	if st.AuthenticationKey != "secret" {
		t.Errorf("authentication key = %q", st.AuthenticationKey)
	}
	if !st.Sandbox {
		t.Error("sandbox = false, want true")
	}
	if st.AccountClientID != 100 || st.AccountUsername != "platform" || st.AccountEntityID != 99999 {
		t.Errorf("account identity = %d/%s/%d", st.AccountClientID, st.AccountUsername, st.AccountEntityID)
	}
	if st.PaymentClientID != 7423 || st.PaymentUsername != "merchant" || st.PaymentEntityID != 10611 {
		t.Errorf("payment identity = %d/%s/%d", st.PaymentClientID, st.PaymentUsername, st.PaymentEntityID)
	}
	if st.Country != "BR" {
		t.Errorf("country = %q, want BR", st.Country)
	}
	if !st.SplitPayments {
		t.Error("split payments = false, want true")
	}
	if st.ScanInterval != 30*time.Second {
		t.Errorf("scan interval = %s, want 30s", st.ScanInterval)
	}
	if st.ScanWindow != 48*time.Hour {
		t.Errorf("scan window = %s, want 48h", st.ScanWindow)
	}
}

func TestSettingsFromRows_MalformedValuesFallBack(t *testing.T) {
	st := settingsFromRows(map[string]string{
		SettingSandbox:         "not-a-bool",
		SettingPaymentClientID: "abc",
		SettingScanInterval:    "-5m",
	})

	if st.Sandbox {
		t.Error("malformed sandbox must fall back to false")
	}
	if st.PaymentClientID != 0 {
		t.Errorf("malformed client id = %d, want 0", st.PaymentClientID)
	}
	if st.ScanInterval != 5*time.Minute {
		t.Errorf("negative scan interval must fall back, got %s", st.ScanInterval)
	}
}

func TestOrder_Addresses(t *testing.T) {
	order := &Order{Addresses: []Address{
		{Type: AddressBilling, City: "Lisboa"},
		{Type: AddressShipping, City: "Porto"},
	}}

	if got := order.BillingAddress(); got == nil || got.City != "Lisboa" {
		t.Errorf("billing address = %+v", got)
	}
	if got := order.ShippingAddress(); got == nil || got.City != "Porto" {
		t.Errorf("shipping address = %+v", got)
	}

	t.Run("combined address serves both roles", func(t *testing.T) {
		order := &Order{Addresses: []Address{
			{Type: AddressBilling | AddressShipping, City: "Faro"},
		}}
		if got := order.BillingAddress(); got == nil || got.City != "Faro" {
			t.Errorf("billing address = %+v", got)
		}
		if got := order.ShippingAddress(); got == nil || got.City != "Faro" {
			t.Errorf("shipping address = %+v", got)
		}
	})

	t.Run("absent address is nil", func(t *testing.T) {
		order := &Order{}
		if order.BillingAddress() != nil || order.ShippingAddress() != nil {
			t.Error("expected nil addresses on an empty order")
		}
	})
}

func TestStorefront_ActiveMethod(t *testing.T) {
	store := &Storefront{PaymentMethods: []PaymentMethodConfig{
		{Code: "Easypay", IsActive: true},
		{Code: "Manual", IsActive: false},
	}}

	if store.ActiveMethod("Easypay") == nil {
		t.Error("active method not found")
	}
	if store.ActiveMethod("Manual") != nil {
		t.Error("inactive method must not resolve")
	}
	if store.ActiveMethod("Unknown") != nil {
		t.Error("unknown method must not resolve")
	}
}

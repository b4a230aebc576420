package commerce

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Setting names as stored in the settings table. Module-wide rows apply to
// every store; store rows override them.
const (
	SettingAuthenticationKey = "Easypay.AuthenticationKey"
	SettingSandbox           = "Easypay.Sandbox"
	SettingAccountClientID   = "Easypay.Account.ClientID"
	SettingAccountUsername   = "Easypay.Account.Username"
	SettingAccountEntityID   = "Easypay.Account.EntityID"
	SettingPaymentClientID   = "Easypay.Payment.ClientID"
	SettingPaymentUsername   = "Easypay.Payment.Username"
	SettingPaymentEntityID   = "Easypay.Payment.EntityID"
	SettingCountry           = "Easypay.Country"
	SettingLanguage          = "Easypay.Language"
	SettingSplitPayments     = "Easypay.SplitPayments"
	SettingScanInterval      = "Easypay.ScanInterval"
	SettingScanWindow        = "Easypay.ScanWindow"
)

// Settings is the typed gateway configuration resolved for a store (or for
// the whole module when no store-specific rows exist).
type Settings struct {
	AuthenticationKey string
	Sandbox           bool

	// Platform account used for the platform's own split entry.
	AccountClientID int
	AccountUsername string
	AccountEntityID int

	// Merchant identity used on payment reference requests.
	PaymentClientID int
	PaymentUsername string
	PaymentEntityID int

	Country  string
	Language string

	SplitPayments bool
	ScanInterval  time.Duration
	ScanWindow    time.Duration
}

// SettingsStore reads gateway settings from the settings table.
type SettingsStore struct {
	db     *Store
	logger *slog.Logger
}

// NewSettingsStore creates a settings store on top of the commerce store.
func NewSettingsStore(db *Store, logger *slog.Logger) *SettingsStore {
	return &SettingsStore{db: db, logger: logger}
}

// ModuleSettings resolves the module-wide settings.
func (s *SettingsStore) ModuleSettings(ctx context.Context) (*Settings, error) {
	rows, err := s.rows(ctx, "")
	if err != nil {
		return nil, err
	}
	return settingsFromRows(rows), nil
}

// StoreSettings resolves settings for a store: module rows overridden by the
// store's own rows.
func (s *SettingsStore) StoreSettings(ctx context.Context, storeID string) (*Settings, error) {
	rows, err := s.rows(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return settingsFromRows(rows), nil
}

func (s *SettingsStore) rows(ctx context.Context, storeID string) (map[string]string, error) {
	query := `
		SELECT name, value FROM settings
		WHERE scope = 'module' OR (scope = 'store' AND store_id = $1)
		ORDER BY scope
	`

	// Module rows sort before store rows, so store values win the overwrite.
	rows, err := s.db.db.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		values[name] = value
	}
	return values, rows.Err()
}

// settingsFromRows converts raw name/value rows into a typed Settings record
// with explicit defaults.
func settingsFromRows(values map[string]string) *Settings {
	st := &Settings{
		Country:      "PT",
		ScanInterval: 5 * time.Minute,
		ScanWindow:   24 * time.Hour,
	}

	st.AuthenticationKey = values[SettingAuthenticationKey]
	st.Sandbox = boolSetting(values, SettingSandbox, false)
	st.AccountClientID = intSetting(values, SettingAccountClientID, 0)
	st.AccountUsername = values[SettingAccountUsername]
	st.AccountEntityID = intSetting(values, SettingAccountEntityID, 0)
	st.PaymentClientID = intSetting(values, SettingPaymentClientID, 0)
	st.PaymentUsername = values[SettingPaymentUsername]
	st.PaymentEntityID = intSetting(values, SettingPaymentEntityID, 0)
	if v, ok := values[SettingCountry]; ok {
		st.Country = v
	}
	st.Language = values[SettingLanguage]
	st.SplitPayments = boolSetting(values, SettingSplitPayments, false)
	st.ScanInterval = durationSetting(values, SettingScanInterval, st.ScanInterval)
	st.ScanWindow = durationSetting(values, SettingScanWindow, st.ScanWindow)

	return st
}

func intSetting(values map[string]string, name string, def int) int {
	if v, ok := values[name]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolSetting(values map[string]string, name string, def bool) bool {
	if v, ok := values[name]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func durationSetting(values map[string]string, name string, def time.Duration) time.Duration {
	if v, ok := values[name]; ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

package easypay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"commerceplatform/internal/commerce"
	"commerceplatform/internal/easypay/gateway"
)

// SettingsSource resolves gateway settings, store-scoped or module-wide.
type SettingsSource interface {
	ModuleSettings(ctx context.Context) (*commerce.Settings, error)
	StoreSettings(ctx context.Context, storeID string) (*commerce.Settings, error)
}

// GatewayAPI is the gateway client surface the orchestration layer consumes.
type GatewayAPI interface {
	RequestPaymentReference(ctx context.Context, req *gateway.PaymentRequest) (gateway.Fields, error)
	FetchPaymentDetail(ctx context.Context, clientID int, username, transactionID, docType string) (gateway.Fields, error)
	FetchPayments(ctx context.Context, clientID int, username string, entityID int, start, end time.Time) ([]gateway.Fields, error)
	FetchFailedPayments(ctx context.Context, clientID int, username string, entityID int) ([]gateway.Fields, error)
}

// globalClientKey caches the client built from module-wide settings when no
// store is given.
const globalClientKey = "*"

// Registry caches one gateway client per store key. A client is constructed
// exactly once per key, on the first Get, and lives for the registry's
// lifetime; credentials are assumed stable for the process.
type Registry struct {
	settings SettingsSource
	recorder gateway.Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]GatewayAPI
}

// NewRegistry creates a client registry. The recorder may be nil.
func NewRegistry(settings SettingsSource, recorder gateway.Recorder, logger *slog.Logger) *Registry {
	return &Registry{
		settings: settings,
		recorder: recorder,
		logger:   logger,
		clients:  make(map[string]GatewayAPI),
	}
}

// Get returns the cached client for a store, constructing it on first
// access. The settings read happens only on the winning construction; a
// failed construction is not cached.
func (r *Registry) Get(ctx context.Context, storeID string) (GatewayAPI, error) {
	key := storeID
	if key == "" {
		key = globalClientKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	var settings *commerce.Settings
	var err error
	if storeID == "" {
		settings, err = r.settings.ModuleSettings(ctx)
	} else {
		settings, err = r.settings.StoreSettings(ctx, storeID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings for store %q: %w", key, err)
	}

	client, err := gateway.New(settings.AuthenticationKey, settings.Sandbox, r.logger)
	if err != nil {
		return nil, err
	}
	if r.recorder != nil {
		client.WithRecorder(r.recorder)
	}

	r.clients[key] = client
	r.logger.Info("gateway client constructed", "store", key, "sandbox", settings.Sandbox)

	return client, nil
}

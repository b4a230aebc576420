package easypay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"commerceplatform/internal/common/events"
)

// Registrar registers gateway-reported payments; implemented by the
// orchestrator.
type Registrar interface {
	RegisterPayment(ctx context.Context, storeID string, clientID int, username, transactionID, docType string) (*PostProcessResult, error)
}

// StoreLister lists stores carrying an active registration of a payment
// method.
type StoreLister interface {
	StoreIDsWithActiveMethod(ctx context.Context, code string) ([]string, error)
}

// Scanner periodically pulls the gateway's paid-document list for every store
// with an active registration and registers any document the platform has not
// processed yet. It is the fallback for missed notifications; each document
// goes through the same registration path as a live callback.
type Scanner struct {
	stores    StoreLister
	settings  SettingsSource
	clients   ClientSource
	registrar Registrar
	publisher events.Publisher
	logger    *slog.Logger
}

// NewScanner creates a scanner. The publisher may be nil.
func NewScanner(stores StoreLister, settings SettingsSource, clients ClientSource, registrar Registrar, publisher events.Publisher, logger *slog.Logger) *Scanner {
	return &Scanner{
		stores:    stores,
		settings:  settings,
		clients:   clients,
		registrar: registrar,
		publisher: publisher,
		logger:    logger,
	}
}

// Run scans on the configured interval until the context is canceled. A
// failed sweep is logged and the next tick proceeds; there are no retries
// within a sweep.
func (s *Scanner) Run(ctx context.Context) error {
	settings, err := s.settings.ModuleSettings(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(settings.ScanInterval)
	defer ticker.Stop()

	s.logger.Info("payment scanner started", "interval", settings.ScanInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Scan(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("payment sweep failed", "error", err)
			}
		}
	}
}

// Scan performs one sweep over all stores with the method active.
func (s *Scanner) Scan(ctx context.Context) error {
	moduleSettings, err := s.settings.ModuleSettings(ctx)
	if err != nil {
		return err
	}

	storeIDs, err := s.stores.StoreIDsWithActiveMethod(ctx, MethodCode)
	if err != nil {
		return err
	}

	var registered, failed int
	for _, storeID := range storeIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r, f := s.scanStore(ctx, storeID, moduleSettings.ScanWindow)
		registered += r
		failed += f
	}

	s.logger.Info("payment sweep finished",
		"stores", len(storeIDs),
		"registered", registered,
		"failed", failed,
	)
	s.publish(ctx, events.ScanCompletedData{
		StoresScanned: len(storeIDs),
		Registered:    registered,
		Failed:        failed,
		FinishedAt:    time.Now().UTC(),
	})

	return nil
}

// scanStore sweeps one store's paid documents over the scan window. A
// document already registered resolves as a not-found pending payment and is
// skipped without counting as a failure.
func (s *Scanner) scanStore(ctx context.Context, storeID string, window time.Duration) (registered, failed int) {
	settings, err := s.settings.StoreSettings(ctx, storeID)
	if err != nil {
		s.logger.Error("reading store settings failed", "store_id", storeID, "error", err)
		return 0, 1
	}

	client, err := s.clients.Get(ctx, storeID)
	if err != nil {
		s.logger.Error("resolving gateway client failed", "store_id", storeID, "error", err)
		return 0, 1
	}

	end := time.Now().UTC()
	start := end.Add(-window)

	records, err := client.FetchPayments(ctx, settings.PaymentClientID, settings.PaymentUsername, settings.PaymentEntityID, start, end)
	if err != nil {
		s.logger.Error("fetching payment list failed", "store_id", storeID, "error", err)
		return 0, 1
	}

	for _, record := range records {
		transactionID, _ := record.String("ep_doc")
		if transactionID == "" {
			continue
		}
		docType, _ := record.String("ep_type")

		_, err := s.registrar.RegisterPayment(ctx, storeID, settings.PaymentClientID, settings.PaymentUsername, transactionID, docType)
		var notFound *NotFoundError
		switch {
		case err == nil:
			registered++
		case errors.As(err, &notFound):
			// Already registered, or not this platform's document.
		default:
			failed++
			s.logger.Error("registering swept payment failed",
				"store_id", storeID,
				"document", transactionID,
				"error", err,
			)
		}
	}

	failedDocs, err := client.FetchFailedPayments(ctx, settings.PaymentClientID, settings.PaymentUsername, settings.PaymentEntityID)
	if err != nil {
		s.logger.Error("fetching failed payment list failed", "store_id", storeID, "error", err)
		return registered, failed
	}
	for _, record := range failedDocs {
		doc, _ := record.String("ep_doc")
		s.logger.Warn("gateway reports failed payment", "store_id", storeID, "document", doc)
	}

	return registered, failed
}

func (s *Scanner) publish(ctx context.Context, data events.ScanCompletedData) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(events.EventScanCompleted, "scanner", "sweep", data)
	if err != nil {
		s.logger.Error("building event failed", "event_type", events.EventScanCompleted, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("publishing event failed", "event_type", events.EventScanCompleted, "error", err)
	}
}

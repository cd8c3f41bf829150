package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/MemoWindow/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// DefaultCancelReason is stored when an admin gives no reason.
const DefaultCancelReason = "Cancelled by admin"

// OrderInput describes a new ledger row.
type OrderInput struct {
	SessionID     string
	ExternalID    string
	UserID        string
	MemoryID      uint
	ProductID     string
	CustomerEmail string
	CustomerName  string
	Quantity      int
	UnitPrice     int64
	AmountPaid    int64
	Status        string
}

// Service is the order ledger: idempotent creation keyed by the checkout
// session, status transitions and admin cancellation.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an order ledger from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// NewServiceFromDB creates an order ledger from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// WithClock replaces the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Migrate creates or updates the orders table.
func (s *Service) Migrate() error {
	if err := s.repo.AutoMigrate(); err != nil {
		return &StorageError{Op: "migrate", Err: err}
	}
	return nil
}

// RecordOrder inserts the order unless one exists for the same session.
// The returned bool is true only when this call created the row.
func (s *Service) RecordOrder(ctx context.Context, in OrderInput) (*models.Order, bool, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, false, errors.New("session id is required")
	}
	status := in.Status
	if status == "" {
		status = models.OrderStatusPending
	}
	quantity := in.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	unitPrice := in.UnitPrice
	if unitPrice <= 0 {
		unitPrice = in.AmountPaid
	}

	order := &models.Order{
		StripeSessionID: sessionID,
		ExternalID:      in.ExternalID,
		UserID:          in.UserID,
		MemoryID:        in.MemoryID,
		ProductID:       in.ProductID,
		CustomerEmail:   in.CustomerEmail,
		CustomerName:    in.CustomerName,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		TotalPrice:      unitPrice * int64(quantity),
		AmountPaid:      in.AmountPaid,
		Status:          status,
	}

	created, stored, err := s.repo.CreateIfNotExists(ctx, order)
	if err != nil {
		return nil, false, &StorageError{Op: "record order", Err: err}
	}
	if created {
		log.Infof("[Ledger] Recorded order %d for session %s", stored.ID, sessionID)
	}
	return stored, created, nil
}

func (s *Service) GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	order, err := s.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "get order", Err: err}
	}
	return order, nil
}

func (s *Service) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "get order", Err: err}
	}
	return order, nil
}

// ListRecent returns at most limit orders, newest first, and the total count.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]models.Order, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	list, total, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, 0, &StorageError{Op: "list orders", Err: err}
	}
	return list, total, nil
}

// ListStale returns pending orders whose last fulfillment attempt ended
// before the cutoff without reaching a final state.
func (s *Service) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	list, err := s.repo.ListStalePending(ctx, before, limit)
	if err != nil {
		return nil, &StorageError{Op: "list stale orders", Err: err}
	}
	return list, nil
}

// ClaimForFulfillment takes the processing lease on a pending or failed order.
// A live lease held by someone else yields ErrOrderInFlight; an order that
// already moved on yields a TransitionError.
func (s *Service) ClaimForFulfillment(ctx context.Context, sessionID string, lease time.Duration) (*models.Order, error) {
	now := s.now()
	ok, err := s.repo.AcquireLease(ctx, sessionID, now, now.Add(lease))
	if err != nil {
		return nil, &StorageError{Op: "claim order", Err: err}
	}

	order, err := s.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ok {
		return order, nil
	}
	if order.Status == models.OrderStatusPending || order.Status == models.OrderStatusFailed {
		return order, ErrOrderInFlight
	}
	return order, &TransitionError{From: order.Status, To: models.OrderStatusPending}
}

// CompleteFulfillment stamps the provider order id and moves the order to paid.
// If an admin cancelled the order meanwhile, the id is still recorded, the
// status stays cancelled and ErrCancelledMeanwhile is returned with the order
// so the caller can cancel the provider side.
func (s *Service) CompleteFulfillment(ctx context.Context, sessionID, printfulOrderID string) (*models.Order, error) {
	ok, err := s.repo.UpdateBySessionID(ctx, sessionID,
		[]string{models.OrderStatusPending, models.OrderStatusFailed},
		map[string]interface{}{
			"status":            models.OrderStatusPaid,
			"printful_order_id": printfulOrderID,
			"last_error":        "",
			"lease_expires_at":  nil,
		})
	if err != nil {
		return nil, &StorageError{Op: "complete fulfillment", Err: err}
	}

	order, err := s.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ok {
		return order, nil
	}

	switch {
	case order.Status == models.OrderStatusCancelled && order.PrintfulOrderID == nil:
		if _, err := s.repo.UpdateBySessionID(ctx, sessionID,
			[]string{models.OrderStatusCancelled},
			map[string]interface{}{"printful_order_id": printfulOrderID, "lease_expires_at": nil}); err != nil {
			return nil, &StorageError{Op: "complete fulfillment", Err: err}
		}
		log.Warnf("[Ledger] Order %d was cancelled while printful order %s was being created", order.ID, printfulOrderID)
		id := printfulOrderID
		order.PrintfulOrderID = &id
		return order, ErrCancelledMeanwhile
	case order.ProviderOrderID() == printfulOrderID && order.Status == models.OrderStatusCancelled:
		return order, ErrCancelledMeanwhile
	case order.ProviderOrderID() == printfulOrderID:
		return order, nil
	default:
		return order, &TransitionError{From: order.Status, To: models.OrderStatusPaid}
	}
}

// RecordFailure releases the lease and stores the reason. status must be
// pending (retryable) or failed (rejected by the provider).
func (s *Service) RecordFailure(ctx context.Context, sessionID, status string, cause error) error {
	if status != models.OrderStatusPending && status != models.OrderStatusFailed {
		return &TransitionError{From: models.OrderStatusPending, To: status}
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.repo.UpdateBySessionID(ctx, sessionID,
		[]string{models.OrderStatusPending, models.OrderStatusFailed},
		map[string]interface{}{
			"status":           status,
			"last_error":       msg,
			"lease_expires_at": nil,
		})
	if err != nil {
		return &StorageError{Op: "record failure", Err: err}
	}
	return nil
}

// Cancel moves a pending or paid order to cancelled. Cancelling an already
// cancelled order is a no-op; the bool reports whether this call changed it.
func (s *Service) Cancel(ctx context.Context, orderID uint, actorID, reason string) (*models.Order, bool, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}
	now := s.now()

	ok, err := s.repo.UpdateByID(ctx, orderID,
		[]string{models.OrderStatusPending, models.OrderStatusPaid},
		map[string]interface{}{
			"status":        models.OrderStatusCancelled,
			"cancelled_by":  actorID,
			"cancel_reason": reason,
			"cancelled_at":  now,
		})
	if err != nil {
		return nil, false, &StorageError{Op: "cancel order", Err: err}
	}

	order, err := s.GetByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if ok {
		log.Infof("[Ledger] Order %d cancelled by %s: %s", orderID, actorID, reason)
		return order, true, nil
	}
	if order.Status == models.OrderStatusCancelled {
		return order, false, nil
	}
	return order, false, &TransitionError{From: order.Status, To: models.OrderStatusCancelled}
}

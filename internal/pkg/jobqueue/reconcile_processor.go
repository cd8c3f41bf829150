package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MemoWindow/app/models"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/orders"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/printful"
)

const reconcileTimeout = 30 * time.Second

// ErrNoUpstreamOrder is stored on rows reconciliation found nothing for.
var ErrNoUpstreamOrder = errors.New("no printful order found during reconciliation")

// ReconcileLedger is the part of the order ledger the reconciler writes to.
type ReconcileLedger interface {
	CompleteFulfillment(ctx context.Context, sessionID, printfulOrderID string) (*models.Order, error)
	RecordFailure(ctx context.Context, sessionID, status string, cause error) error
}

// UpstreamOrders finds and withdraws provider orders.
type UpstreamOrders interface {
	GetOrderByExternalID(ctx context.Context, externalID string) (string, error)
	CancelOrder(ctx context.Context, printfulOrderID string) error
}

// NewReconcileProcessor matches ledger rows with orders that exist at Printful.
// A row with no upstream order is marked failed so the stale sweep stops
// picking it up; a later webhook delivery can still claim it. A row that was
// cancelled while its provider order was created gets that order cancelled.
func NewReconcileProcessor(ledger ReconcileLedger, upstream UpstreamOrders) Processor {
	return func(ctx context.Context, job *Job) error {
		payload, err := ReconcileOrderPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid reconcile order payload: %w", err)
		}
		if strings.TrimSpace(payload.SessionID) == "" {
			return errors.New("reconcile order payload has no session id")
		}

		ctx, cancel := context.WithTimeout(ctx, reconcileTimeout)
		defer cancel()

		printfulOrderID := payload.PrintfulOrderID
		if printfulOrderID == "" {
			id, err := upstream.GetOrderByExternalID(ctx, payload.ExternalID)
			if errors.Is(err, printful.ErrOrderNotFound) {
				log.Warnf("[JobQueue] No printful order for %s, marking session %s for manual handling", payload.ExternalID, payload.SessionID)
				if err := ledger.RecordFailure(ctx, payload.SessionID, models.OrderStatusFailed, ErrNoUpstreamOrder); err != nil {
					return fmt.Errorf("mark %s failed: %w", payload.SessionID, err)
				}
				return nil
			}
			if err != nil {
				return fmt.Errorf("lookup %s: %w", payload.ExternalID, err)
			}
			printfulOrderID = id
		}

		order, err := ledger.CompleteFulfillment(ctx, payload.SessionID, printfulOrderID)
		if errors.Is(err, orders.ErrCancelledMeanwhile) {
			if err := upstream.CancelOrder(ctx, printfulOrderID); err != nil {
				return fmt.Errorf("cancel printful order %s: %w", printfulOrderID, err)
			}
			log.Infof("[JobQueue] Cancelled printful order %s of cancelled session %s", printfulOrderID, payload.SessionID)
			return nil
		}
		if errors.Is(err, orders.ErrInvalidTransition) || errors.Is(err, orders.ErrOrderNotFound) {
			log.Warnf("[JobQueue] Session %s cannot take printful order %s: %v", payload.SessionID, printfulOrderID, err)
			return nil
		}
		if err != nil {
			return err
		}
		log.Infof("[JobQueue] Reconciled order %d with printful order %s", order.ID, printfulOrderID)
		return nil
	}
}

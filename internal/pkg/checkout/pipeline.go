// Package checkout turns verified payment webhooks into printed orders.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/MemoWindow/app/models"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/fulfillment"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/orders"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/payment"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/printful"
	"github.com/gofiber/fiber/v2/log"
)

const (
	DefaultTimeout = 20 * time.Second
	// persistTimeout bounds ledger writes issued after the provider call.
	persistTimeout = 10 * time.Second
	// archiveTimeout bounds one archive upload, independent of the delivery.
	archiveTimeout = 10 * time.Second
)

type Provider interface {
	CreateOrder(ctx context.Context, req fulfillment.Request) (string, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (string, error)
	CancelOrder(ctx context.Context, printfulOrderID string) error
}

type Ledger interface {
	RecordOrder(ctx context.Context, in orders.OrderInput) (*models.Order, bool, error)
	ClaimForFulfillment(ctx context.Context, sessionID string, lease time.Duration) (*models.Order, error)
	CompleteFulfillment(ctx context.Context, sessionID, printfulOrderID string) (*models.Order, error)
	RecordFailure(ctx context.Context, sessionID, status string, cause error) error
}

// Reconciler schedules a later attempt to match a ledger row with its
// provider order.
type Reconciler interface {
	EnqueueReconcile(ctx context.Context, sessionID, externalID, printfulOrderID string) error
}

type Archiver interface {
	Archive(ctx context.Context, ev *payment.VerifiedEvent) error
}

type PriceLookup interface {
	UnitPrice(ctx context.Context, productID string) (int64, bool)
}

type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFulfilled Outcome = "fulfilled"
	OutcomeAdopted   Outcome = "adopted"
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeCancelled means an admin cancelled the order while its provider
	// order was being created.
	OutcomeCancelled Outcome = "cancelled"
)

type Result struct {
	Outcome Outcome
	EventID string
	Order   *models.Order
}

type Options struct {
	Verifier   *payment.Verifier
	Provider   Provider
	Ledger     Ledger
	Reconciler Reconciler
	Archiver   Archiver
	Prices     PriceLookup
	// Timeout bounds the provider call, Lease how long a claim is honoured.
	Timeout time.Duration
	Lease   time.Duration
}

// Pipeline runs verify, translate, record and fulfill for one delivery.
type Pipeline struct {
	verifier   *payment.Verifier
	provider   Provider
	ledger     Ledger
	reconciler Reconciler
	archiver   Archiver
	prices     PriceLookup
	timeout    time.Duration
	lease      time.Duration
	archives   sync.WaitGroup
}

func NewPipeline(opts Options) *Pipeline {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = timeout + 15*time.Second
	}
	return &Pipeline{
		verifier:   opts.Verifier,
		provider:   opts.Provider,
		ledger:     opts.Ledger,
		reconciler: opts.Reconciler,
		archiver:   opts.Archiver,
		prices:     opts.Prices,
		timeout:    timeout,
		lease:      lease,
	}
}

// Handle processes one webhook delivery. The returned error is one of
// payment.ErrInvalidSignature, *payment.MissingFieldError,
// *printful.ProviderError, *printful.TransportError, *orders.StorageError or
// orders.ErrOrderInFlight, possibly wrapped.
func (p *Pipeline) Handle(ctx context.Context, payload []byte, signatureHeader string) (*Result, error) {
	ev, err := p.verifier.Verify(payload, signatureHeader)
	if err != nil {
		return nil, err
	}

	co, err := payment.Translate(ev)
	if errors.Is(err, payment.ErrIgnoredEvent) {
		log.Infof("[Webhook] Ignoring event %s of type %s", ev.ID, ev.Type)
		p.archive(ctx, ev)
		return &Result{Outcome: OutcomeIgnored, EventID: ev.ID}, nil
	}
	if err != nil {
		log.Warnf("[Webhook] Event %s rejected: %v", ev.ID, err)
		return nil, err
	}
	p.archive(ctx, ev)

	order, created, err := p.ledger.RecordOrder(ctx, p.orderInput(ctx, co))
	if err != nil {
		return nil, err
	}
	if !created && !awaitingFulfillment(order) {
		log.Infof("[Webhook] Session %s already handled (order %d, status %s)", co.SessionID, order.ID, order.Status)
		return &Result{Outcome: OutcomeDuplicate, EventID: ev.ID, Order: order}, nil
	}

	claimed, err := p.ledger.ClaimForFulfillment(ctx, co.SessionID, p.lease)
	if err != nil {
		if errors.Is(err, orders.ErrInvalidTransition) && claimed != nil {
			return &Result{Outcome: OutcomeDuplicate, EventID: ev.ID, Order: claimed}, nil
		}
		if errors.Is(err, orders.ErrOrderInFlight) {
			log.Warnf("[Webhook] Session %s is being fulfilled by another delivery", co.SessionID)
		}
		return nil, err
	}

	return p.fulfill(ctx, ev, co, claimed)
}

func (p *Pipeline) fulfill(ctx context.Context, ev *payment.VerifiedEvent, co *payment.Checkout, claimed *models.Order) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	outcome := OutcomeFulfilled
	printfulOrderID := ""

	// Earlier attempts may have reached the provider without us learning the id.
	if claimed.Attempts > 1 {
		id, err := p.provider.GetOrderByExternalID(callCtx, co.Request.ExternalID)
		switch {
		case err == nil:
			log.Infof("[Webhook] Adopting existing printful order %s for session %s", id, co.SessionID)
			printfulOrderID = id
			outcome = OutcomeAdopted
		case errors.Is(err, printful.ErrOrderNotFound):
		case printful.IsRetryable(err):
			return nil, p.transportFailure(ctx, co, err)
		default:
			log.Warnf("[Webhook] Lookup of %s failed, creating order: %v", co.Request.ExternalID, err)
		}
	}

	if printfulOrderID == "" {
		id, err := p.provider.CreateOrder(callCtx, co.Request)
		if err != nil {
			var pe *printful.ProviderError
			if errors.As(err, &pe) {
				return nil, p.providerFailure(ctx, co, pe)
			}
			return nil, p.transportFailure(ctx, co, err)
		}
		printfulOrderID = id
	}

	// The provider order exists now, the ledger write must not be abandoned
	// because the caller went away.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()

	order, err := p.ledger.CompleteFulfillment(persistCtx, co.SessionID, printfulOrderID)
	if errors.Is(err, orders.ErrCancelledMeanwhile) {
		p.cancelUpstream(persistCtx, co, printfulOrderID)
		return &Result{Outcome: OutcomeCancelled, EventID: ev.ID, Order: order}, nil
	}
	if err != nil {
		log.Errorf("[Webhook] ORPHANED PROVIDER ORDER printful_order_id=%s session=%s external_id=%s: %v",
			printfulOrderID, co.SessionID, co.Request.ExternalID, err)
		p.enqueueReconcile(persistCtx, co, printfulOrderID)
		return nil, err
	}

	log.Infof("[Webhook] Session %s fulfilled: order %d printful_order_id=%s", co.SessionID, order.ID, printfulOrderID)
	return &Result{Outcome: outcome, EventID: ev.ID, Order: order}, nil
}

func (p *Pipeline) providerFailure(ctx context.Context, co *payment.Checkout, pe *printful.ProviderError) error {
	log.Errorf("[Webhook] Printful rejected session %s: status=%d message=%s", co.SessionID, pe.StatusCode, pe.Message)
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := p.ledger.RecordFailure(persistCtx, co.SessionID, models.OrderStatusFailed, pe); err != nil {
		log.Errorf("[Webhook] Could not mark session %s failed: %v", co.SessionID, err)
	}
	return pe
}

func (p *Pipeline) transportFailure(ctx context.Context, co *payment.Checkout, cause error) error {
	log.Errorf("[Webhook] Printful unreachable for session %s: %v", co.SessionID, cause)
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := p.ledger.RecordFailure(persistCtx, co.SessionID, models.OrderStatusPending, cause); err != nil {
		log.Errorf("[Webhook] Could not record failure for session %s: %v", co.SessionID, err)
	}
	p.enqueueReconcile(persistCtx, co, "")

	var te *printful.TransportError
	if errors.As(cause, &te) {
		return cause
	}
	return &printful.TransportError{Op: "create order", Err: cause}
}

func (p *Pipeline) enqueueReconcile(ctx context.Context, co *payment.Checkout, printfulOrderID string) {
	if p.reconciler == nil {
		return
	}
	if err := p.reconciler.EnqueueReconcile(ctx, co.SessionID, co.Request.ExternalID, printfulOrderID); err != nil {
		log.Errorf("[Webhook] Failed to enqueue reconciliation for session %s: %v", co.SessionID, err)
	}
}

// cancelUpstream withdraws a provider order whose ledger row was cancelled
// mid-flight. A failed cancel is handed to reconciliation, which retries it.
func (p *Pipeline) cancelUpstream(ctx context.Context, co *payment.Checkout, printfulOrderID string) {
	log.Warnf("[Webhook] Session %s was cancelled during fulfillment, cancelling printful order %s", co.SessionID, printfulOrderID)
	if err := p.provider.CancelOrder(ctx, printfulOrderID); err != nil {
		log.Errorf("[Webhook] Could not cancel printful order %s for session %s: %v", printfulOrderID, co.SessionID, err)
		p.enqueueReconcile(ctx, co, printfulOrderID)
	}
}

// archive uploads the event in the background so a slow bucket never eats
// into the delivery deadline.
func (p *Pipeline) archive(ctx context.Context, ev *payment.VerifiedEvent) {
	if p.archiver == nil {
		return
	}
	p.archives.Add(1)
	go func() {
		defer p.archives.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		if err := p.archiver.Archive(ctx, ev); err != nil {
			log.Warnf("[Webhook] Failed to archive event %s: %v", ev.ID, err)
		}
	}()
}

// Wait blocks until pending archive uploads have finished.
func (p *Pipeline) Wait() {
	p.archives.Wait()
}

func (p *Pipeline) orderInput(ctx context.Context, co *payment.Checkout) orders.OrderInput {
	in := orders.OrderInput{
		SessionID:     co.SessionID,
		ExternalID:    co.Request.ExternalID,
		UserID:        co.UserID,
		MemoryID:      co.MemoryID,
		ProductID:     co.ProductID,
		CustomerEmail: co.CustomerEmail,
		CustomerName:  co.CustomerName,
		Quantity:      totalQuantity(co.Request),
		AmountPaid:    co.AmountPaid,
		Status:        models.OrderStatusPending,
	}
	if p.prices != nil {
		if price, ok := p.prices.UnitPrice(ctx, co.ProductID); ok {
			in.UnitPrice = price
		}
	}
	return in
}

func totalQuantity(req fulfillment.Request) int {
	n := 0
	for _, it := range req.Items {
		n += it.Quantity
	}
	return n
}

func awaitingFulfillment(o *models.Order) bool {
	return o.Status == models.OrderStatusPending || o.Status == models.OrderStatusFailed
}

// String is used in log lines.
func (r *Result) String() string {
	if r == nil {
		return "<nil>"
	}
	if r.Order == nil {
		return fmt.Sprintf("%s event=%s", r.Outcome, r.EventID)
	}
	return fmt.Sprintf("%s event=%s order=%d", r.Outcome, r.EventID, r.Order.ID)
}

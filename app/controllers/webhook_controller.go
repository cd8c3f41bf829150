package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/MemoWindow/internal/pkg/checkout"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/payment"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// WebhookProcessor handles one signed webhook delivery.
type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) (*checkout.Result, error)
}

// OutcomeRecorder tallies how deliveries ended.
type OutcomeRecorder interface {
	AddOutcome(ctx context.Context, outcome string) error
}

// WebhookController receives payment provider webhooks
type WebhookController struct {
	processor WebhookProcessor
	timeout   time.Duration
	outcomes  OutcomeRecorder
}

// NewWebhookController creates a webhook controller. timeout bounds the whole
// delivery and should exceed the fulfillment lease.
func NewWebhookController(processor WebhookProcessor, timeout time.Duration) *WebhookController {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &WebhookController{processor: processor, timeout: timeout}
}

// WithOutcomeRecorder enables outcome counting.
func (wc *WebhookController) WithOutcomeRecorder(r OutcomeRecorder) *WebhookController {
	wc.outcomes = r
	return wc
}

// HandleStripeWebhook answers 200 on success or benign no-op, 400 on a bad
// signature and 500 on anything else so the provider redelivers.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	// fasthttp reuses the request buffer after the handler returns
	payload := append([]byte(nil), c.Body()...)
	signature := c.Get(payment.SignatureHeader)

	// a client disconnect must not abort a provider call already issued
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.UserContext()), wc.timeout)
	defer cancel()

	result, err := wc.processor.Handle(ctx, payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			wc.record(ctx, counter.OutcomeInvalidSignature)
			log.Warnf("[Webhook] Rejected delivery from %s: %v", c.IP(), err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}
		wc.record(ctx, counter.OutcomeError)
		log.Errorf("[Webhook] Delivery failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	wc.record(ctx, string(result.Outcome))
	log.Infof("[Webhook] %s", result)
	return c.JSON(fiber.Map{
		"status": "success",
	})
}

func (wc *WebhookController) record(ctx context.Context, outcome string) {
	if wc.outcomes == nil {
		return
	}
	if err := wc.outcomes.AddOutcome(ctx, outcome); err != nil {
		log.Debugf("[Webhook] Outcome counter unavailable: %v", err)
	}
}

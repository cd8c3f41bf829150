package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/MemoWindow/app/models"
	"github.com/ManuelReschke/MemoWindow/app/repository"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/orders"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// ============================================================================
// ADMIN ORDER CONTROLLER - Repository Pattern
// ============================================================================

// OrderLedger is the part of the order ledger the admin screens use.
type OrderLedger interface {
	ListRecent(ctx context.Context, limit int) ([]models.Order, int64, error)
	Cancel(ctx context.Context, orderID uint, actorID, reason string) (*models.Order, bool, error)
}

// UpstreamCanceller cancels the provider side of an order.
type UpstreamCanceller interface {
	CancelOrder(ctx context.Context, printfulOrderID string) error
}

// OutcomeStats reads the webhook outcome tallies.
type OutcomeStats interface {
	Outcomes(ctx context.Context) ([]counter.OutcomeCount, error)
}

// AdminOrderController handles the admin order list and cancellation
type AdminOrderController struct {
	ledger    OrderLedger
	admins    repository.AdminRepository
	upstream  UpstreamCanceller
	stats     OutcomeStats
	listLimit int
	validate  *validator.Validate
}

// NewAdminOrderController creates a new admin order controller. upstream may be nil.
func NewAdminOrderController(ledger OrderLedger, admins repository.AdminRepository, upstream UpstreamCanceller, listLimit int) *AdminOrderController {
	if listLimit <= 0 {
		listLimit = 50
	}
	return &AdminOrderController{
		ledger:    ledger,
		admins:    admins,
		upstream:  upstream,
		listLimit: listLimit,
		validate:  validator.New(),
	}
}

// WithOutcomeStats shows webhook outcome tallies above the order table.
func (aoc *AdminOrderController) WithOutcomeStats(stats OutcomeStats) *AdminOrderController {
	aoc.stats = stats
	return aoc
}

// CancelOrderForm is the form posted by the cancel modal
type CancelOrderForm struct {
	OrderID     string `form:"order_id" validate:"required,number"`
	AdminUserID string `form:"admin_user_id" validate:"required,max=255"`
	Reason      string `form:"reason" validate:"max=500"`
}

// OrderRow is one line of the admin order table.
type OrderRow struct {
	ID              uint
	Number          string
	SessionID       string
	UserID          string
	MemoryID        uint
	ProductID       string
	CustomerName    string
	CustomerEmail   string
	Quantity        int
	UnitPrice       string
	TotalPrice      string
	AmountPaid      string
	Status          string
	ProviderOrderID string
	LastError       string
	CreatedAt       string
	Cancellable     bool
}

func newOrderRow(o models.Order) OrderRow {
	return OrderRow{
		ID:              o.ID,
		Number:          o.ShortNumber(),
		SessionID:       o.StripeSessionID,
		UserID:          o.UserID,
		MemoryID:        o.MemoryID,
		ProductID:       o.ProductID,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		Quantity:        o.Quantity,
		UnitPrice:       models.FormatPrice(o.UnitPrice),
		TotalPrice:      models.FormatPrice(o.TotalPrice),
		AmountPaid:      models.FormatPrice(o.AmountPaid),
		Status:          o.Status,
		ProviderOrderID: o.ProviderOrderID(),
		LastError:       o.LastError,
		CreatedAt:       o.CreatedAt.UTC().Format("2006-01-02 15:04"),
		Cancellable:     o.IsCancellable(),
	}
}

// HandleAdminOrders renders the newest orders. Storage failures degrade to an
// error box instead of an empty page.
func (aoc *AdminOrderController) HandleAdminOrders(c *fiber.Ctx) error {
	adminID := strings.TrimSpace(c.Query("user_id"))

	isAdmin, err := aoc.admins.IsAdmin(adminID)
	if err != nil {
		log.Errorf("[AdminOrders] Admin lookup for %q failed: %v", adminID, err)
		return aoc.renderOrders(c, fiber.StatusInternalServerError, fiber.Map{
			"Error": "Could not verify admin access. Please try again later.",
		})
	}
	if !isAdmin {
		return aoc.renderOrders(c, fiber.StatusForbidden, fiber.Map{
			"Forbidden": true,
			"Error":     "Access denied. Admin privileges required.",
		})
	}

	list, total, err := aoc.ledger.ListRecent(c.UserContext(), aoc.listLimit)
	if err != nil {
		log.Errorf("[AdminOrders] Failed to list orders: %v", err)
		return aoc.renderOrders(c, fiber.StatusInternalServerError, fiber.Map{
			"AdminUserID": adminID,
			"Error":       "Orders could not be loaded.",
		})
	}

	rows := make([]OrderRow, 0, len(list))
	for _, o := range list {
		rows = append(rows, newOrderRow(o))
	}

	data := fiber.Map{
		"AdminUserID": adminID,
		"Orders":      rows,
		"Total":       total,
		"Shown":       len(rows),
	}
	if aoc.stats != nil {
		// tallies are informational, a cache outage only hides them
		if outcomes, err := aoc.stats.Outcomes(c.UserContext()); err == nil {
			data["Outcomes"] = outcomes
		}
	}
	return aoc.renderOrders(c, fiber.StatusOK, data)
}

func (aoc *AdminOrderController) renderOrders(c *fiber.Ctx, status int, data fiber.Map) error {
	data["Title"] = "Orders"
	// the template negates these, they must not be missing
	for key, zero := range map[string]interface{}{"Forbidden": false, "Error": ""} {
		if _, ok := data[key]; !ok {
			data[key] = zero
		}
	}
	return c.Status(status).Render("admin/orders", data)
}

// HandleCancelOrder resolves the admin first, then cancels. Unauthorized
// callers never reach the ledger.
func (aoc *AdminOrderController) HandleCancelOrder(c *fiber.Ctx) error {
	var form CancelOrderForm
	if err := c.BodyParser(&form); err != nil {
		return cancelFailure(c, fiber.StatusBadRequest, "Invalid form data")
	}
	form.AdminUserID = strings.TrimSpace(form.AdminUserID)
	form.OrderID = strings.TrimSpace(form.OrderID)
	form.Reason = strings.TrimSpace(form.Reason)

	isAdmin, err := aoc.admins.IsAdmin(form.AdminUserID)
	if err != nil {
		log.Errorf("[AdminOrders] Admin lookup for %q failed: %v", form.AdminUserID, err)
		return cancelFailure(c, fiber.StatusInternalServerError, "Could not verify admin access")
	}
	if !isAdmin {
		log.Warnf("[AdminOrders] Cancel attempt by non-admin %q", form.AdminUserID)
		return cancelFailure(c, fiber.StatusForbidden, "unauthorized")
	}

	if err := aoc.validate.Struct(form); err != nil {
		return cancelFailure(c, fiber.StatusBadRequest, "Invalid order ID")
	}
	orderID, err := strconv.ParseUint(form.OrderID, 10, 64)
	if err != nil || orderID == 0 {
		return cancelFailure(c, fiber.StatusBadRequest, "Invalid order ID")
	}

	order, changed, err := aoc.ledger.Cancel(c.UserContext(), uint(orderID), form.AdminUserID, form.Reason)
	if err != nil {
		var te *orders.TransitionError
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			return cancelFailure(c, fiber.StatusNotFound, "Order not found")
		case errors.As(err, &te):
			return cancelFailure(c, fiber.StatusConflict, "Order cannot be cancelled in status "+te.From)
		default:
			log.Errorf("[AdminOrders] Cancel of order %d failed: %v", orderID, err)
			return cancelFailure(c, fiber.StatusInternalServerError, "Failed to cancel order")
		}
	}

	if changed {
		log.Infof("[AdminOrders] Order %d cancelled by %s", order.ID, form.AdminUserID)
		aoc.cancelUpstream(c.UserContext(), order)
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

// cancelUpstream asks the provider to cancel too. The local cancel already
// happened, so a failure is only logged.
func (aoc *AdminOrderController) cancelUpstream(ctx context.Context, order *models.Order) {
	providerID := order.ProviderOrderID()
	if aoc.upstream == nil || providerID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := aoc.upstream.CancelOrder(ctx, providerID); err != nil {
		log.Errorf("[AdminOrders] Order %d cancelled locally but provider order %s was not: %v", order.ID, providerID, err)
	}
}

func cancelFailure(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ManuelReschke/MemoWindow/internal/pkg/fulfillment"
	"github.com/go-playground/validator/v10"
)

// ErrIgnoredEvent is returned for verified events that need no fulfillment.
var ErrIgnoredEvent = errors.New("event type ignored")

// MissingFieldError names the first required field absent from a checkout event.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing or invalid required field: %s", e.Field)
}

// Checkout carries the ledger facing details of a completed checkout.
type Checkout struct {
	EventID       string
	SessionID     string
	UserID        string
	MemoryID      uint
	ProductID     string
	ImageURL      string
	CustomerName  string
	CustomerEmail string
	AmountPaid    int64
	Currency      string
	Request       fulfillment.Request
}

// checkoutFields is the flattened set of values a checkout must provide.
// The field tag is the path reported in MissingFieldError.
type checkoutFields struct {
	SessionID         string `field:"id" validate:"required"`
	MemoryID          string `field:"metadata.memory_id" validate:"required,numeric"`
	ProductID         string `field:"metadata.product_id" validate:"required"`
	UserID            string `field:"metadata.user_id" validate:"required"`
	ImageURL          string `field:"metadata.image_url" validate:"required"`
	PrintfulProductID string `field:"metadata.printful_product_id" validate:"required,numeric"`
	CustomerName      string `field:"customer_details.name" validate:"required"`
	CustomerEmail     string `field:"customer_details.email" validate:"required"`
	Line1             string `field:"shipping_details.address.line1" validate:"required"`
	City              string `field:"shipping_details.address.city" validate:"required"`
	State             string `field:"shipping_details.address.state" validate:"required"`
	Country           string `field:"shipping_details.address.country" validate:"required"`
	PostalCode        string `field:"shipping_details.address.postal_code" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("field")
	})
	return v
}

// Translate turns a verified event into a fulfillment request. Events other
// than checkout.session.completed yield ErrIgnoredEvent.
func Translate(ev *VerifiedEvent) (*Checkout, error) {
	if ev == nil || ev.Type != EventCheckoutSessionCompleted {
		return nil, ErrIgnoredEvent
	}

	var payload checkoutEvent
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	session := payload.Data.Object
	meta := session.Metadata
	addr := session.ShippingDetails.Address

	fields := checkoutFields{
		SessionID:         strings.TrimSpace(session.ID),
		MemoryID:          firstNonEmpty(meta.MemoryID, meta.AssetID),
		ProductID:         meta.ProductID.String(),
		UserID:            meta.UserID.String(),
		ImageURL:          meta.ImageURL.String(),
		PrintfulProductID: firstNonEmpty(meta.PrintfulProductID, meta.ProviderProductID),
		CustomerName:      strings.TrimSpace(session.CustomerDetails.Name),
		CustomerEmail:     strings.TrimSpace(session.CustomerDetails.Email),
		Line1:             strings.TrimSpace(addr.Line1),
		City:              strings.TrimSpace(addr.City),
		State:             strings.TrimSpace(addr.State),
		Country:           strings.TrimSpace(addr.Country),
		PostalCode:        strings.TrimSpace(addr.PostalCode),
	}
	if err := validate.Struct(fields); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &MissingFieldError{Field: verrs[0].Field()}
		}
		return nil, err
	}

	memoryID, ok := parsePositiveInt(fields.MemoryID)
	if !ok {
		return nil, &MissingFieldError{Field: "metadata.memory_id"}
	}
	variantID, ok := parsePositiveInt(fields.PrintfulProductID)
	if !ok {
		return nil, &MissingFieldError{Field: "metadata.printful_product_id"}
	}

	req := fulfillment.Request{
		ExternalID: fulfillment.ExternalID(fields.SessionID),
		Recipient: fulfillment.Recipient{
			Name:        fields.CustomerName,
			Email:       fields.CustomerEmail,
			Address1:    fields.Line1,
			Address2:    strings.TrimSpace(addr.Line2),
			City:        fields.City,
			StateCode:   fields.State,
			CountryCode: fields.Country,
			Zip:         fields.PostalCode,
		},
		Items: []fulfillment.LineItem{
			{
				VariantID: variantID,
				Quantity:  1,
				Files: []fulfillment.File{
					{Type: fulfillment.FileTypeDefault, URL: fields.ImageURL},
				},
			},
		},
	}

	return &Checkout{
		EventID:       ev.ID,
		SessionID:     fields.SessionID,
		UserID:        fields.UserID,
		MemoryID:      uint(memoryID),
		ProductID:     fields.ProductID,
		ImageURL:      fields.ImageURL,
		CustomerName:  fields.CustomerName,
		CustomerEmail: fields.CustomerEmail,
		AmountPaid:    session.AmountTotal,
		Currency:      session.Currency,
		Request:       req,
	}, nil
}

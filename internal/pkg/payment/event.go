package payment

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// EventCheckoutSessionCompleted is the only event type that triggers fulfillment.
const EventCheckoutSessionCompleted = "checkout.session.completed"

type checkoutEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object checkoutSession `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID              string           `json:"id"`
	AmountTotal     int64            `json:"amount_total"`
	Currency        string           `json:"currency"`
	Metadata        checkoutMetadata `json:"metadata"`
	CustomerDetails customerDetails  `json:"customer_details"`
	ShippingDetails shippingDetails  `json:"shipping_details"`
}

// checkoutMetadata accepts both the storefront key names and their
// provider neutral aliases.
type checkoutMetadata struct {
	MemoryID          metaValue `json:"memory_id"`
	AssetID           metaValue `json:"asset_id"`
	ProductID         metaValue `json:"product_id"`
	UserID            metaValue `json:"user_id"`
	ImageURL          metaValue `json:"image_url"`
	PrintfulProductID metaValue `json:"printful_product_id"`
	ProviderProductID metaValue `json:"provider_product_id"`
}

type customerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type shippingDetails struct {
	Name    string  `json:"name"`
	Address address `json:"address"`
}

type address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

// metaValue decodes a metadata entry sent either as a JSON string or a number.
type metaValue string

func (m *metaValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = metaValue(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*m = metaValue(n.String())
	return nil
}

func (m metaValue) String() string {
	return string(m)
}

func firstNonEmpty(values ...metaValue) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

func parsePositiveInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

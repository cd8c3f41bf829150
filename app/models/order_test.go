package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{2499, "$24.99"},
		{100000, "$1000.00"},
		{-150, "-$1.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPrice(tt.cents))
	}
}

func TestOrder_ShortNumber(t *testing.T) {
	o := &Order{StripeSessionID: "cs_test_a1b2c3d4e5f6g7h8"}
	assert.Equal(t, "e5f6g7h8", o.ShortNumber())

	short := &Order{StripeSessionID: "cs_1"}
	assert.Equal(t, "cs_1", short.ShortNumber())
}

func TestOrder_IsCancellable(t *testing.T) {
	cases := map[string]bool{
		OrderStatusPending:    true,
		OrderStatusPaid:       true,
		OrderStatusProcessing: false,
		OrderStatusShipped:    false,
		OrderStatusDelivered:  false,
		OrderStatusCancelled:  false,
		OrderStatusFailed:     false,
	}
	for status, want := range cases {
		o := &Order{Status: status}
		assert.Equal(t, want, o.IsCancellable(), status)
	}
}

func TestOrder_ProviderOrderID(t *testing.T) {
	o := &Order{}
	assert.Equal(t, "", o.ProviderOrderID())
	id := "12345"
	o.PrintfulOrderID = &id
	assert.Equal(t, "12345", o.ProviderOrderID())
}

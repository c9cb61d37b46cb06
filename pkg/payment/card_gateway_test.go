package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"115.50", 11550},
		{"0.01", 1},
		{"1000000.00", 100000000},
		{"99.99", 9999},
		{"0.00", 0},
		// Sub-cent precision rounds half-up, never truncates.
		{"10.005", 1001},
		{"10.004", 1000},
		{"10.0049", 1000},
		{"0.005", 1},
	}

	for _, tt := range tests {
		got, err := toMinorUnits(decimal.RequireFromString(tt.amount))
		require.NoError(t, err, "amount %s", tt.amount)
		assert.Equal(t, tt.want, got, "amount %s", tt.amount)
	}
}

func TestToMinorUnitsRejectsNegative(t *testing.T) {
	_, err := toMinorUnits(decimal.RequireFromString("-1.00"))
	assert.Error(t, err)
}

func TestMapIntentStatus(t *testing.T) {
	tests := []struct {
		status stripe.PaymentIntentStatus
		want   Status
	}{
		{stripe.PaymentIntentStatusSucceeded, StatusSuccess},
		{stripe.PaymentIntentStatusCanceled, StatusFailed},
		{stripe.PaymentIntentStatusProcessing, StatusPending},
		{stripe.PaymentIntentStatusRequiresPaymentMethod, StatusPending},
		{stripe.PaymentIntentStatusRequiresAction, StatusPending},
		{stripe.PaymentIntentStatusRequiresConfirmation, StatusPending},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, mapIntentStatus(tt.status), "status %s", tt.status)
	}
}

func TestRegistryLookup(t *testing.T) {
	card := NewCardGateway(CardConfig{SecretKey: "sk_test"})
	wallet := NewWalletGateway(WalletConfig{BaseURL: "http://localhost"})
	registry := NewRegistry(card, wallet)

	t.Run("Known Providers", func(t *testing.T) {
		p, err := registry.Lookup("card")
		require.NoError(t, err)
		assert.Equal(t, "card", p.Name())

		p, err = registry.Lookup("wallet")
		require.NoError(t, err)
		assert.Equal(t, "wallet", p.Name())
	})

	t.Run("Unknown Provider", func(t *testing.T) {
		p, err := registry.Lookup("crypto")
		assert.Nil(t, p)

		var unknown *ErrUnknownProvider
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "crypto", unknown.Name)
	})

	t.Run("Names Sorted", func(t *testing.T) {
		assert.Equal(t, []string{"card", "wallet"}, registry.Names())
	})
}

package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWalletTestServer(t *testing.T, grantCount *int32, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tokenized/checkout/token/grant" {
			atomic.AddInt32(grantCount, 1)
			assert.Equal(t, "test-user", r.Header.Get("username"))
			assert.Equal(t, "test-pass", r.Header.Get("password"))

			var body walletGrantRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "app-key", body.AppKey)
			assert.Equal(t, "app-secret", body.AppSecret)

			json.NewEncoder(w).Encode(walletGrantResponse{
				IDToken:    "token-1",
				TokenType:  "Bearer",
				ExpiresIn:  3600,
				StatusCode: "0000",
			})
			return
		}
		handler(w, r)
	}))
}

func newWalletTestGateway(serverURL string) *WalletGateway {
	return NewWalletGateway(WalletConfig{
		BaseURL:     serverURL,
		AppKey:      "app-key",
		AppSecret:   "app-secret",
		Username:    "test-user",
		Password:    "test-pass",
		CallbackURL: "https://example.com/api/v1/webhooks/wallet",
	})
}

func TestWalletCreatePayment(t *testing.T) {
	var grants int32
	srv := newWalletTestServer(t, &grants, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tokenized/checkout/create", r.URL.Path)
		assert.Equal(t, "token-1", r.Header.Get("authorization"))
		assert.Equal(t, "app-key", r.Header.Get("x-app-key"))

		var body walletCreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "115.50", body.Amount)
		assert.Equal(t, "sale", body.Intent)

		json.NewEncoder(w).Encode(walletPaymentResponse{
			PaymentID:  "TR0011abc",
			WalletURL:  "https://wallet.example/checkout/TR0011abc",
			StatusCode: "0000",
		})
	})
	defer srv.Close()

	gateway := newWalletTestGateway(srv.URL)
	result, err := gateway.CreatePayment(context.Background(), CreateRequest{
		ReferenceID: "pay-1",
		Amount:      decimal.RequireFromString("115.50"),
		Currency:    "BDT",
	})
	require.NoError(t, err)
	assert.Equal(t, "TR0011abc", result.TransactionID)
	assert.Equal(t, "https://wallet.example/checkout/TR0011abc", result.RedirectURL)
	assert.Equal(t, StatusPending, result.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&grants))
}

func TestWalletCreatePaymentFailureCode(t *testing.T) {
	var grants int32
	srv := newWalletTestServer(t, &grants, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(walletPaymentResponse{
			StatusCode:    "2054",
			StatusMessage: "Invalid amount",
		})
	})
	defer srv.Close()

	gateway := newWalletTestGateway(srv.URL)
	result, err := gateway.CreatePayment(context.Background(), CreateRequest{
		ReferenceID: "pay-1",
		Amount:      decimal.RequireFromString("0.00"),
		Currency:    "BDT",
	})
	assert.Nil(t, result)

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "wallet", provErr.Provider)
	assert.Equal(t, "2054", provErr.Code)
	assert.Contains(t, provErr.Error(), "Invalid amount")
}

func TestWalletTokenReuse(t *testing.T) {
	var grants int32
	srv := newWalletTestServer(t, &grants, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(walletPaymentResponse{
			PaymentID:         "TR0011abc",
			TransactionStatus: "Completed",
			StatusCode:        "0000",
		})
	})
	defer srv.Close()

	gateway := newWalletTestGateway(srv.URL)

	for i := 0; i < 3; i++ {
		_, err := gateway.GetStatus(context.Background(), "TR0011abc")
		require.NoError(t, err)
	}

	// One grant serves all three calls.
	assert.Equal(t, int32(1), atomic.LoadInt32(&grants))
}

func TestWalletConfirmPayment(t *testing.T) {
	var grants int32
	srv := newWalletTestServer(t, &grants, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tokenized/checkout/execute", r.URL.Path)
		json.NewEncoder(w).Encode(walletPaymentResponse{
			PaymentID:         "TR0011abc",
			TransactionStatus: "Completed",
			TrxID:             "8AB12345CD",
			StatusCode:        "0000",
		})
	})
	defer srv.Close()

	gateway := newWalletTestGateway(srv.URL)
	result, err := gateway.ConfirmPayment(context.Background(), "TR0011abc")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "TR0011abc", result.TransactionID)
}

func TestMapWalletStatus(t *testing.T) {
	tests := []struct {
		code   string
		status string
		want   Status
	}{
		{"0000", "Completed", StatusSuccess},
		{"0000", "Initiated", StatusPending},
		{"0000", "Authorized", StatusPending},
		{"0000", "", StatusPending},
		{"0000", "Cancelled", StatusFailed},
		{"2054", "Completed", StatusFailed},
		{"2062", "", StatusFailed},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, mapWalletStatus(tt.code, tt.status), "code=%s status=%s", tt.code, tt.status)
	}
}

func TestWalletPersistentUnauthorized(t *testing.T) {
	var grants int32
	srv := newWalletTestServer(t, &grants, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer srv.Close()

	gateway := newWalletTestGateway(srv.URL)
	result, err := gateway.GetStatus(context.Background(), "TR0011abc")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized after token refresh")
	// One grant up front, one refresh attempt, then give up.
	assert.Equal(t, int32(2), atomic.LoadInt32(&grants))
}

func TestWalletRefundPayment(t *testing.T) {
	var grants int32
	srv := newWalletTestServer(t, &grants, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tokenized/checkout/payment/refund", r.URL.Path)

		var body walletRefundRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "TR0011abc", body.PaymentID)
		assert.Equal(t, "115.50", body.Amount)

		json.NewEncoder(w).Encode(walletRefundResponse{
			RefundTrxID: "RF001",
			StatusCode:  "0000",
		})
	})
	defer srv.Close()

	gateway := newWalletTestGateway(srv.URL)
	result, err := gateway.RefundPayment(context.Background(), "TR0011abc", decimal.RequireFromString("115.50"), "BDT")
	require.NoError(t, err)
	assert.Equal(t, "RF001", result.RefundID)
	assert.Equal(t, StatusSuccess, result.Status)
}

func TestWalletRefundPaymentRejectsZeroAmount(t *testing.T) {
	gateway := newWalletTestGateway("http://localhost")

	result, err := gateway.RefundPayment(context.Background(), "TR0011abc", decimal.Zero, "BDT")
	assert.Nil(t, result)

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Contains(t, provErr.Message, "must be positive")
}

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const walletProviderName = "wallet"

// walletSuccessCode is the status code the wallet API returns on success.
const walletSuccessCode = "0000"

// WalletGateway implements payments via the tokenized wallet checkout API.
// The API uses a short-lived grant token for authentication; the token is
// cached and refreshed lazily.
type WalletGateway struct {
	baseURL     string
	appKey      string
	appSecret   string
	username    string
	password    string
	callbackURL string
	client      *http.Client

	// Token management
	token       string
	tokenMutex  sync.RWMutex
	tokenExpiry time.Time
}

// WalletConfig holds configuration for the wallet gateway
type WalletConfig struct {
	BaseURL     string
	AppKey      string
	AppSecret   string
	Username    string
	Password    string
	CallbackURL string
}

// NewWalletGateway creates a new wallet gateway client
func NewWalletGateway(config WalletConfig) *WalletGateway {
	return &WalletGateway{
		baseURL:     config.BaseURL,
		appKey:      config.AppKey,
		appSecret:   config.AppSecret,
		username:    config.Username,
		password:    config.Password,
		callbackURL: config.CallbackURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements Provider
func (g *WalletGateway) Name() string {
	return walletProviderName
}

type walletGrantRequest struct {
	AppKey    string `json:"app_key"`
	AppSecret string `json:"app_secret"`
}

type walletGrantResponse struct {
	IDToken       string `json:"id_token"`
	TokenType     string `json:"token_type"`
	ExpiresIn     int    `json:"expires_in"`
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}

type walletCreateRequest struct {
	Mode            string `json:"mode"`
	PayerReference  string `json:"payerReference"`
	CallbackURL     string `json:"callbackURL"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Intent          string `json:"intent"`
	MerchantInvoice string `json:"merchantInvoiceNumber"`
}

type walletPaymentResponse struct {
	PaymentID         string `json:"paymentID"`
	WalletURL         string `json:"bkashURL"`
	TransactionStatus string `json:"transactionStatus"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	TrxID             string `json:"trxID"`
	StatusCode        string `json:"statusCode"`
	StatusMessage     string `json:"statusMessage"`
}

type walletRefundRequest struct {
	PaymentID string `json:"paymentID"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
}

type walletRefundResponse struct {
	RefundTrxID       string `json:"refundTrxID"`
	TransactionStatus string `json:"transactionStatus"`
	StatusCode        string `json:"statusCode"`
	StatusMessage     string `json:"statusMessage"`
}

// grantToken fetches a fresh grant token and caches it.
func (g *WalletGateway) grantToken(ctx context.Context) error {
	body, err := json.Marshal(walletGrantRequest{AppKey: g.appKey, AppSecret: g.appSecret})
	if err != nil {
		return fmt.Errorf("failed to marshal grant request: %w", err)
	}

	url := fmt.Sprintf("%s/tokenized/checkout/token/grant", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create grant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("username", g.username)
	req.Header.Set("password", g.password)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send grant request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read grant response: %w", err)
	}

	var grant walletGrantResponse
	if err := json.Unmarshal(respBody, &grant); err != nil {
		return fmt.Errorf("failed to parse grant response: %w", err)
	}

	if grant.StatusCode != walletSuccessCode || grant.IDToken == "" {
		return fmt.Errorf("token grant failed: %s (code %s)", grant.StatusMessage, grant.StatusCode)
	}

	g.tokenMutex.Lock()
	g.token = grant.IDToken
	g.tokenExpiry = time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	g.tokenMutex.Unlock()

	return nil
}

// isTokenValid checks if the cached token is still usable.
func (g *WalletGateway) isTokenValid() bool {
	g.tokenMutex.RLock()
	defer g.tokenMutex.RUnlock()

	if g.token == "" {
		return false
	}

	// Consider the token invalid 5 minutes before actual expiry
	return time.Now().Before(g.tokenExpiry.Add(-5 * time.Minute))
}

// ensureValidToken refreshes the grant token when missing or near expiry.
func (g *WalletGateway) ensureValidToken(ctx context.Context) error {
	if g.isTokenValid() {
		return nil
	}

	return g.grantToken(ctx)
}

// post sends an authenticated request to a checkout endpoint and decodes the
// response into out. On a 401 the token is refreshed once and the request
// retried.
func (g *WalletGateway) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	if err := g.ensureValidToken(ctx); err != nil {
		return fmt.Errorf("failed to get grant token: %w", err)
	}

	status, err := g.doPost(ctx, path, payload, out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if err := g.grantToken(ctx); err != nil {
			return fmt.Errorf("failed to refresh grant token: %w", err)
		}
		status, err = g.doPost(ctx, path, payload, out)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return fmt.Errorf("request to %s unauthorized after token refresh", path)
		}
	}

	return nil
}

func (g *WalletGateway) doPost(ctx context.Context, path string, payload interface{}, out interface{}) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s%s", g.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	g.tokenMutex.RLock()
	req.Header.Set("authorization", g.token)
	g.tokenMutex.RUnlock()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-app-key", g.appKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
	}

	return resp.StatusCode, nil
}

// CreatePayment initiates a tokenized checkout. The customer finishes the
// payment at the returned redirect URL.
func (g *WalletGateway) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	createReq := walletCreateRequest{
		Mode:            "0011",
		PayerReference:  req.ReferenceID,
		CallbackURL:     g.callbackURL,
		Amount:          req.Amount.StringFixed(2),
		Currency:        req.Currency,
		Intent:          "sale",
		MerchantInvoice: req.ReferenceID,
	}

	var createResp walletPaymentResponse
	if err := g.post(ctx, "/tokenized/checkout/create", createReq, &createResp); err != nil {
		return nil, &Error{Provider: walletProviderName, Op: "create", Message: "checkout creation failed", Err: err}
	}

	if createResp.StatusCode != walletSuccessCode {
		return nil, &Error{
			Provider: walletProviderName,
			Op:       "create",
			Code:     createResp.StatusCode,
			Message:  createResp.StatusMessage,
		}
	}

	return &CreateResult{
		TransactionID: createResp.PaymentID,
		RedirectURL:   createResp.WalletURL,
		Status:        StatusPending,
		Raw:           rawMap(createResp),
	}, nil
}

// ConfirmPayment executes a checkout the customer has authorized.
func (g *WalletGateway) ConfirmPayment(ctx context.Context, transactionID string) (*ConfirmResult, error) {
	var execResp walletPaymentResponse
	payload := map[string]string{"paymentID": transactionID}
	if err := g.post(ctx, "/tokenized/checkout/execute", payload, &execResp); err != nil {
		return nil, &Error{Provider: walletProviderName, Op: "confirm", Message: "checkout execution failed", Err: err}
	}

	return &ConfirmResult{
		TransactionID: transactionID,
		Status:        mapWalletStatus(execResp.StatusCode, execResp.TransactionStatus),
		Raw:           rawMap(execResp),
	}, nil
}

// RefundPayment refunds an executed checkout.
func (g *WalletGateway) RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (*RefundResult, error) {
	if !amount.IsPositive() {
		return nil, &Error{
			Provider: walletProviderName,
			Op:       "refund",
			Message:  fmt.Sprintf("refund amount must be positive, got %s", amount),
		}
	}

	refundReq := walletRefundRequest{
		PaymentID: transactionID,
		Amount:    amount.StringFixed(2),
		Reason:    "requested by customer",
	}

	var refundResp walletRefundResponse
	if err := g.post(ctx, "/tokenized/checkout/payment/refund", refundReq, &refundResp); err != nil {
		return nil, &Error{Provider: walletProviderName, Op: "refund", Message: "refund failed", Err: err}
	}

	if refundResp.StatusCode != walletSuccessCode {
		return nil, &Error{
			Provider: walletProviderName,
			Op:       "refund",
			Code:     refundResp.StatusCode,
			Message:  refundResp.StatusMessage,
		}
	}

	return &RefundResult{
		RefundID: refundResp.RefundTrxID,
		Status:   StatusSuccess,
		Raw:      rawMap(refundResp),
	}, nil
}

// GetStatus queries the wallet API for a checkout's current state.
func (g *WalletGateway) GetStatus(ctx context.Context, transactionID string) (*StatusResult, error) {
	var statusResp walletPaymentResponse
	payload := map[string]string{"paymentID": transactionID}
	if err := g.post(ctx, "/tokenized/checkout/payment/status", payload, &statusResp); err != nil {
		return nil, &Error{Provider: walletProviderName, Op: "status", Message: "status query failed", Err: err}
	}

	return &StatusResult{
		TransactionID: transactionID,
		Status:        mapWalletStatus(statusResp.StatusCode, statusResp.TransactionStatus),
		Raw:           rawMap(statusResp),
	}, nil
}

// mapWalletStatus folds the wallet API's status code and transaction status
// into the provider-agnostic view. "0000" with a completed transaction means
// captured; "0000" with any other transaction status means still in progress.
func mapWalletStatus(statusCode, transactionStatus string) Status {
	if statusCode != walletSuccessCode {
		return StatusFailed
	}
	switch transactionStatus {
	case "Completed":
		return StatusSuccess
	case "Initiated", "Authorized", "":
		return StatusPending
	default:
		return StatusFailed
	}
}

package payment

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Status is the provider-agnostic view of a remote payment's state.
type Status string

const (
	StatusPending Status = "pending" // created or awaiting customer action
	StatusSuccess Status = "success" // captured at the provider
	StatusFailed  Status = "failed"  // declined, canceled or expired
)

// CreateRequest describes a payment to initiate at a provider.
type CreateRequest struct {
	// ReferenceID is the caller's identifier for this attempt, attached to
	// the provider object so notifications can be traced back.
	ReferenceID string
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// CreateResult carries the provider handle for a newly initiated payment.
// Exactly one of ClientSecret or RedirectURL is set depending on how the
// provider continues the flow.
type CreateResult struct {
	// TransactionID is the provider-assigned reference. It is the key used
	// for every later operation against this payment.
	TransactionID string
	ClientSecret  string
	RedirectURL   string
	Status        Status
	Raw           map[string]interface{}
}

// ConfirmResult reports the provider-side state after a confirm attempt.
type ConfirmResult struct {
	TransactionID string
	Status        Status
	Raw           map[string]interface{}
}

// RefundResult reports a refund issued at the provider.
type RefundResult struct {
	RefundID string
	Status   Status
	Raw      map[string]interface{}
}

// StatusResult reports the provider-side state of a payment.
type StatusResult struct {
	TransactionID string
	Status        Status
	Raw           map[string]interface{}
}

// Provider is a single payment processor integration. Implementations talk
// to exactly one remote system and never touch local storage.
type Provider interface {
	// Name returns the stable identifier used to select this provider.
	Name() string

	// CreatePayment initiates a payment and returns the provider handle.
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)

	// ConfirmPayment drives the payment to a final state, or reports the
	// current one if the provider has already resolved it.
	ConfirmPayment(ctx context.Context, transactionID string) (*ConfirmResult, error)

	// RefundPayment returns captured funds. The amount is always explicit
	// and positive; callers pass the payment's full amount for a full refund.
	RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (*RefundResult, error)

	// GetStatus queries the provider for the payment's current state.
	GetStatus(ctx context.Context, transactionID string) (*StatusResult, error)
}

// Error is a failure reported by or while talking to a provider.
type Error struct {
	Provider string
	Op       string
	Code     string // provider-specific code when available
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %s (code %s)", e.Provider, e.Op, e.Message, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrUnknownProvider is returned by Registry.Lookup for unregistered names.
type ErrUnknownProvider struct {
	Name string
}

func (e *ErrUnknownProvider) Error() string {
	return fmt.Sprintf("unknown payment provider: %s", e.Name)
}

// Registry holds the configured providers keyed by name. Registration
// happens once at startup; lookups after that are read-only.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Lookup returns the provider for name, or ErrUnknownProvider.
func (r *Registry) Lookup(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, &ErrUnknownProvider{Name: name}
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

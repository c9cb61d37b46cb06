package services

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/estatevista/booking-backend/internal/config"
	"github.com/estatevista/booking-backend/internal/models"
)

// Quote is the monetary breakdown of a booking, computed once at creation.
type Quote struct {
	BaseAmount  decimal.Decimal `json:"base_amount"`
	ServiceFee  decimal.Decimal `json:"service_fee"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// PricingService derives fee, tax and total from a base price. All
// intermediate values are rounded to 2 decimal places, so identical inputs
// always produce identical quotes.
type PricingService struct {
	feeRate decimal.Decimal
	taxRate decimal.Decimal
	logger  *logrus.Logger
}

// NewPricingService creates a pricing service from the configured rates
func NewPricingService(cfg config.PricingConfig, logger *logrus.Logger) *PricingService {
	return &PricingService{
		feeRate: cfg.FeeRate,
		taxRate: cfg.TaxRate,
		logger:  logger,
	}
}

// Quote computes the breakdown for a base amount using the configured rates.
func (s *PricingService) Quote(baseAmount decimal.Decimal) (*Quote, error) {
	return s.QuoteWithRates(baseAmount, s.feeRate, s.taxRate)
}

// QuoteWithRates computes the breakdown for a base amount with explicit rates:
//
//	fee      = base * feeRate
//	subtotal = base + fee
//	tax      = subtotal * taxRate
//	total    = subtotal + tax
//
// The tax applies to the subtotal, so the fee itself is taxed.
func (s *PricingService) QuoteWithRates(baseAmount, feeRate, taxRate decimal.Decimal) (*Quote, error) {
	if baseAmount.IsNegative() {
		return nil, models.NewValidationError("base amount cannot be negative")
	}
	if feeRate.IsNegative() || taxRate.IsNegative() {
		return nil, models.NewValidationError("rates cannot be negative")
	}

	base := baseAmount.Round(2)
	fee := base.Mul(feeRate).Round(2)
	subtotal := base.Add(fee)
	tax := subtotal.Mul(taxRate).Round(2)
	total := subtotal.Add(tax)

	s.logger.WithFields(logrus.Fields{
		"base_amount": base,
		"service_fee": fee,
		"tax_amount":  tax,
		"total":       total,
	}).Debug("Computed booking quote")

	return &Quote{
		BaseAmount:  base,
		ServiceFee:  fee,
		TaxAmount:   tax,
		TotalAmount: total,
	}, nil
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/estatevista/booking-backend/internal/middleware"
	"github.com/estatevista/booking-backend/internal/models"
	"github.com/estatevista/booking-backend/internal/services"
)

// PaymentHandler handles payment lifecycle endpoints
type PaymentHandler struct {
	orchestrator *services.PaymentOrchestratorService
	logger       *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(orchestrator *services.PaymentOrchestratorService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// CreatePayment initiates a payment attempt for a pending booking
// @Summary Create payment
// @Description Initiates a payment at the selected provider; the amount comes from the booking
// @Tags Payments
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.CreatePaymentRequest true "Payment request"
// @Success 201 {object} models.CreatePaymentResponse
// @Failure 400 {object} map[string]interface{} "Validation error or unknown provider"
// @Failure 409 {object} map[string]interface{} "Booking not payable or payment in flight"
// @Failure 502 {object} map[string]interface{} "Provider failure"
// @Router /payments [post]
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	resp, err := h.orchestrator.CreatePayment(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ConfirmPayment resolves an in-flight payment against its provider
// @Summary Confirm payment
// @Description Checks the provider outcome and settles the payment and booking atomically
// @Tags Payments
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Payment ID"
// @Success 200 {object} models.SettlementResult
// @Failure 404 {object} map[string]interface{} "Not found"
// @Failure 502 {object} map[string]interface{} "Provider failure"
// @Router /payments/{id}/confirm [post]
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	result, err := h.orchestrator.ConfirmPayment(c.Request.Context(), userCtx.UserID, paymentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RefundPayment refunds a successful payment and cancels its booking
// @Summary Refund payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Payment ID"
// @Param request body models.RefundPaymentRequest false "Refund request (empty body means full refund)"
// @Success 200 {object} models.RefundResult
// @Failure 409 {object} map[string]interface{} "Payment not refundable"
// @Failure 502 {object} map[string]interface{} "Provider failure"
// @Router /payments/{id}/refund [post]
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	var req models.RefundPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}

	result, err := h.orchestrator.RefundPayment(c.Request.Context(), userCtx.UserID, paymentID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CheckStatus polls the provider for an in-flight payment's outcome
// @Summary Check payment status
// @Description Asks the provider for the current outcome and settles the payment if it is terminal
// @Tags Payments
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Payment ID"
// @Success 200 {object} models.SettlementResult
// @Failure 404 {object} map[string]interface{} "Not found"
// @Failure 502 {object} map[string]interface{} "Provider failure"
// @Router /payments/{id}/status [get]
func (h *PaymentHandler) CheckStatus(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	result, err := h.orchestrator.CheckProviderStatus(c.Request.Context(), userCtx.UserID, paymentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPayment retrieves a payment attempt
// @Summary Get payment
// @Tags Payments
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Payment ID"
// @Success 200 {object} models.Payment
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /payments/{id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	payment, err := h.orchestrator.GetPayment(c.Request.Context(), userCtx.UserID, paymentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// ListBookingPayments retrieves a booking's payment attempts
// @Summary List booking payments
// @Tags Payments
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Booking ID"
// @Success 200 {array} models.Payment
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /bookings/{id}/payments [get]
func (h *PaymentHandler) ListBookingPayments(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	payments, err := h.orchestrator.ListPayments(c.Request.Context(), userCtx.UserID, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

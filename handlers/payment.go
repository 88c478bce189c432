package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"dukapay-billing-api/models"
	"dukapay-billing-api/services/payment"
	"dukapay-billing-api/services/payment/daraja"
	"dukapay-billing-api/utils"
)

type PaymentHandler struct {
	paymentService *payment.Service
}

func NewPaymentHandler(ps *payment.Service) (*PaymentHandler, error) {
	if ps == nil {
		return nil, fmt.Errorf("payment service is required")
	}
	return &PaymentHandler{paymentService: ps}, nil
}

// InitiatePayment handles POST /api/payments/initiate.
func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	log.Printf("[RequestID: %s] Starting payment initiation", requestID)

	var req models.InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[RequestID: %s] Invalid request body: %v", requestID, err)
		utils.SendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	log.Printf("[RequestID: %s] Initiating %s subscription payment for %s (%d branches)",
		requestID, req.Tier, req.PhoneNumber, req.Branches)

	resp, err := h.paymentService.InitiatePayment(req.PhoneNumber, req.Tier, req.Branches)
	if err != nil {
		var authErr *daraja.AuthError
		switch {
		case errors.Is(err, payment.ErrInvalidPhoneNumber):
			utils.SendErrorResponse(w, http.StatusBadRequest,
				"Invalid phone number format. Use Kenyan international format, e.g. 254712345678")
		case errors.Is(err, payment.ErrBranchLimitExceeded):
			utils.SendErrorResponse(w, http.StatusBadRequest,
				"Branch count exceeds the allowed limit for this action or tier")
		case errors.Is(err, payment.ErrUnknownTier):
			utils.SendErrorResponse(w, http.StatusBadRequest,
				fmt.Sprintf("Unknown subscription tier: %s", req.Tier))
		case errors.As(err, &authErr):
			log.Printf("[RequestID: %s] Gateway auth failed: %v", requestID, err)
			utils.SendErrorResponse(w, http.StatusBadGateway,
				"Failed to authenticate with the payment gateway")
		default:
			log.Printf("[RequestID: %s] Payment initiation failed: %v", requestID, err)
			utils.SendErrorResponse(w, http.StatusBadGateway, "Payment initiation failed")
		}
		return
	}

	if !resp.Accepted() {
		// The gateway's answer goes back to the caller so it can inspect
		// the rejection reason.
		log.Printf("[RequestID: %s] Gateway rejected the push: code=%q", requestID, resp.ResponseCode)
		utils.SendSuccessResponse(w, models.APIResponse{
			Status:  "rejected",
			Message: "Payment request was not accepted by the gateway",
			Data:    resp,
		})
		return
	}

	log.Printf("[RequestID: %s] Payment initiated (CheckoutRequestID=%s)", requestID, resp.CheckoutRequestID)
	utils.SendSuccessResponse(w, models.APIResponse{
		Status:  "success",
		Message: "Payment initiated successfully. Awaiting customer confirmation.",
		Data:    resp,
	})
}

// FailureState handles GET /api/payments/failure-state and reports the
// orchestrator's grace-period standing.
func (h *PaymentHandler) FailureState(w http.ResponseWriter, r *http.Request) {
	tracker := h.paymentService.Failures()
	attempts, deadline := tracker.Snapshot()

	data := map[string]interface{}{
		"state":           tracker.State().String(),
		"failed_attempts": attempts,
	}
	if !deadline.IsZero() {
		data["grace_period_end"] = deadline
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status:  "success",
		Message: "Failure state",
		Data:    data,
	})
}

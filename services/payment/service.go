package payment

import (
	"errors"
	"fmt"
	"log"

	"dukapay-billing-api/models"
	"dukapay-billing-api/services/billing"
	"dukapay-billing-api/services/payment/daraja"
)

// Validation errors, all detected before any network call. None of them is
// retried and none of them touches the failure tracker.
var (
	ErrInvalidPhoneNumber  = errors.New("invalid phone number format")
	ErrBranchLimitExceeded = errors.New("branch count exceeds allowed limit")
	ErrUnknownTier         = errors.New("unknown subscription tier")
)

// Service orchestrates subscription payment initiation: validation, pricing,
// token acquisition, the STK push itself and the grace-period bookkeeping on
// failure.
//
// A token-endpoint failure aborts the initiation WITHOUT recording a payment
// failure; only the push step (transport error or non-"0" ResponseCode)
// feeds the failure tracker. That asymmetry is deliberate and preserved from
// the original billing rules.
type Service struct {
	client   *daraja.Client
	failures *billing.FailureTracker
	notify   func(billing.Notice)
}

func NewService(client *daraja.Client, failures *billing.FailureTracker) *Service {
	return &Service{
		client:   client,
		failures: failures,
	}
}

// SetNoticeFunc installs the hook that delivers billing notices produced by
// failed payments, typically by enqueuing a notification job. Without a hook
// notices are only logged.
func (s *Service) SetNoticeFunc(fn func(billing.Notice)) {
	s.notify = fn
}

// Failures exposes the tracker, for status reporting.
func (s *Service) Failures() *billing.FailureTracker {
	return s.failures
}

// BuildOrder validates the request and prices it. It performs no I/O.
func (s *Service) BuildOrder(phoneNumber, tierName string, branches int) (*models.PaymentOrder, error) {
	if !billing.ValidatePhoneNumber(phoneNumber) {
		return nil, ErrInvalidPhoneNumber
	}

	tier, ok := billing.ResolveTier(tierName)
	if !ok {
		log.Printf("Invalid subscription tier: %s", tierName)
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tierName)
	}

	if !billing.ValidateBranchCount(tier, branches) {
		return nil, ErrBranchLimitExceeded
	}

	return &models.PaymentOrder{
		PhoneNumber:     phoneNumber,
		Tier:            tier,
		Branches:        branches,
		TotalAmount:     billing.ComputePrice(tier, branches),
		AccountRef:      billing.AccountReference(phoneNumber),
		TransactionDesc: billing.TransactionDescription(tier, branches),
	}, nil
}

// InitiatePayment runs the full push-payment flow for a subscription charge.
//
// The gateway's parsed response is returned whenever one was received, even
// when it carries a non-success code, so the caller can inspect the reason.
// A nil response means the flow aborted before or during transport.
func (s *Service) InitiatePayment(phoneNumber, tierName string, branches int) (*daraja.STKPushResponse, error) {
	order, err := s.BuildOrder(phoneNumber, tierName, branches)
	if err != nil {
		return nil, err
	}

	log.Printf("Initiating payment: account=%s amount=KES %d desc=%q", order.AccountRef, order.TotalAmount, order.TransactionDesc)

	accessToken, err := s.client.GetAccessToken()
	if err != nil {
		log.Printf("Failed to get access token, payment initiation aborted: %v", err)
		return nil, err
	}

	resp, err := s.client.StkPush(accessToken, order)
	if err != nil {
		log.Printf("Error initiating payment: %v", err)
		s.recordFailure()
		return nil, fmt.Errorf("payment initiation failed: %v", err)
	}

	if !resp.Accepted() {
		log.Printf("STK push not accepted for account %s: code=%q desc=%q error=%q",
			order.AccountRef, resp.ResponseCode, resp.ResponseDescription, resp.ErrorMessage)
		s.recordFailure()
		return resp, nil
	}

	log.Printf("Payment initiated successfully for account %s (MerchantRequestID=%s CheckoutRequestID=%s)",
		order.AccountRef, resp.MerchantRequestID, resp.CheckoutRequestID)
	s.failures.RecordSuccess()

	return resp, nil
}

func (s *Service) recordFailure() {
	notice := s.failures.RecordFailure()
	if s.notify != nil {
		s.notify(notice)
	}
}

package models

// InitiatePaymentRequest is the body of POST /api/payments/initiate.
type InitiatePaymentRequest struct {
	PhoneNumber string `json:"phone_number"`
	Tier        string `json:"tier"`
	Branches    int    `json:"branches,omitempty"`
}

// PaymentOrder is the priced and validated order built per initiation
// attempt. It is never persisted.
type PaymentOrder struct {
	PhoneNumber     string
	Tier            Tier
	Branches        int
	TotalAmount     int
	AccountRef      string
	TransactionDesc string
}

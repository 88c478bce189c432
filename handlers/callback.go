package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"dukapay-billing-api/models"
)

// CallbackHandler receives Daraja's asynchronous STK result notifications.
// Results are not correlated back to the initiating request in this service;
// the request identifiers are logged so an external system can reconcile.
type CallbackHandler struct{}

func NewCallbackHandler() *CallbackHandler {
	return &CallbackHandler{}
}

// HandleCallback handles POST /api/daraja/callback. Well-formed payloads get
// a 200 {"message": ...}; anything unparseable gets a 500 {"error": ...}.
func (h *CallbackHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	var envelope models.CallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		log.Printf("Error processing callback: %v", err)
		sendCallbackError(w, err.Error())
		return
	}

	if envelope.Body == nil || envelope.Body.StkCallback == nil {
		log.Printf("Error processing callback: missing Body.stkCallback")
		sendCallbackError(w, "missing Body.stkCallback")
		return
	}

	callback := envelope.Body.StkCallback
	log.Printf("Callback received: MerchantRequestID=%s CheckoutRequestID=%s ResultCode=%d",
		callback.MerchantRequestID, callback.CheckoutRequestID, callback.ResultCode)

	if callback.ResultCode == 0 {
		log.Printf("Payment successful!")
		if callback.CallbackMetadata != nil {
			for _, item := range callback.CallbackMetadata.Item {
				log.Printf("%s: %v", item.Name, item.Value)
			}
		}
	} else {
		log.Printf("Payment failed: %s", callback.ResultDesc)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Callback received successfully"})
}

func sendCallbackError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

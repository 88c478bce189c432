package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dukapay-billing-api/handlers"
	"dukapay-billing-api/models"
	"dukapay-billing-api/services/billing"
	"dukapay-billing-api/services/payment"
	"dukapay-billing-api/services/payment/daraja"
)

// stubGateway answers both Daraja endpoints with a configurable push result.
func stubGateway(t *testing.T, responseCode string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(r.URL.Path, "/oauth/") {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "token-123"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_191220191020363925",
			"ResponseCode":      responseCode,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func newPaymentHandler(t *testing.T, responseCode string) *handlers.PaymentHandler {
	server := stubGateway(t, responseCode)

	client := daraja.NewClient("key", "secret", "600977", "passkey", "https://example.com/callback", "sandbox")
	client.SetBaseURL(server.URL)

	svc := payment.NewService(client, billing.NewFailureTracker(billing.FailureTrackerConfig{}))

	h, err := handlers.NewPaymentHandler(svc)
	require.NoError(t, err)
	return h
}

func postInitiate(t *testing.T, h *handlers.PaymentHandler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("POST", "/api/payments/initiate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.InitiatePayment(rec, req)
	return rec
}

func TestInitiatePayment_Endpoint_Success(t *testing.T) {
	h := newPaymentHandler(t, "0")

	rec := postInitiate(t, h, `{"phone_number": "254712345678", "tier": "pro", "branches": 5}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0", data["ResponseCode"])
	assert.Equal(t, "ws_CO_191220191020363925", data["CheckoutRequestID"])
}

func TestInitiatePayment_Endpoint_GatewayRejection(t *testing.T) {
	h := newPaymentHandler(t, "1")

	rec := postInitiate(t, h, `{"phone_number": "254712345678", "tier": "pro", "branches": 5}`)

	// The rejection body is still handed back to the caller.
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rejected", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1", data["ResponseCode"])
}

func TestInitiatePayment_Endpoint_ValidationErrors(t *testing.T) {
	h := newPaymentHandler(t, "0")

	cases := []struct {
		name string
		body string
	}{
		{"bad phone", `{"phone_number": "0712345678", "tier": "pro"}`},
		{"unknown tier", `{"phone_number": "254712345678", "tier": "platinum"}`},
		{"too many branches", `{"phone_number": "254712345678", "tier": "starter", "branches": 11}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postInitiate(t, h, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp models.APIResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
		})
	}
}

func TestInitiatePayment_Endpoint_InvalidBody(t *testing.T) {
	h := newPaymentHandler(t, "0")

	rec := postInitiate(t, h, `{"phone_number": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFailureState_Endpoint(t *testing.T) {
	h := newPaymentHandler(t, "1")

	// One rejected push moves the tracker into the grace period.
	postInitiate(t, h, `{"phone_number": "254712345678", "tier": "starter"}`)

	req := httptest.NewRequest("GET", "/api/payments/failure-state", nil)
	rec := httptest.NewRecorder()
	h.FailureState(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "in_grace_period", data["state"])
	assert.Equal(t, float64(1), data["failed_attempts"])
	assert.Contains(t, data, "grace_period_end")
}

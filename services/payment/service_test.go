package payment_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dukapay-billing-api/services/billing"
	"dukapay-billing-api/services/payment"
	"dukapay-billing-api/services/payment/daraja"
)

// fakeGateway stubs the Daraja token and STK push endpoints.
type fakeGateway struct {
	server       *httptest.Server
	tokenStatus  int
	responseCode string
	breakPush    bool

	tokenCalls int
	pushCalls  int
	captured   map[string]interface{}
}

func newFakeGateway(t *testing.T) *fakeGateway {
	gw := &fakeGateway{
		tokenStatus:  http.StatusOK,
		responseCode: "0",
	}

	gw.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/oauth/"):
			gw.tokenCalls++
			if gw.tokenStatus != http.StatusOK {
				w.WriteHeader(gw.tokenStatus)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"access_token": "token-123"})

		case strings.HasPrefix(r.URL.Path, "/mpesa/stkpush/"):
			gw.pushCalls++
			if gw.breakPush {
				w.Write([]byte("not json"))
				return
			}
			gw.captured = map[string]interface{}{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gw.captured))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"MerchantRequestID":   "29115-34620561-1",
				"CheckoutRequestID":   "ws_CO_191220191020363925",
				"ResponseCode":        gw.responseCode,
				"ResponseDescription": "stubbed",
			})

		default:
			t.Errorf("unexpected gateway path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	t.Cleanup(gw.server.Close)
	return gw
}

func newTestService(gw *fakeGateway, trackerCfg billing.FailureTrackerConfig) (*payment.Service, *billing.FailureTracker, *[]billing.Notice) {
	client := daraja.NewClient("key", "secret", "600977", "passkey", "https://example.com/callback", "sandbox")
	client.SetBaseURL(gw.server.URL)

	tracker := billing.NewFailureTracker(trackerCfg)
	svc := payment.NewService(client, tracker)

	notices := &[]billing.Notice{}
	svc.SetNoticeFunc(func(n billing.Notice) {
		*notices = append(*notices, n)
	})

	return svc, tracker, notices
}

func TestInitiatePayment_Success(t *testing.T) {
	gw := newFakeGateway(t)
	svc, tracker, notices := newTestService(gw, billing.FailureTrackerConfig{})

	resp, err := svc.InitiatePayment("254712345678", "pro", 5)
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.True(t, resp.Accepted())
	assert.Equal(t, 1, gw.tokenCalls)
	assert.Equal(t, 1, gw.pushCalls)

	// Pro base 300 + 5 branches * 100.
	assert.Equal(t, float64(800), gw.captured["Amount"])
	assert.Equal(t, "Vendor_254712345678", gw.captured["AccountReference"])
	assert.Equal(t, "Pro subscription with 5 branches", gw.captured["TransactionDesc"])

	attempts, _ := tracker.Snapshot()
	assert.Equal(t, 0, attempts)
	assert.Equal(t, billing.StateClean, tracker.State())
	assert.Empty(t, *notices)
}

func TestInitiatePayment_GatewayRejectionRecordsFailure(t *testing.T) {
	gw := newFakeGateway(t)
	gw.responseCode = "1"
	svc, tracker, notices := newTestService(gw, billing.FailureTrackerConfig{})

	resp, err := svc.InitiatePayment("254712345678", "pro", 5)

	// The rejected body still goes back to the caller.
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.Accepted())
	assert.Equal(t, "1", resp.ResponseCode)

	attempts, deadline := tracker.Snapshot()
	assert.Equal(t, 1, attempts)
	assert.False(t, deadline.IsZero())
	assert.Equal(t, billing.StateInGracePeriod, tracker.State())

	require.Len(t, *notices, 1)
	assert.Equal(t, billing.NoticeGraceStarted, (*notices)[0].Kind)
}

func TestInitiatePayment_PushTransportFailureRecordsFailure(t *testing.T) {
	gw := newFakeGateway(t)
	gw.breakPush = true
	svc, tracker, notices := newTestService(gw, billing.FailureTrackerConfig{})

	resp, err := svc.InitiatePayment("254712345678", "pro", 5)

	require.Error(t, err)
	assert.Nil(t, resp)

	attempts, _ := tracker.Snapshot()
	assert.Equal(t, 1, attempts)
	require.Len(t, *notices, 1)
}

func TestInitiatePayment_AuthFailureDoesNotRecordFailure(t *testing.T) {
	gw := newFakeGateway(t)
	gw.tokenStatus = http.StatusServiceUnavailable
	svc, tracker, notices := newTestService(gw, billing.FailureTrackerConfig{})

	resp, err := svc.InitiatePayment("254712345678", "pro", 5)

	require.Error(t, err)
	assert.Nil(t, resp)

	var authErr *daraja.AuthError
	assert.ErrorAs(t, err, &authErr)

	// Token trouble is not a payment failure: the grace-period policy only
	// reacts to the push step.
	attempts, _ := tracker.Snapshot()
	assert.Equal(t, 0, attempts)
	assert.Equal(t, billing.StateClean, tracker.State())
	assert.Empty(t, *notices)
	assert.Equal(t, 0, gw.pushCalls)
}

func TestInitiatePayment_ValidationFailuresSkipTheNetwork(t *testing.T) {
	gw := newFakeGateway(t)
	svc, tracker, _ := newTestService(gw, billing.FailureTrackerConfig{})

	cases := []struct {
		name     string
		phone    string
		tier     string
		branches int
		wantErr  error
	}{
		{"bad phone", "0712345678", "pro", 0, payment.ErrInvalidPhoneNumber},
		{"unknown tier", "254712345678", "platinum", 0, payment.ErrUnknownTier},
		{"over global cap", "254712345678", "enterprise", 11, payment.ErrBranchLimitExceeded},
		{"over tier limit", "254712345678", "starter", 11, payment.ErrBranchLimitExceeded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := svc.InitiatePayment(tc.phone, tc.tier, tc.branches)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	assert.Equal(t, 0, gw.tokenCalls)
	assert.Equal(t, 0, gw.pushCalls)

	attempts, _ := tracker.Snapshot()
	assert.Equal(t, 0, attempts)
}

func TestInitiatePayment_SuccessResetsTrackerWhenConfigured(t *testing.T) {
	gw := newFakeGateway(t)
	svc, tracker, _ := newTestService(gw, billing.FailureTrackerConfig{ResetOnSuccess: true})

	gw.responseCode = "1"
	_, err := svc.InitiatePayment("254712345678", "pro", 5)
	require.NoError(t, err)

	attempts, _ := tracker.Snapshot()
	require.Equal(t, 1, attempts)

	gw.responseCode = "0"
	_, err = svc.InitiatePayment("254712345678", "pro", 5)
	require.NoError(t, err)

	attempts, deadline := tracker.Snapshot()
	assert.Equal(t, 0, attempts)
	assert.True(t, deadline.IsZero())
}

func TestBuildOrder_PricesAndLabels(t *testing.T) {
	gw := newFakeGateway(t)
	svc, _, _ := newTestService(gw, billing.FailureTrackerConfig{})

	order, err := svc.BuildOrder("254712345678", "starter", 10)
	require.NoError(t, err)

	assert.Equal(t, 1100, order.TotalAmount)
	assert.Equal(t, "Vendor_254712345678", order.AccountRef)
	assert.Equal(t, "Starter subscription with 10 branches", order.TransactionDesc)
	assert.Equal(t, "Starter", order.Tier.Name)
}

func TestBuildOrder_TierNameIsCaseInsensitive(t *testing.T) {
	gw := newFakeGateway(t)
	svc, _, _ := newTestService(gw, billing.FailureTrackerConfig{})

	order, err := svc.BuildOrder("254712345678", "ENTERPRISE", 0)
	require.NoError(t, err)
	assert.Equal(t, 500, order.TotalAmount)
}

// Guards against timestamp drift between password and payload fields: both
// must come from the same instant.
func TestInitiatePayment_PasswordMatchesPayloadTimestamp(t *testing.T) {
	gw := newFakeGateway(t)
	svc, _, _ := newTestService(gw, billing.FailureTrackerConfig{})

	_, err := svc.InitiatePayment("254712345678", "starter", 0)
	require.NoError(t, err)

	ts, ok := gw.captured["Timestamp"].(string)
	require.True(t, ok)
	_, err = time.Parse(daraja.TimestampLayout, ts)
	require.NoError(t, err)

	assert.Equal(t, daraja.Password("600977", "passkey", ts), gw.captured["Password"])
}

package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"dukapay-billing-api/models"
)

const (
	SandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	ProductionBaseURL = "https://api.safaricom.co.ke"

	tokenPath   = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath = "/mpesa/stkpush/v1/processrequest"

	// TransactionType is fixed: till-number ("buy goods") push payments.
	TransactionType = "CustomerBuyGoodsOnline"

	RequestTimeout = 30 * time.Second
)

// AuthError means the gateway's token endpoint was unreachable or answered
// without a usable access token. It aborts the whole initiation.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("daraja auth: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("daraja auth: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Client talks to the Daraja OAuth and STK push endpoints.
type Client struct {
	consumerKey    string
	consumerSecret string
	shortcode      string
	passkey        string
	callbackURL    string
	environment    string
	baseURL        string
	client         *http.Client
	transport      *http.Transport
	now            func() time.Time
}

func NewClient(consumerKey, consumerSecret, shortcode, passkey, callbackURL, environment string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		shortcode:      shortcode,
		passkey:        passkey,
		callbackURL:    callbackURL,
		environment:    environment,
		transport:      transport,
		client: &http.Client{
			Timeout:   RequestTimeout,
			Transport: transport,
		},
		now: time.Now,
	}
}

// SetBaseURL overrides the environment-derived gateway address.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}

// SetClock overrides the wall clock used for payload timestamps.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Client) getBaseURL() string {
	if c.baseURL != "" {
		return c.baseURL
	}
	if c.environment == "production" {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

func (c *Client) createRequestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), RequestTimeout)
}

// GetAccessToken fetches a short-lived bearer credential from the token
// endpoint. Tokens are not cached; each payment initiation fetches a fresh
// one. A single attempt is made per call.
func (c *Client) GetAccessToken() (string, error) {
	ctx, cancel := c.createRequestContext()
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.getBaseURL()+tokenPath, nil)
	if err != nil {
		return "", &AuthError{Reason: "error creating token request", Err: err}
	}
	httpReq.SetBasicAuth(c.consumerKey, c.consumerSecret)
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", &AuthError{Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthError{Reason: "error reading token response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &AuthError{Reason: fmt.Sprintf("token endpoint returned status %d: %s", resp.StatusCode, string(respBody))}
	}

	var token tokenResponse
	if err := json.Unmarshal(respBody, &token); err != nil {
		return "", &AuthError{Reason: "error decoding token response", Err: err}
	}
	if token.AccessToken == "" {
		return "", &AuthError{Reason: fmt.Sprintf("no access token in response: %s", string(respBody))}
	}

	return token.AccessToken, nil
}

// StkPush sends one push-payment request for the given order. The timestamp
// and password are derived from the same instant so the gateway's digest
// check passes. The parsed body is returned for any well-formed gateway
// answer, accepted or rejected; the caller inspects ResponseCode.
func (c *Client) StkPush(accessToken string, order *models.PaymentOrder) (*STKPushResponse, error) {
	startTime := time.Now()

	timestamp := Timestamp(c.now())
	payload := stkPushRequest{
		BusinessShortCode: c.shortcode,
		Password:          Password(c.shortcode, c.passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   TransactionType,
		Amount:            order.TotalAmount,
		PartyA:            order.PhoneNumber,
		PartyB:            c.shortcode,
		PhoneNumber:       order.PhoneNumber,
		CallBackURL:       c.callbackURL,
		AccountReference:  order.AccountRef,
		TransactionDesc:   order.TransactionDesc,
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling STK push request: %v", err)
	}

	log.Printf("Sending STK push to Daraja for account %s (amount KES %d)", order.AccountRef, order.TotalAmount)

	ctx, cancel := c.createRequestContext()
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.getBaseURL()+stkPushPath, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("error creating STK push request: %v", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making STK push request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading STK push response body: %v", err)
	}

	log.Printf("Daraja response received in %v for account %s", time.Since(startTime), order.AccountRef)

	cleanBody := strings.TrimPrefix(string(respBody), "\ufeff")

	var response STKPushResponse
	if err := json.Unmarshal([]byte(cleanBody), &response); err != nil {
		return nil, fmt.Errorf("error decoding STK push response: %v, response body: %s", err, string(respBody))
	}

	if response.ErrorCode != "" {
		log.Printf("Daraja rejected request %s: %s (%s)", response.RequestID, response.ErrorMessage, response.ErrorCode)
	}

	return &response, nil
}

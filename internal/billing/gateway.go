// internal/billing/gateway.go
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bargain-service/internal/domain/membership"
	"bargain-service/internal/domain/store"
)

const maxErrorBody = 512

type Config struct {
	APIVersion  string
	TestCharges bool
	Timeout     time.Duration
}

// ShopifyGateway creates and reads recurring application charges through the
// storefront Admin REST API, authenticated with the store's access token.
type ShopifyGateway struct {
	apiVersion string
	test       bool
	baseURL    string
	httpClient *http.Client
}

type Option func(*ShopifyGateway)

// WithBaseURL sends every call to baseURL instead of https://<shop domain>.
func WithBaseURL(baseURL string) Option {
	return func(g *ShopifyGateway) {
		g.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(g *ShopifyGateway) {
		g.httpClient = client
	}
}

func NewShopifyGateway(cfg Config, opts ...Option) *ShopifyGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	g := &ShopifyGateway{
		apiVersion: cfg.APIVersion,
		test:       cfg.TestCharges,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type recurringCharge struct {
	ID              int64   `json:"id,omitempty"`
	Name            string  `json:"name,omitempty"`
	Price           string  `json:"price,omitempty"`
	ReturnURL       string  `json:"return_url,omitempty"`
	TrialDays       int     `json:"trial_days,omitempty"`
	Test            *bool   `json:"test,omitempty"`
	Status          string  `json:"status,omitempty"`
	ConfirmationURL string  `json:"confirmation_url,omitempty"`
	BillingOn       *string `json:"billing_on,omitempty"`
	TrialEndsOn     *string `json:"trial_ends_on,omitempty"`
}

type chargeEnvelope struct {
	Charge recurringCharge `json:"recurring_application_charge"`
}

// InitiateCharge asks the provider for a recurring charge and returns the URL
// the merchant must visit to approve it.
func (g *ShopifyGateway) InitiateCharge(ctx context.Context, plan *membership.Plan, st *store.Store, returnURL string) (*membership.Charge, error) {
	const op = "initiate charge"

	body := chargeEnvelope{Charge: recurringCharge{
		Name:      plan.Name,
		Price:     strconv.FormatFloat(plan.Price, 'f', 2, 64),
		ReturnURL: returnURL,
		TrialDays: plan.TrialDays,
	}}
	if g.test {
		test := true
		body.Charge.Test = &test
	}

	var out chargeEnvelope
	if _, err := g.do(ctx, op, http.MethodPost, st, "/recurring_application_charges.json", body, &out); err != nil {
		return nil, err
	}

	if out.Charge.ID == 0 || out.Charge.ConfirmationURL == "" {
		return nil, &GatewayError{Op: op, Err: fmt.Errorf("response carries no charge id or confirmation url")}
	}

	return &membership.Charge{
		ChargeID:        strconv.FormatInt(out.Charge.ID, 10),
		ConfirmationURL: out.Charge.ConfirmationURL,
		Status:          out.Charge.Status,
	}, nil
}

// FetchChargeDetails reads billing dates and status of an existing charge.
func (g *ShopifyGateway) FetchChargeDetails(ctx context.Context, chargeID string, st *store.Store) (*membership.ChargeDetails, error) {
	const op = "fetch charge details"

	if _, err := strconv.ParseInt(chargeID, 10, 64); err != nil {
		return nil, &GatewayError{Op: op, Err: fmt.Errorf("malformed charge id %q", chargeID)}
	}

	var out chargeEnvelope
	raw, err := g.do(ctx, op, http.MethodGet, st, "/recurring_application_charges/"+chargeID+".json", nil, &out)
	if err != nil {
		return nil, err
	}

	details := &membership.ChargeDetails{
		ChargeID: chargeID,
		Status:   out.Charge.Status,
	}
	if out.Charge.BillingOn != nil {
		details.BillingOn = parseProviderTime(*out.Charge.BillingOn)
	}
	if out.Charge.TrialEndsOn != nil {
		details.TrialEndsOn = parseProviderTime(*out.Charge.TrialEndsOn)
	}

	var envelope map[string]map[string]interface{}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		details.Raw = envelope["recurring_application_charge"]
	}

	return details, nil
}

func (g *ShopifyGateway) do(ctx context.Context, op, method string, st *store.Store, path string, in, out interface{}) ([]byte, error) {
	if !st.Connected() {
		return nil, &GatewayError{Op: op, Err: fmt.Errorf("store is not connected")}
	}

	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, &GatewayError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.endpoint(st)+path, reqBody)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("X-Shopify-Access-Token", st.AccessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(respBody), maxErrorBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}

	return respBody, nil
}

func (g *ShopifyGateway) endpoint(st *store.Store) string {
	base := g.baseURL
	if base == "" {
		base = "https://" + st.ShopDomain
	}
	return base + "/admin/api/" + g.apiVersion
}

// parseProviderTime accepts RFC 3339 timestamps and bare dates.
func parseProviderTime(v string) *time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

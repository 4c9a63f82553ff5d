package callclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Error taxonomy. Callers branch on these to tell the user whether to check
// connectivity, credentials or the number they typed.
var (
	// ErrNotConfigured fires before any network use when the settings slot is
	// incomplete.
	ErrNotConfigured = errors.New("callclient: telephony settings are not configured")

	// ErrInvalidPhone fires locally on a malformed destination number.
	ErrInvalidPhone = errors.New("callclient: invalid phone number")

	// ErrRelayUnreachable wraps timeouts and connection failures, as opposed
	// to a relay that answered and rejected the request.
	ErrRelayUnreachable = errors.New("callclient: cannot reach call relay")
)

// RelayError is a response the relay actively rejected.
type RelayError struct {
	StatusCode int
	Message    string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("callclient: relay rejected request (status %d): %s", e.StatusCode, e.Message)
}

// SettingsSource gates initiation on a configured telephony account.
type SettingsSource interface {
	IsConfigured() bool
}

// CallRequest carries the patient and insurance fields for one call.
type CallRequest struct {
	PhoneNumber       string `json:"phoneNumber"`
	PatientName       string `json:"patientName"`
	PatientDOB        string `json:"patientDOB"`
	MemberID          string `json:"memberId"`
	InsuranceProvider string `json:"insuranceProvider"`
	NPINumber         string `json:"npiNumber"`
	TaxID             string `json:"taxId"`
	ClinicName        string `json:"clinicName"`
	ClinicAddress     string `json:"clinicAddress"`
}

// InitiateResult is the relay's acknowledgment of a placed call.
type InitiateResult struct {
	CallSID string `json:"callSid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusResult is one poll answer.
type StatusResult struct {
	Status          string `json:"status"`
	DurationSeconds int    `json:"duration"`
	ConversationID  string `json:"conversationId"`
}

// initiateTimeout bounds the initiation round trip; past it the failure is
// reported as a connectivity problem.
const initiateTimeout = 10 * time.Second

// Client is the dashboard-side relay client.
type Client struct {
	BaseURL    string
	Settings   SettingsSource
	HTTPClient *http.Client
}

func NewClient(baseURL string, settings SettingsSource) *Client {
	return &Client{
		BaseURL:    baseURL,
		Settings:   settings,
		HTTPClient: &http.Client{Timeout: initiateTimeout},
	}
}

// Initiate validates locally, then asks the relay to place the call.
// Precondition failures (settings, phone number) never touch the network.
func (c *Client) Initiate(ctx context.Context, req CallRequest) (InitiateResult, error) {
	if c.Settings != nil && !c.Settings.IsConfigured() {
		return InitiateResult{}, fmt.Errorf("%w: set account SID, auth token and phone number first", ErrNotConfigured)
	}

	normalized, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return InitiateResult{}, err
	}
	req.PhoneNumber = normalized

	body, err := json.Marshal(req)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("callclient: marshal request: %w", err)
	}

	var out InitiateResult
	if err := c.do(ctx, http.MethodPost, "/voice-agent", bytes.NewReader(body), &out); err != nil {
		return InitiateResult{}, err
	}
	if out.CallSID == "" {
		return InitiateResult{}, &RelayError{StatusCode: http.StatusOK, Message: "relay returned no call sid"}
	}
	return out, nil
}

// Status fetches the current provider status for a placed call.
func (c *Client) Status(ctx context.Context, callSID string) (StatusResult, error) {
	var out StatusResult
	if err := c.do(ctx, http.MethodGet, "/voice-agent/status/"+callSID, nil, &out); err != nil {
		return StatusResult{}, err
	}
	return out, nil
}

// End asks the relay to terminate a call.
func (c *Client) End(ctx context.Context, callSID string) error {
	var out struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "/voice-agent/end/"+callSID, nil, &out); err != nil {
		return err
	}
	if !out.Success {
		return &RelayError{StatusCode: http.StatusOK, Message: "relay did not confirm call end"}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		// Timeouts and refused connections mean the relay never answered.
		return fmt.Errorf("%w: %v", ErrRelayUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RelayError{StatusCode: resp.StatusCode, Message: relayMessage(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("callclient: decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: initiateTimeout}
}

func relayMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return "request failed"
}

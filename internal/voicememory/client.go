package voicememory

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

// Client talks to the voice-memory provider that hosts the verification agent.
// A conversation must exist before a call is placed: it primes the agent with
// the patient's details and yields the webhook URL the telephony provider
// connects the answered call to.
type Client struct {
	BaseURL    string
	AgentID    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, agentID, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		AgentID: agentID,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Memory is the conversation context handed to the agent before dialing.
type Memory struct {
	PatientFirst      string `json:"patient_first"`
	PatientLast       string `json:"patient_last"`
	DOB               string `json:"dob"`
	MemberID          string `json:"member_id"`
	InsuranceProvider string `json:"insurance_provider"`
	ProviderNPI       string `json:"provider_npi"`
	TaxID             string `json:"tax_id"`
	ClinicName        string `json:"clinic_name"`
	ClinicAddress     string `json:"clinic_address"`
}

// Conversation is the provider's handle for one primed agent session.
type Conversation struct {
	ConversationID string `json:"conversation_id"`
	WebhookURL     string `json:"twilio_url"`
}

type createConversationRequest struct {
	Memory Memory `json:"memory"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateConversation registers conversation context with the agent and
// returns the call webhook for it.
func (c *Client) CreateConversation(ctx context.Context, mem Memory) (Conversation, error) {
	if c.AgentID == "" {
		return Conversation{}, errors.New("voicememory: agent id is required")
	}

	body, err := json.Marshal(createConversationRequest{Memory: mem})
	if err != nil {
		return Conversation{}, fmt.Errorf("voicememory: marshal memory: %w", err)
	}

	url := fmt.Sprintf("%s/v1/agents/%s/conversations", c.BaseURL, c.AgentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Conversation{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return Conversation{}, fmt.Errorf("voicememory: create conversation: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Conversation{}, fmt.Errorf("voicememory: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Conversation{}, fmt.Errorf("voicememory: create conversation: %s", vendorMessage(resp.StatusCode, respBody))
	}

	var conv Conversation
	if err := json.Unmarshal(respBody, &conv); err != nil {
		return Conversation{}, fmt.Errorf("voicememory: decode conversation: %w", err)
	}
	if conv.WebhookURL == "" {
		return Conversation{}, errors.New("voicememory: conversation has no webhook url")
	}
	return conv, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func vendorMessage(status int, body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return fmt.Sprintf("status %d: %s", status, e.Error)
		}
		if e.Message != "" {
			return fmt.Sprintf("status %d: %s", status, e.Message)
		}
	}
	return fmt.Sprintf("status %d", status)
}

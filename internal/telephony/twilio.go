package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioDialer places and updates calls through the Twilio REST API.
type TwilioDialer struct {
	client *twilio.RestClient
}

// NewTwilioDialer builds a dialer from account credentials.
// The underlying REST client gets a hard timeout; a stuck provider call must
// not hold an initiate request open indefinitely.
func NewTwilioDialer(accountSID, authToken string) (*TwilioDialer, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("telephony: twilio credentials are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	client.Client.SetTimeout(15 * time.Second)
	return &TwilioDialer{client: client}, nil
}

func (d *TwilioDialer) Name() string { return "twilio" }

func (d *TwilioDialer) Place(ctx context.Context, call OutboundCall) (PlacedCall, error) {
	_ = ctx // twilio-go does not thread contexts through the generated API

	params := &api.CreateCallParams{}
	params.SetTo(call.To)
	params.SetFrom(call.From)
	params.SetUrl(call.AnswerURL)
	params.SetStatusCallback(call.StatusCallbackURL)
	params.SetStatusCallbackEvent(statusCallbackEvents)
	params.SetStatusCallbackMethod("POST")

	resp, err := d.client.Api.CreateCall(params)
	if err != nil {
		return PlacedCall{}, fmt.Errorf("telephony: twilio create call: %w", err)
	}

	placed := PlacedCall{Status: StatusQueued}
	if resp.Sid != nil {
		placed.CallSID = *resp.Sid
	}
	if resp.Status != nil {
		placed.Status = *resp.Status
	}
	if placed.CallSID == "" {
		return PlacedCall{}, errors.New("telephony: twilio returned a call without a sid")
	}
	return placed, nil
}

func (d *TwilioDialer) Complete(ctx context.Context, callSID string) error {
	_ = ctx

	params := &api.UpdateCallParams{}
	params.SetStatus(StatusCompleted)

	if _, err := d.client.Api.UpdateCall(callSID, params); err != nil {
		return fmt.Errorf("telephony: twilio complete call %s: %w", callSID, err)
	}
	return nil
}

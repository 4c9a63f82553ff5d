package relay

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"insurance-voice-agent/internal/callstore"
	"insurance-voice-agent/internal/telephony"
	"insurance-voice-agent/internal/voicememory"
	"insurance-voice-agent/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ConversationService is the slice of the voice-memory client the relay needs.
type ConversationService interface {
	CreateConversation(ctx context.Context, mem voicememory.Memory) (voicememory.Conversation, error)
}

// Handlers implements the relay HTTP surface.
//
// Ordering invariant: the memory step runs before any call is placed, and a
// memory failure aborts the request with no partial state. The store is only
// written after the provider has acknowledged the call.
type Handlers struct {
	Dialer telephony.Dialer
	Memory ConversationService
	Store  callstore.Store

	// FromNumber is the caller id for every outbound call.
	FromNumber string

	// StatusCallbackURL is this relay's own callback endpoint, registered with
	// the provider on every placed call.
	StatusCallbackURL string
}

// CallRequest carries one initiation request from the dashboard.
// It is transient; nothing here is persisted.
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

// RegisterRoutes binds the relay surface onto a router.
func RegisterRoutes(r gin.IRouter, h Handlers) {
	r.POST("/voice-agent", h.InitiateCall)
	r.POST("/voice-agent/status", h.RecordStatusCallback)
	r.GET("/voice-agent/status/:callSid", h.GetStatus)
	r.POST("/voice-agent/end/:callSid", h.EndCall)
}

// InitiateCall primes the voice agent, places the outbound call and records it.
func (h Handlers) InitiateCall(c *gin.Context) {
	log := logger.FromGin(c)

	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phoneNumber is required"})
		return
	}

	ctx := c.Request.Context()

	conv, err := h.Memory.CreateConversation(ctx, req.toMemory())
	if err != nil {
		log.Error("agent memory update failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "failed to update agent memory: " + err.Error()})
		return
	}

	placed, err := h.Dialer.Place(ctx, telephony.OutboundCall{
		To:                req.PhoneNumber,
		From:              h.FromNumber,
		AnswerURL:         conv.WebhookURL,
		StatusCallbackURL: h.StatusCallbackURL,
	})
	if err != nil {
		log.Error("call placement failed", "err", err, "conversation_id", conv.ConversationID)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "failed to initiate call: " + err.Error()})
		return
	}

	rec := callstore.Record{
		CallSID:        placed.CallSID,
		Status:         placed.Status,
		ConversationID: conv.ConversationID,
	}
	if err := h.Store.Put(ctx, rec); err != nil {
		log.Error("call record store failed", "err", err, "call_sid", placed.CallSID)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to record call"})
		return
	}

	log.Info("call initiated", "call_sid", placed.CallSID, "status", placed.Status, "conversation_id", conv.ConversationID)
	c.JSON(http.StatusOK, gin.H{
		"callSid": placed.CallSID,
		"status":  placed.Status,
		"message": "Call initiated successfully",
	})
}

// RecordStatusCallback overwrites a record's status and duration.
//
// Providers deliver callbacks at-least-once, so this handler acknowledges with
// an empty 200 no matter what; an unknown sid is ignored, not an error.
func (h Handlers) RecordStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)

	cb, err := telephony.ParseStatusCallback(c.Request)
	if err != nil {
		log.Warn("status callback parse failed", "err", err)
		c.Status(http.StatusOK)
		return
	}

	ok, err := h.Store.UpdateStatus(c.Request.Context(), cb.CallSID, cb.CallStatus, cb.DurationSeconds)
	if err != nil {
		log.Error("status callback store failed", "err", err, "call_sid", cb.CallSID)
	} else if !ok {
		log.Warn("status callback for unknown call", "call_sid", cb.CallSID, "status", cb.CallStatus)
	} else {
		log.Info("call status updated", "call_sid", cb.CallSID, "status", cb.CallStatus, "duration_s", cb.DurationSeconds)
	}

	c.Status(http.StatusOK)
}

// GetStatus answers the dashboard's polling queries.
func (h Handlers) GetStatus(c *gin.Context) {
	callSID := c.Param("callSid")

	rec, err := h.Store.Get(c.Request.Context(), callSID)
	if err != nil {
		if errors.Is(err, callstore.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		logger.FromGin(c).Error("status lookup failed", "err", err, "call_sid", callSID)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         rec.Status,
		"duration":       rec.DurationSeconds,
		"conversationId": rec.ConversationID,
	})
}

// EndCall asks the provider to complete the call, then drops the record.
// It is safe on a sid that is already completed or absent: the provider's
// not-found rejection is the only failure mode.
func (h Handlers) EndCall(c *gin.Context) {
	log := logger.FromGin(c)
	callSID := c.Param("callSid")
	ctx := c.Request.Context()

	if err := h.Dialer.Complete(ctx, callSID); err != nil {
		log.Error("call completion failed", "err", err, "call_sid", callSID)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "failed to end call: " + err.Error()})
		return
	}

	if err := h.Store.Delete(ctx, callSID); err != nil {
		log.Error("call record delete failed", "err", err, "call_sid", callSID)
	}

	log.Info("call ended", "call_sid", callSID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (r CallRequest) toMemory() voicememory.Memory {
	first, last := splitPatientName(r.PatientName)
	return voicememory.Memory{
		PatientFirst:      first,
		PatientLast:       last,
		DOB:               r.PatientDOB,
		MemberID:          r.MemberID,
		InsuranceProvider: r.InsuranceProvider,
		ProviderNPI:       r.NPINumber,
		TaxID:             r.TaxID,
		ClinicName:        r.ClinicName,
		ClinicAddress:     r.ClinicAddress,
	}
}

// splitPatientName splits a full name on the first space; everything after it
// is the last name.
func splitPatientName(full string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(full))
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

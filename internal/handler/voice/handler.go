package voice

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"voicemail-bridge/internal/security"
	"voicemail-bridge/pkg/utils"
)

// CallFlow serves the two call-lifecycle events and returns TwiML scripts.
type CallFlow interface {
	HandleIncoming(ctx context.Context, callSID, followupURL string) (string, error)
	HandleFollowup(ctx context.Context, callSID, speech, followupURL string) (string, error)
}

// Handler terminates the Twilio voice webhooks: it validates signatures,
// extracts the call identifiers, and delegates to the call flow.
type Handler struct {
	calls     CallFlow
	validator *security.Validator
	baseURL   string
}

func New(calls CallFlow, validator *security.Validator, baseURL string) *Handler {
	return &Handler{calls: calls, validator: validator, baseURL: baseURL}
}

// RegisterRoutes registers the voice webhook routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/incoming", h.handleIncoming)
	r.Post("/followup", h.handleFollowup)
}

func (h *Handler) handleIncoming(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	if !h.validator.Verify(r, r.PostForm, security.PublicURL(r, h.baseURL, "")) {
		log.Println("[voice] signature validation failed (incoming)")
		utils.RespondError(w, http.StatusForbidden, "signature validation failed")
		return
	}

	callSID := h.callSID(r)
	followupURL := security.PublicURL(r, h.baseURL, "/voice/followup")

	script, err := h.calls.HandleIncoming(r.Context(), callSID, followupURL)
	if err != nil {
		log.Printf("[voice] incoming handling failed for call=%s: %v", callSID, err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondXML(w, http.StatusOK, script)
}

func (h *Handler) handleFollowup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	if !h.validator.Verify(r, r.PostForm, security.PublicURL(r, h.baseURL, "")) {
		log.Println("[voice] signature validation failed (followup)")
		utils.RespondError(w, http.StatusForbidden, "signature validation failed")
		return
	}

	callSID := h.callSID(r)
	speech := r.PostFormValue("SpeechResult")
	followupURL := security.PublicURL(r, h.baseURL, "/voice/followup")

	script, err := h.calls.HandleFollowup(r.Context(), callSID, speech, followupURL)
	if err != nil {
		log.Printf("[voice] followup handling failed for call=%s: %v", callSID, err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	utils.RespondXML(w, http.StatusOK, script)
}

// callSID extracts Twilio's call identifier. A webhook without one gets a
// synthesized id so the rest of the flow stays keyed.
func (h *Handler) callSID(r *http.Request) string {
	if sid := strings.TrimSpace(r.PostFormValue("CallSid")); sid != "" {
		return sid
	}
	return "unknown-" + uuid.NewString()
}

package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/Skopos/internal/flow"
	"github.com/BTreeMap/Skopos/internal/models"
	"github.com/BTreeMap/Skopos/internal/store"
	"github.com/BTreeMap/Skopos/internal/util"
	"github.com/twilio/twilio-go/client"
)

// limitReachedReply is sent when a WhatsApp session has used up its turns.
const limitReachedReply = "本次對話已達使用上限，謝謝您的分享。若想重新開始，請稍後再與我們聯繫。"

// TurnProcessor runs a user message through the dialogue engine.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, sessionID, userText, credential string) (models.TurnResult, error)
}

// Webhook receives inbound Twilio WhatsApp messages, runs them as turns and sends the reply.
type Webhook struct {
	turns     TurnProcessor
	sender    Sender
	dedup     store.DedupRepo
	validator *client.RequestValidator
	publicURL string
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithSignatureValidation checks the X-Twilio-Signature header against authToken. publicURL
// is the externally visible URL Twilio posts to.
func WithSignatureValidation(authToken, publicURL string) WebhookOption {
	return func(w *Webhook) {
		rv := client.NewRequestValidator(authToken)
		w.validator = &rv
		w.publicURL = publicURL
	}
}

// WithDedup drops redelivered messages by their MessageSid.
func WithDedup(repo store.DedupRepo) WebhookOption {
	return func(w *Webhook) { w.dedup = repo }
}

// NewWebhook creates a webhook handler.
func NewWebhook(turns TurnProcessor, sender Sender, opts ...WebhookOption) *Webhook {
	w := &Webhook{turns: turns, sender: sender}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ServeHTTP handles POST /twilio/whatsapp.
func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Webhook.ServeHTTP: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if h.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !h.validator.Validate(h.publicURL, params, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("Webhook.ServeHTTP: signature rejected")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	from := r.PostFormValue("From")
	body := strings.TrimSpace(r.PostFormValue("Body"))
	sid := r.PostFormValue("MessageSid")
	if from == "" || body == "" {
		slog.Warn("Webhook.ServeHTTP: missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	sessionID := util.WhatsAppSessionID(from)
	dedup := h.dedup != nil && sid != ""

	if dedup {
		fresh, err := h.dedup.RecordInbound(sid, sessionID)
		if err != nil {
			slog.Error("Webhook.ServeHTTP: dedup claim failed", "error", err, "messageSid", sid)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		if !fresh {
			slog.Info("Webhook.ServeHTTP: duplicate message ignored", "messageSid", sid)
			writeOK(w)
			return
		}
	}

	slog.Info("Webhook.ServeHTTP: inbound WhatsApp message", "sessionID", sessionID, "messageSid", sid)
	recorded, err := h.handle(r.Context(), sessionID, from, body)
	if dedup {
		h.settle(sid, recorded)
	}
	if err != nil {
		slog.Error("Webhook.ServeHTTP: turn failed", "error", err, "sessionID", sessionID, "turnRecorded", recorded)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeOK(w)
}

// settle finalizes a dedup claim. A turn that reached the session is kept so a retry does not
// append it twice; otherwise the claim is released for Twilio's redelivery.
func (h *Webhook) settle(sid string, recorded bool) {
	if recorded {
		if err := h.dedup.MarkProcessed(sid); err != nil {
			slog.Warn("Webhook.settle: mark processed failed", "error", err, "messageSid", sid)
		}
		return
	}
	if err := h.dedup.ReleaseInbound(sid); err != nil {
		slog.Error("Webhook.settle: release failed, redelivery will be dropped", "error", err, "messageSid", sid)
	}
}

// handle runs the turn and sends the reply. recorded reports whether the engine accepted the
// turn, even if sending the reply failed afterwards.
func (h *Webhook) handle(ctx context.Context, sessionID, from, body string) (recorded bool, err error) {
	res, err := h.turns.ProcessTurn(ctx, sessionID, body, "")
	switch {
	case errors.Is(err, flow.ErrUsageLimitReached):
		return true, h.sender.SendMessage(ctx, from, limitReachedReply)
	case errors.Is(err, models.ErrMessageTooLong):
		slog.Warn("Webhook.handle: message too long, ignored", "sessionID", sessionID)
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed to process turn: %w", err)
	}
	if !res.Enabled {
		slog.Debug("Webhook.handle: healing mode disabled, no reply", "sessionID", sessionID)
		return true, nil
	}
	if res.Reply == "" {
		slog.Warn("Webhook.handle: no generation credential configured, no reply sent", "sessionID", sessionID)
		return true, nil
	}
	return true, h.sender.SendMessage(ctx, from, res.Reply)
}

func writeOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

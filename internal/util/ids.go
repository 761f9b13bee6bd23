package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewSessionID generates a session id in the format "s_{32 hex chars}".
func NewSessionID() string {
	return "s_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WhatsAppSessionID derives a stable session id from a WhatsApp sender address such as
// "whatsapp:+15551234567". Only digits of the number are kept.
func WhatsAppSessionID(from string) string {
	var b strings.Builder
	b.WriteString("wa_")
	for _, r := range strings.TrimPrefix(from, "whatsapp:") {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Package wabridge defines the outbound WhatsApp delivery capability
// consumed by dispatch workers. Providers live in subpackages: wabridgesim
// simulates delivery for development and tests, wabridgehttp talks to a
// real upstream bridge.
package wabridge

import (
	"context"

	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/message"
)

// Outcome is a successful delivery report. For content with both media
// and a document, MessageID is the id of the last part sent.
type Outcome struct {
	MessageID string `json:"messageId"`
}

// Bridge is the messaging capability. Send verifies session readiness
// and recipient validity itself; callers only distinguish permanent from
// transient failures via IsPermanent.
type Bridge interface {
	// IsReady reports whether the unit's session can send right now.
	IsReady(ctx context.Context, unitID kernel.UnitID) (bool, error)

	// Send delivers classified content to one recipient.
	Send(ctx context.Context, unitID kernel.UnitID, recipient string, content message.Content) (*Outcome, error)
}

package client

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Notifier publishes user notifications to NATS for delivery by the
// notifications service.
//
// Subject convention: notifications.backoffice.<kind>
// Kinds: critical_event, document_reminder, approval_decision
//
// All publish operations are non-fatal — errors are logged but never propagated
// to the caller, so notification failures never interrupt workflow operations.
type Notifier struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// Notification is the JSON schema published to NATS.
type Notification struct {
	UserID   string                 `json:"user_id"`
	Title    string                 `json:"title"`
	Body     string                 `json:"body"`
	Kind     string                 `json:"kind"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewNotifier creates a notifier backed by the given NATS connection. A nil
// connection disables publishing entirely.
func NewNotifier(conn *nats.Conn, log zerolog.Logger) *Notifier {
	return &Notifier{conn: conn, log: log}
}

// NotifyUser publishes one notification. Fire-and-forget: failures are logged
// and swallowed.
func (n *Notifier) NotifyUser(userID, title, body, kind string, metadata map[string]interface{}) {
	if n.conn == nil {
		return
	}
	if userID == "" {
		return
	}

	msg := &Notification{
		UserID:   userID,
		Title:    title,
		Body:     body,
		Kind:     kind,
		Metadata: metadata,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		n.log.Warn().Err(err).Str("kind", kind).Msg("notification: failed to marshal payload")
		return
	}

	subject := fmt.Sprintf("notifications.backoffice.%s", kind)
	if err := n.conn.Publish(subject, data); err != nil {
		n.log.Warn().Err(err).
			Str("subject", subject).
			Str("user_id", userID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	n.log.Debug().
		Str("subject", subject).
		Str("user_id", userID).
		Msg("notification: event published")
}

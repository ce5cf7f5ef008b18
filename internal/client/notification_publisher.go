package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/identra/be-hr-workflows/internal/domain"
)

// SubjectPrefix is the JetStream subject root for workflow notifications.
const SubjectPrefix = "notifications.workflow"

// Publisher is the subset of jetstream.JetStream the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NotificationPublisher publishes workflow events to NATS JetStream for the
// notifications service.
//
// Subject convention: notifications.workflow.<event_type>
//
// Publishing is fire-and-forget: errors are logged, never returned, so a
// broker outage cannot undo or block a committed transition.
type NotificationPublisher struct {
	js  Publisher
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ActorID      int64          `json:"actor_id"`
	Recipients   []int64        `json:"recipients"`
	ResourceType string         `json:"resource_type"`
	ResourceID   int64          `json:"resource_id"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Severity     string         `json:"severity"`
	Category     string         `json:"category"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil js disables publishing.
func NewNotificationPublisher(js Publisher, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{js: js, log: log}
}

// Notify publishes ev to notifications.workflow.<type>.
func (p *NotificationPublisher) Notify(ctx context.Context, ev domain.Event) {
	if p == nil || p.js == nil {
		return
	}
	if len(ev.Recipients) == 0 {
		return
	}

	severity := "info"
	if ev.Type == domain.EventRequestRejected {
		severity = "warning"
	}

	msg := &NotificationEvent{
		EventType:    string(ev.Type),
		ActorID:      ev.ActorID,
		Recipients:   ev.Recipients,
		ResourceType: "workflow_request",
		ResourceID:   ev.RequestID,
		IsActionable: ev.Type == domain.EventStepActivated,
		Severity:     severity,
		Category:     "hr_workflow",
		OccurredAt:   ev.OccurredAt,
		Payload: map[string]any{
			"workflow_id":    ev.WorkflowID,
			"transaction_id": ev.TransactionID,
			"instance_id":    ev.InstanceID,
			"step_order":     ev.StepOrder,
			"status":         ev.Status,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, ev.Type)
	msgID := fmt.Sprintf("%s:%d:%d:%d", ev.Type, ev.RequestID, ev.InstanceID, ev.OccurredAt.UnixNano())
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Int64("request_id", ev.RequestID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Int64("request_id", ev.RequestID).
		Int("recipients", len(ev.Recipients)).
		Msg("notification: event published")
}

// ConnectJetStream dials NATS and makes sure the notification stream
// captures the workflow subjects.
func ConnectJetStream(ctx context.Context, url, stream string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url, nats.Name("be-hr-workflows"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{SubjectPrefix + ".>"},
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to ensure stream %s: %w", stream, err)
	}
	return nc, js, nil
}

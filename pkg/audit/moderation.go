// Package audit provides structured audit logging of moderation decisions.
// Events are emitted as JSON under a dedicated logger namespace so they can be
// filtered out of the general service log.
package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/auth"
	"github.com/Andrii-Skr/crossnext-sub000/pkg/logging"
)

// maxActorLength caps the actor label written to audit events.
const maxActorLength = 120

// ModerationEventType categorizes moderation events for filtering.
type ModerationEventType string

const (
	EventSubmitted ModerationEventType = "envelope_submitted"
	EventEdited    ModerationEventType = "envelope_edited"
	EventApproved  ModerationEventType = "envelope_approved"
	EventRejected  ModerationEventType = "envelope_rejected"
	EventSwept     ModerationEventType = "retention_sweep"
)

// ModerationEvent is one auditable moderation action.
type ModerationEvent struct {
	Timestamp  time.Time           `json:"timestamp"`
	EventType  ModerationEventType `json:"event_type"`
	EnvelopeID int64               `json:"envelope_id,string,omitempty"`
	Actor      string              `json:"actor,omitempty"`
	ActorID    *int64              `json:"actor_id,string,omitempty"`
	Details    any                 `json:"details,omitempty"`
}

// ApprovalDetails summarizes what an approval did to the live dictionary.
type ApprovalDetails struct {
	WordID             int64   `json:"word_id,string"`
	Renamed            bool    `json:"renamed,omitempty"`
	CreatedDefinitions []int64 `json:"created_definitions,omitempty"`
	MergedDefinitions  []int64 `json:"merged_definitions,omitempty"`
	UpdatedDefinitions []int64 `json:"updated_definitions,omitempty"`
}

// ModerationAuditor logs moderation events.
type ModerationAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewModerationAuditor creates an auditor logging under the "moderation_audit" namespace.
func NewModerationAuditor(logger *zap.Logger) *ModerationAuditor {
	return &ModerationAuditor{
		logger: logger.Named("moderation_audit"),
		now:    time.Now,
	}
}

func (a *ModerationAuditor) log(ctx context.Context, eventType ModerationEventType, envelopeID int64, details any, msg string) {
	event := ModerationEvent{
		Timestamp:  a.now().UTC(),
		EventType:  eventType,
		EnvelopeID: envelopeID,
		Details:    details,
	}
	if p, ok := auth.GetPrincipal(ctx); ok {
		event.Actor = logging.TruncateString(p.Label(), maxActorLength)
		event.ActorID = p.UserID
	}

	// Marshaling known types cannot fail
	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(eventType)),
		zap.String("actor", event.Actor),
	}
	if envelopeID != 0 {
		fields = append(fields, zap.String("envelope_id", strconv.FormatInt(envelopeID, 10)))
	}
	a.logger.Info(msg, fields...)
}

// LogSubmitted records a newly staged envelope.
func (a *ModerationAuditor) LogSubmitted(ctx context.Context, envelopeID int64, descriptionCount int) {
	a.log(ctx, EventSubmitted, envelopeID, map[string]int{"descriptions": descriptionCount}, "Pending envelope submitted")
}

// LogEdited records an edit to a pending envelope.
func (a *ModerationAuditor) LogEdited(ctx context.Context, envelopeID int64, fields []string) {
	a.log(ctx, EventEdited, envelopeID, map[string][]string{"fields": fields}, "Pending envelope edited")
}

// LogApproved records a committed approval.
func (a *ModerationAuditor) LogApproved(ctx context.Context, envelopeID int64, details ApprovalDetails) {
	a.log(ctx, EventApproved, envelopeID, details, "Pending envelope approved")
}

// LogRejected records a committed rejection.
func (a *ModerationAuditor) LogRejected(ctx context.Context, envelopeID int64, descriptionCount int64) {
	a.log(ctx, EventRejected, envelopeID, map[string]int64{"descriptions": descriptionCount}, "Pending envelope rejected")
}

// LogSwept records a retention sweep that removed envelopes.
func (a *ModerationAuditor) LogSwept(ctx context.Context, deleted int64, cutoff time.Time) {
	a.log(ctx, EventSwept, 0, map[string]any{
		"deleted": deleted,
		"cutoff":  cutoff.UTC().Format(time.RFC3339),
	}, "Resolved envelopes purged")
}

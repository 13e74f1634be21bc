// Package application runs the event ingestion pipeline: payload
// validation, entity resolution, mention recording and risk scoring.
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	entityapp "github.com/stdin/venezuelawatch-sub000/internal/entity/application"
	entitydomain "github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	riskapp "github.com/stdin/venezuelawatch-sub000/internal/risk/application"
	riskdomain "github.com/stdin/venezuelawatch-sub000/internal/risk/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/logger"
)

// ErrInvalidPayload marks an event that can never be processed; such events
// go to the dead letter queue instead of being retried.
var ErrInvalidPayload = errors.New("invalid event payload")

// EventPayload is the wire shape of one ingested event.
type EventPayload struct {
	EventID    string           `json:"event_id"`
	OccurredAt time.Time        `json:"occurred_at"`
	Text       string           `json:"text"`
	Mentions   []MentionPayload `json:"mentions"`
	Signals    SignalsPayload   `json:"signals"`
	// SanctionsFlag marks events sourced from sanctions-related coverage.
	SanctionsFlag bool `json:"sanctions_flag"`
}

// MentionPayload is one raw entity mention inside an event.
type MentionPayload struct {
	RawName string `json:"raw_name"`
	Type    string `json:"type"`
}

// SignalsPayload carries the quantitative signals of an event. Absent
// fields stay nil and score neutral.
type SignalsPayload struct {
	Goldstein  *float64 `json:"goldstein,omitempty"`
	Tone       *float64 `json:"tone,omitempty"`
	Themes     []string `json:"themes,omitempty"`
	ThemeCount *int     `json:"theme_count,omitempty"`
}

// Validate rejects payloads that can never be processed.
func (p *EventPayload) Validate() error {
	if p.EventID == "" {
		return fmt.Errorf("%w: missing event_id", ErrInvalidPayload)
	}
	if len(p.Mentions) == 0 {
		return fmt.Errorf("%w: event %s has no mentions", ErrInvalidPayload, p.EventID)
	}
	for i, m := range p.Mentions {
		if m.RawName == "" {
			return fmt.Errorf("%w: event %s mention %d has empty name", ErrInvalidPayload, p.EventID, i)
		}
		if _, err := entitydomain.ParseEntityType(m.Type); err != nil {
			return fmt.Errorf("%w: event %s mention %d: %v", ErrInvalidPayload, p.EventID, i, err)
		}
	}
	return nil
}

// Pipeline processes one event end to end.
type Pipeline struct {
	resolver *entityapp.ResolverService
	recorder *entityapp.RecorderService
	risk     *riskapp.RiskService
}

// NewPipeline creates a Pipeline.
func NewPipeline(
	resolver *entityapp.ResolverService,
	recorder *entityapp.RecorderService,
	risk *riskapp.RiskService,
) *Pipeline {
	return &Pipeline{resolver: resolver, recorder: recorder, risk: risk}
}

// Process resolves and records every mention of the event, then scores it.
// Mentions must exist before scoring so the score-dependent trending
// contributions find their entities.
func (p *Pipeline) Process(ctx context.Context, payload *EventPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}

	occurredAt := payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	for _, m := range payload.Mentions {
		entityType, _ := entitydomain.ParseEntityType(m.Type)
		resolution, err := p.resolver.Resolve(ctx, m.RawName, entityType)
		if err != nil {
			if errors.Is(err, entitydomain.ErrEmptyName) {
				return fmt.Errorf("%w: event %s: %v", ErrInvalidPayload, payload.EventID, err)
			}
			return fmt.Errorf("resolve %q: %w", m.RawName, err)
		}
		if _, err := p.recorder.RecordMention(ctx, resolution.Entity.ID, payload.EventID, occurredAt, resolution.Score); err != nil {
			return fmt.Errorf("record mention of entity %d: %w", resolution.Entity.ID, err)
		}
	}

	signals := riskdomain.Signals{
		Conflict:   payload.Signals.Goldstein,
		Tone:       payload.Signals.Tone,
		Themes:     payload.Signals.Themes,
		ThemeCount: payload.Signals.ThemeCount,
	}
	if _, err := p.risk.ScoreEvent(ctx, payload.EventID, payload.Text, signals, payload.SanctionsFlag, occurredAt); err != nil {
		return fmt.Errorf("score event %s: %w", payload.EventID, err)
	}

	logger.Debug(ctx, "Event processed",
		"event_id", payload.EventID,
		"mentions", len(payload.Mentions),
	)
	return nil
}

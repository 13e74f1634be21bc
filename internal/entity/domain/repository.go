package domain

import (
	"context"
	"time"
)

// EntityRepository is the shared mutable entity store, keyed by id and by
// the normalized-name index.
type EntityRepository interface {
	// FindByID returns the entity with aliases loaded, or (nil, nil) when
	// absent.
	FindByID(ctx context.Context, id uint64) (*Entity, error)
	// FindByNormalizedName is the O(1) exact-match fast path over the
	// normalized-name index, scoped to one type. Returns (nil, nil) on miss.
	FindByNormalizedName(ctx context.Context, entityType EntityType, normalized string) (*Entity, error)
	// ListCandidates returns all live (non-merged) entities of one type with
	// aliases loaded, for fuzzy matching.
	ListCandidates(ctx context.Context, entityType EntityType) ([]*Entity, error)
	// Create inserts the entity, claims its normalized name and records the
	// seed alias in one transaction. Returns ErrNameKeyConflict when a
	// concurrent writer claimed the name first.
	Create(ctx context.Context, entity *Entity, rawName string) error
	// AddAlias records a new raw spelling for an entity and claims its
	// normalized form when novel. A normalized form already claimed by a
	// different entity is left unclaimed and reported as an overlap by
	// FindAliasOverlaps; AddAlias itself succeeds.
	AddAlias(ctx context.Context, entityID uint64, entityType EntityType, rawName, normalized string) error
	// RecordMentionSeen atomically bumps mention_count and advances
	// last_seen_at.
	RecordMentionSeen(ctx context.Context, entityID uint64, seenAt time.Time) error
	// Merge reassigns the loser's mentions, aliases and name keys to the
	// winner and soft-marks the loser merged, in one transaction.
	Merge(ctx context.Context, winnerID, loserID uint64) error
	// FindAliasOverlaps returns normalized names claimed by more than one
	// live entity of the same type.
	FindAliasOverlaps(ctx context.Context) ([]AliasOverlap, error)
}

// MentionRepository is the append-only mention log.
type MentionRepository interface {
	// Create appends a mention. Mentions are immutable once created. The
	// unique (event, entity) key makes reprocessing idempotent: an already
	// recorded mention reports duplicate instead of a second row.
	Create(ctx context.Context, mention *Mention) (duplicate bool, err error)
	// ListByEntity returns a page of an entity's mentions within
	// [from, to], newest first, plus the total count.
	ListByEntity(ctx context.Context, entityID uint64, from, to time.Time, offset, limit int) ([]*Mention, int64, error)
	// ListByEvent returns all mentions recorded for one event.
	ListByEvent(ctx context.Context, eventID string) ([]*Mention, error)
	// ListContributionsSince streams mention rows joined with their event's
	// risk assessment (when present) for trending rehydration.
	ListContributionsSince(ctx context.Context, since time.Time) ([]*MentionContribution, error)
}

// MentionContribution is a mention joined with the scoring facts trending
// needs: the event's composite score and sanctions flag, when scored.
type MentionContribution struct {
	EntityID       uint64    `gorm:"column:entity_id"`
	MentionedAt    time.Time `gorm:"column:mentioned_at"`
	CompositeScore *float64  `gorm:"column:composite_score"`
	SanctionsHit   *bool     `gorm:"column:sanctions_hit"`
}

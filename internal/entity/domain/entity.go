// Package domain holds the canonical entity model, name normalization and
// fuzzy matching used by the resolution pipeline.
package domain

import (
	"fmt"
	"time"
)

// EntityType classifies a canonical entity.
type EntityType string

const (
	EntityTypePerson       EntityType = "PERSON"
	EntityTypeOrganization EntityType = "ORGANIZATION"
	EntityTypeLocation     EntityType = "LOCATION"
	EntityTypeGovernment   EntityType = "GOVERNMENT"
)

// ParseEntityType validates and converts a raw type tag.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntityTypePerson, EntityTypeOrganization, EntityTypeLocation, EntityTypeGovernment:
		return EntityType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, s)
	}
}

// Entity is a canonical, deduplicated real-world referent. Entities are
// never hard-deleted; a lost duplicate is soft-merged by pointing
// MergedIntoID at the winner.
type Entity struct {
	ID uint64 `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	// CanonicalName is the display name, the raw spelling seen first.
	CanonicalName string `gorm:"column:canonical_name;type:varchar(255);not null" json:"canonical_name"`
	// NormalizedName is the normalized form of CanonicalName.
	NormalizedName string     `gorm:"column:normalized_name;type:varchar(255);not null;index:idx_entities_type_norm" json:"normalized_name"`
	EntityType     EntityType `gorm:"column:entity_type;type:varchar(16);not null;index:idx_entities_type_norm" json:"entity_type"`
	// MentionCount is monotonically non-decreasing.
	MentionCount uint64    `gorm:"column:mention_count;not null;default:0" json:"mention_count"`
	LastSeenAt   time.Time `gorm:"column:last_seen_at;not null" json:"last_seen_at"`
	// MergedIntoID is set when this entity lost an explicit merge.
	MergedIntoID *uint64   `gorm:"column:merged_into_id;index" json:"merged_into_id,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`

	Aliases []EntityAlias `gorm:"foreignKey:EntityID" json:"aliases,omitempty"`
}

// TableName maps Entity to its table.
func (Entity) TableName() string {
	return "entities"
}

// Merged reports whether this entity was soft-merged into another.
func (e *Entity) Merged() bool {
	return e.MergedIntoID != nil
}

// HasNormalizedAlias reports whether normalized is already in the alias set.
func (e *Entity) HasNormalizedAlias(normalized string) bool {
	if e.NormalizedName == normalized {
		return true
	}
	for _, a := range e.Aliases {
		if a.NormalizedName == normalized {
			return true
		}
	}
	return false
}

// HasRawAlias reports whether the exact raw spelling is already recorded.
func (e *Entity) HasRawAlias(raw string) bool {
	for _, a := range e.Aliases {
		if a.RawName == raw {
			return true
		}
	}
	return false
}

// EntityAlias is one raw spelling observed for an entity together with its
// normalized form. Raw spellings are unique within an entity.
type EntityAlias struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement;column:id" json:"-"`
	EntityID       uint64     `gorm:"column:entity_id;not null;uniqueIndex:uk_alias_entity_raw;index" json:"-"`
	EntityType     EntityType `gorm:"column:entity_type;type:varchar(16);not null;index:idx_aliases_type_norm" json:"-"`
	RawName        string     `gorm:"column:raw_name;type:varchar(255);not null;uniqueIndex:uk_alias_entity_raw" json:"raw_name"`
	NormalizedName string     `gorm:"column:normalized_name;type:varchar(255);not null;index:idx_aliases_type_norm" json:"normalized_name"`
	CreatedAt      time.Time  `gorm:"column:created_at" json:"created_at"`
}

// TableName maps EntityAlias to its table.
func (EntityAlias) TableName() string {
	return "entity_aliases"
}

// EntityNameKey claims a normalized name for exactly one entity per type.
// The unique index is the create-race guard: two concurrent creations of the
// same never-seen name collide here and the loser retries as a lookup.
type EntityNameKey struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement;column:id"`
	EntityType     EntityType `gorm:"column:entity_type;type:varchar(16);not null;uniqueIndex:uk_name_key"`
	NormalizedName string     `gorm:"column:normalized_name;type:varchar(255);not null;uniqueIndex:uk_name_key"`
	EntityID       uint64     `gorm:"column:entity_id;not null;index"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
}

// TableName maps EntityNameKey to its table.
func (EntityNameKey) TableName() string {
	return "entity_name_keys"
}

// Mention links an event to a resolved entity. Rows are append-only and are
// the ground truth behind all trending scores. One row per (event, entity):
// the unique key makes event reprocessing idempotent.
type Mention struct {
	ID       int64  `gorm:"primaryKey;column:id" json:"id"`
	EntityID uint64 `gorm:"column:entity_id;not null;index:idx_mentions_entity_time;uniqueIndex:uk_mentions_event_entity" json:"entity_id"`
	EventID  string `gorm:"column:event_id;type:varchar(64);not null;uniqueIndex:uk_mentions_event_entity" json:"event_id"`
	// MentionedAt is the event's timestamp, denormalized so trending queries
	// never join to events.
	MentionedAt time.Time `gorm:"column:mentioned_at;not null;index:idx_mentions_entity_time" json:"mentioned_at"`
	// MatchScore is the similarity that produced this link, 1.0 for exact.
	MatchScore float64   `gorm:"column:match_score;not null" json:"match_score"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName maps Mention to its table.
func (Mention) TableName() string {
	return "mentions"
}

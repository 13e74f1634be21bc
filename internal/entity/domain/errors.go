package domain

import "errors"

var (
	// ErrEmptyName rejects raw names that normalize to the empty string.
	ErrEmptyName = errors.New("entity name is empty after normalization")
	// ErrUnknownEntityType rejects type tags outside the known enum.
	ErrUnknownEntityType = errors.New("unknown entity type")
	// ErrEntityNotFound is returned for lookups of nonexistent ids.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrNameKeyConflict signals a lost create race: the normalized name was
	// claimed by a concurrent writer. Callers retry as a lookup.
	ErrNameKeyConflict = errors.New("normalized name already claimed")
	// ErrMergeSelf rejects merging an entity into itself.
	ErrMergeSelf = errors.New("cannot merge an entity into itself")
	// ErrAlreadyMerged rejects operations on a soft-merged loser.
	ErrAlreadyMerged = errors.New("entity has already been merged")
)

// AliasOverlap reports two or more entities of the same type claiming the
// same normalized alias, discovered post-hoc. Overlaps are surfaced to the
// batch reconciliation pass and never auto-merged.
type AliasOverlap struct {
	EntityType     EntityType `json:"entity_type"`
	NormalizedName string     `json:"normalized_name"`
	EntityIDs      []uint64   `json:"entity_ids"`
}
